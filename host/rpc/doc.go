/*
Package rpc carries bound calls between page sessions and the host over a WebSocket connection.

A session is one WebSocket connection. The subprotocol picks the message encoding: "hostbridge.json" sends JSON text frames and "hostbridge.cbor" sends CBOR binary frames. Both carry the same two messages, described in types.go: "request" messages go client->server and "response" messages go server->client.

The protocol proceeds as follows:

1. The client opens a WebSocket connection, offering one subprotocol.
2. The client sends request messages, each with a fresh ID, the bound call name and its positional arguments.
3. The server answers each request with a response message carrying the same ID and either a result or an error. Responses may arrive in any order.
4. At any time the server may send a response message with no ID and an Event, which asks the page to run a named callback. Events are delivered to the client's handler in the order they were sent.
5. The client initiates closing of the connection. Calls still pending on either side are abandoned.

Calls in a session are admitted in lanes: the server admits calls that share a lane in the order it read them, and calls in different lanes, or with no lane, concurrently. The lane of a call is chosen by its binding, see package native.
*/
package rpc
