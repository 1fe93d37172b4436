/*
Package bridge is the page side of the host bridge.

A Client holds one field per namespace (Log, FS, Window, System, Config, Process, Signal, Debug, Network, Navigate, Properties). Each method turns into exactly one bound call, named BIND_<suffix>, sent through an Executor. Strings travel as envelopes, results come back as Result values or typed values decoded from them.

Command calls only report whether the host accepted them. Query calls return a value, and an absent value (nil, or an envelope that carries nothing) is distinct from an empty one. A call the host rejects returns an error wrapping the executor's error, and is never retried.

Calls are not ordered by this package. Ordering between calls on the same process identity, or within one window, is provided by the host for calls submitted over one session.
*/
package bridge
