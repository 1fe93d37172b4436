/*
Package native implements the host side of the call bridge.

A Table maps bound names such as "BIND_process_start" to Go functions. The Register functions fill a table with one namespace each, over the host's collaborators: a Supervisor for processes, a signal Registry, a Window and a ConfigStore.

Every call carries an ordering lane derived from its arguments. Transports admit calls of one lane in the order they were submitted, which is how calls against the same process identity keep their order while calls against different identities run concurrently.
*/
package native
