// Package daemon keeps a live index of one root and answers commands over
// TCP.
//
// A Daemon moves through Stopped, Starting, Serving and Draining. Start
// builds the index, opens the listener and begins watching the root with
// fsnotify. File events are debounced; each flush reparses the changed files
// outside any lock and installs the result as one batch under the index
// writer lock, so a query sees either all of a batch or none of it. Failing
// to take the writer lock within WriterLockTimeout is treated as a deadlock:
// Run rebuilds the index from scratch, up to MaxRestarts times.
//
// The wire protocol is line-delimited JSON. Each request
//
//	{"id": "...", "command": "search-symbol", "params": {...}}
//
// is answered, in order, on the same connection with
//
//	{"id": "...", "status": "ok", "result": ...}
//	{"id": "...", "status": "error", "error": {"kind": "InvalidPattern", "message": "..."}}
//
// Closing the connection cancels the request being served. A failing
// request never stops the daemon. Stop stops accepting, lets in-flight
// requests finish within DrainTimeout and then cancels the rest.
package daemon
