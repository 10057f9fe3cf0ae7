// Package simserver is an in-process historian endpoint backed by the
// sqlite store.
//
// It implements transport.Transport and browse.Namespace so a session can
// run end to end without a remote server. All asynchronous results pass
// through one FIFO callback queue that a single Run goroutine drains into
// the bound sink, which is how a real callback channel behaves: one thread,
// every transaction interleaved, frames possibly arriving before the
// initiating call has returned to its caller.
package simserver
