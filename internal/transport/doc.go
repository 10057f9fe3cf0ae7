// Package transport defines the contract between a historian session and
// the callback-style channel that carries its remote calls.
//
// An initiating call (Begin) returns synchronously with a remote cancel id
// and per-item acceptance. Every result after that arrives through the Sink
// the transport was bound to, tagged only with the caller's transaction id.
// Deliveries for a call may reach the Sink before Begin has returned.
package transport
