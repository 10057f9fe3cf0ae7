// Package correlate matches asynchronous transport callbacks to the requests
// that caused them.
//
// The transport delivers every asynchronous result through one shared
// callback, tagged only by a transaction id. The Registry mints those ids,
// holds one entry per outstanding request and routes each delivery to the
// handler chosen when the request was registered.
//
// LIFECYCLE:
//
//	Register ──> pending ──Activate──> active ──(completion rule)──> removed
//	                │                     │
//	                └──Cancel/Fail────────┴──> removed
//
// A request is registered before the initiating remote call is sent, because
// deliveries for it can arrive before that call returns. Until Activate runs
// the request is pending and deliveries are buffered in arrival order.
// Activate builds the item directory from the accepted items and replays the
// buffer through the normal dispatch path exactly once.
//
// COMPLETION RULES:
//
//	DataUpdate        never completes; only Cancel removes it
//	ReadValues        completes on the first delivery with no MoreData entry
//	ReadAttributes    completes on the first delivery
//	ReadAnnotations   completes on the first delivery
//	Update            completes on the first delivery
//
// CONCURRENCY:
//
// Every registry operation runs under one mutex covering the whole registry.
// Handlers are never invoked while that mutex is held. Deliveries for one
// request are queued on the request and drained by a single goroutine at a
// time, so a handler observes its deliveries in arrival order and may call
// back into the registry (for example to Cancel itself) without deadlock.
//
// FAULTS:
//
// A handler that returns an error or panics produces a HandlerFault which is
// logged and counted, never propagated. Deliveries for unknown ids are
// dropped.
package correlate
