package correlate

import "github.com/roach88/histsess/internal/hda"

// InitialItem is one per-item result of the initiating call. Only items with
// a nil Err enter the request's item directory.
type InitialItem struct {
	Handle hda.ServerHandle
	Item   hda.Item
	Err    error
}

// Entry is the per-item part of a raw callback delivery, keyed by the server
// handle the remote endpoint assigned.
type Entry struct {
	Handle hda.ServerHandle
	Err    error

	// MoreData is set when the endpoint has further values for this item
	// that will arrive in a later delivery.
	MoreData bool

	Values      []hda.Value
	Attributes  []hda.AttributeResult
	Annotations []hda.Annotation
}

// Payload is one raw delivery from the callback channel.
type Payload struct {
	// Err is a transaction-level status reported by the endpoint.
	Err     error
	Entries []Entry
}

// ItemResult is an Entry annotated with the item identity cached in the
// request's directory. Item is the zero value when the handle is unknown.
type ItemResult struct {
	Item hda.Item
	Entry
}

// Result is what a handler receives.
type Result struct {
	RequestID ID

	// CallerToken is the value given to Register, returned verbatim.
	CallerToken any

	// ActualTime is the time window the endpoint resolved for the request.
	ActualTime hda.TimeRange

	Err   error
	Items []ItemResult
}
