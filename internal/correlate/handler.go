package correlate

import "fmt"

// Kind selects the completion rule of a request.
type Kind int

const (
	KindDataUpdate Kind = iota + 1
	KindReadValues
	KindReadAttributes
	KindReadAnnotations
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindDataUpdate:
		return "DataUpdate"
	case KindReadValues:
		return "ReadValues"
	case KindReadAttributes:
		return "ReadAttributes"
	case KindReadAnnotations:
		return "ReadAnnotations"
	case KindUpdate:
		return "Update"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// completes reports whether delivering p finishes a request of this kind.
func (k Kind) completes(p Payload) bool {
	switch k {
	case KindDataUpdate:
		return false
	case KindReadValues:
		for _, e := range p.Entries {
			if e.MoreData {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// HandlerFunc consumes one delivered result. A returned error is logged as a
// HandlerFault and otherwise ignored.
type HandlerFunc func(*Result) error

// Handler pairs a HandlerFunc with the completion rule of its request kind.
type Handler struct {
	kind Kind
	fn   HandlerFunc
}

// Kind returns the completion rule the handler was built with.
func (h Handler) Kind() Kind {
	return h.kind
}

// DataUpdate builds a handler for subscriptions and playback.
func DataUpdate(fn HandlerFunc) Handler {
	return Handler{kind: KindDataUpdate, fn: fn}
}

// ReadValues builds a handler for raw, processed and at-time reads.
func ReadValues(fn HandlerFunc) Handler {
	return Handler{kind: KindReadValues, fn: fn}
}

// ReadAttributes builds a handler for attribute reads.
func ReadAttributes(fn HandlerFunc) Handler {
	return Handler{kind: KindReadAttributes, fn: fn}
}

// ReadAnnotations builds a handler for annotation reads.
func ReadAnnotations(fn HandlerFunc) Handler {
	return Handler{kind: KindReadAnnotations, fn: fn}
}

// Update builds a handler for insert, replace and delete operations.
func Update(fn HandlerFunc) Handler {
	return Handler{kind: KindUpdate, fn: fn}
}
