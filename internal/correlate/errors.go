package correlate

import (
	"errors"
	"fmt"
)

// ErrUnknownTransaction reports an id that is not in the registry, either
// because it was never registered or because it already completed.
var ErrUnknownTransaction = errors.New("unknown transaction")

// HandlerFault records a handler that returned an error or panicked.
// Faults are logged and counted by the registry, never returned to the
// transport.
type HandlerFault struct {
	RequestID ID
	Kind      Kind

	// Err is the handler's error, or the recovered panic wrapped as an error.
	Err error

	// Panicked is true when the handler panicked rather than returning Err.
	Panicked bool
}

func (f *HandlerFault) Error() string {
	verb := "failed"
	if f.Panicked {
		verb = "panicked"
	}
	return fmt.Sprintf("%s handler for request %d %s: %v", f.Kind, f.RequestID, verb, f.Err)
}

func (f *HandlerFault) Unwrap() error {
	return f.Err
}

// IsHandlerFault reports whether err is or wraps a HandlerFault.
func IsHandlerFault(err error) bool {
	var hf *HandlerFault
	return errors.As(err, &hf)
}
