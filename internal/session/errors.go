package session

import (
	"errors"
	"fmt"

	"github.com/roach88/histsess/internal/correlate"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrNoNamespace is returned by Browse when the transport cannot browse.
	ErrNoNamespace = errors.New("transport does not support browsing")
)

// TransportFault reports a failed initiating or cancel call. The request
// involved has already been resolved in the registry.
type TransportFault struct {
	Op        string
	RequestID correlate.ID
	Err       error
}

func (f *TransportFault) Error() string {
	return fmt.Sprintf("%s (request %d): transport: %v", f.Op, f.RequestID, f.Err)
}

func (f *TransportFault) Unwrap() error {
	return f.Err
}

// IsTransportFault reports whether err is or wraps a TransportFault.
func IsTransportFault(err error) bool {
	var tf *TransportFault
	return errors.As(err, &tf)
}
