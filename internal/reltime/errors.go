package reltime

import (
	"errors"
	"fmt"
)

// FormatError reports malformed relative time text.
type FormatError struct {
	// Input is the text that failed to parse.
	Input string

	// Pos is the byte offset of the offending character. It equals
	// len(Input) when the text ended in the middle of an offset.
	Pos int

	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid time %q at offset %d: %s", e.Input, e.Pos, e.Message)
}

// IsFormatError reports whether err is or wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
