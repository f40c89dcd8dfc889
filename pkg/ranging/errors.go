package ranging

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelWrite is returned when the start command could not be written.
	ErrChannelWrite = errors.New("channel write failed")
	// ErrChannelRead is returned when no response could be read, including
	// end-of-stream before any byte arrived.
	ErrChannelRead = errors.New("channel read failed")
	// ErrProtocolDecode is returned when the device reported success but the
	// distance field is not a number.
	ErrProtocolDecode = errors.New("protocol decode failed")
)

// DecodeError describes a response that claimed success but broke the value
// contract. It matches ErrProtocolDecode with errors.Is.
type DecodeError struct {
	Line  string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: field %s in %q: %v", ErrProtocolDecode, e.Field, e.Line, e.Err)
}

func (e *DecodeError) Is(target error) bool { return target == ErrProtocolDecode }

func (e *DecodeError) Unwrap() error { return e.Err }
