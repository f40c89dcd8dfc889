// Package ranging implements the start/await/decode exchange with an HC-SR04
// ranging device exposed as a line-oriented read/write channel.
package ranging

import (
	"errors"
	"fmt"
	"io"
)

// StartCommand is the only command the device understands.
const StartCommand = "start\n"

// maxResponseLen bounds one response record. The longest record the device
// produces is well under this.
const maxResponseLen = 256

// Session drives ranging cycles over one open channel. A Session is not safe
// for concurrent use; cycles must be issued one after another.
type Session struct {
	ch  io.ReadWriter
	buf []byte
}

// NewSession creates a Session over ch. The session does not take ownership
// of closing ch.
func NewSession(ch io.ReadWriter) *Session {
	return &Session{ch: ch, buf: make([]byte, maxResponseLen)}
}

// Cycle sends the start command, blocks in a single read until the device
// answers and decodes the answer. The channel frames responses: whatever one
// read returns is one record, and nothing is carried over to the next cycle.
// There is no timeout; a caller that needs to abort a pending cycle closes the
// channel, which fails the read.
//
// On a transport error the returned Result has StatusUnknown.
func (s *Session) Cycle() (Result, error) {
	failed := Result{Status: StatusUnknown}

	n, err := io.WriteString(s.ch, StartCommand)
	if err != nil {
		return failed, fmt.Errorf("%w: %w", ErrChannelWrite, err)
	}
	if n != len(StartCommand) {
		return failed, fmt.Errorf("%w: %w", ErrChannelWrite, io.ErrShortWrite)
	}

	n, err = s.ch.Read(s.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return failed, fmt.Errorf("%w: %w", ErrChannelRead, err)
	}
	// data returned together with an error is still a record; the error
	// resurfaces on the next read
	return Decode(string(s.buf[:n]))
}
