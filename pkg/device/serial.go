package device

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"go.bug.st/serial"
)

// SerialMode converts the serial options into the serial.Mode structure
// required by go.bug.st/serial when opening a port.
func SerialMode(o config.SerialConfig) (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}

// OpenSerial opens a serial bridge that speaks the driver's line protocol.
func OpenSerial(path string, opts config.SerialConfig) (Channel, error) {
	mode, err := SerialMode(opts)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return NewLineFramed(port), nil
}

// LineFramed hands out one newline-terminated record per Read. A serial port
// delivers bytes as they arrive, so without it a record could be split across
// reads.
type LineFramed struct {
	rwc io.ReadWriteCloser
	rd  *bufio.Reader
}

func NewLineFramed(rwc io.ReadWriteCloser) *LineFramed {
	return &LineFramed{rwc: rwc, rd: bufio.NewReader(rwc)}
}

func (l *LineFramed) Write(p []byte) (int, error) { return l.rwc.Write(p) }

// Read copies the next record into p. A record longer than p is truncated.
func (l *LineFramed) Read(p []byte) (int, error) {
	line, err := l.rd.ReadString('\n')
	if line == "" {
		return 0, err
	}
	return copy(p, line), nil
}

func (l *LineFramed) Close() error { return l.rwc.Close() }
