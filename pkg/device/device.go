// Package device opens the read/write channel an HC-SR04 exerciser talks to:
// the driver's character device, a serial bridge, or an in-process simulation.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
)

// ErrClosed is returned by channel operations after Close.
var ErrClosed = errors.New("device channel closed")

// Channel is a bidirectional conduit to the ranging device.
type Channel interface {
	io.ReadWriteCloser
}

// Open opens the channel described by cfg.
func Open(cfg config.DeviceConfig) (Channel, error) {
	switch cfg.Type {
	case config.DeviceCharDev:
		return OpenCharDevice(cfg.Path)
	case config.DeviceSerial:
		return OpenSerial(cfg.Path, cfg.Serial)
	case config.DeviceSimulation:
		return NewSimulated(cfg.Simulation), nil
	default:
		return nil, fmt.Errorf("unknown device type %q", cfg.Type)
	}
}

// OpenCharDevice opens the driver node for reading and writing. Reads block
// inside the driver until a ranging result is available.
func OpenCharDevice(path string) (Channel, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
