package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/device"
	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
	"github.com/sirupsen/logrus"
)

type HCSR04Sensor struct {
	ch      device.Channel
	session *ranging.Session
	log     logrus.FieldLogger
	now     func() time.Time
	cycle   uint64

	closeOnce sync.Once
	closeErr  error
}

// NewHCSR04Sensor opens the device described by cfg and returns a sensor that
// owns it.
func NewHCSR04Sensor(cfg config.DeviceConfig, log logrus.FieldLogger) (Sensor, error) {
	ch, err := device.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	log.WithFields(logrus.Fields{"type": cfg.Type, "path": cfg.Path}).Info("device opened")
	return NewHCSR04SensorWithChannel(ch, log), nil
}

// NewHCSR04SensorWithChannel wraps an already open channel. The sensor takes
// ownership of ch and closes it on Close.
func NewHCSR04SensorWithChannel(ch device.Channel, log logrus.FieldLogger) *HCSR04Sensor {
	return &HCSR04Sensor{
		ch:      ch,
		session: ranging.NewSession(ch),
		log:     log,
		now:     time.Now,
	}
}

func (s *HCSR04Sensor) Read() (Reading, error) {
	s.cycle++
	res, err := s.session.Cycle()
	r := newReading(s.cycle, res, s.now())
	if res.Line != "" {
		s.log.WithField("cycle", r.Cycle).Debugf("raw response %q", res.Line)
	}
	if err != nil {
		return r, fmt.Errorf("cycle %d: %w", r.Cycle, err)
	}
	return r, nil
}

// Close releases the device channel. It is safe to call from another
// goroutine while Read is blocked, and only the first call reaches the
// channel.
func (s *HCSR04Sensor) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ch.Close()
	})
	return s.closeErr
}
