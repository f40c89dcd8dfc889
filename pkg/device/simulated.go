package device

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
)

// ErrInvalidCommand is returned by the simulated device for anything other
// than a start command, like the driver's EINVAL.
var ErrInvalidCommand = errors.New("invalid device command")

const (
	// nsPerHundredthCM converts echo time to hundredths of a centimetre:
	// sound covers one centimetre there and back in about 58.14us.
	nsPerHundredthCM = 58140 / 100
	// echoTimeout matches the driver's default ranging timeout.
	echoTimeout = 300 * time.Millisecond
)

// Simulated emulates the HC-SR04 character device. A write of "start" arms a
// measurement; the next read returns "status,sec:nsec,raw". Reads without a
// pending start report Not started.
type Simulated struct {
	mu      sync.Mutex
	rng     *rand.Rand
	opts    config.SimulationConfig
	started bool
	pending bytes.Buffer
	closed  bool
}

func NewSimulated(opts config.SimulationConfig) *Simulated {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{rng: rand.New(rand.NewSource(seed)), opts: opts}
}

func (s *Simulated) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if !isStartCommand(string(p)) {
		return 0, ErrInvalidCommand
	}
	s.started = true
	return len(p), nil
}

func (s *Simulated) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.pending.Len() == 0 {
		s.pending.WriteString(s.measure())
	}
	return s.pending.Read(p)
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Simulated) measure() string {
	if !s.started {
		return "3,0:0,0\n"
	}
	s.started = false

	if s.rng.Float64() < s.opts.TimeoutRate {
		return fmt.Sprintf("2,%s,0\n", formatEcho(echoTimeout))
	}
	cm := s.opts.MinCM + s.rng.Float64()*(s.opts.MaxCM-s.opts.MinCM)
	raw := int64(cm * 100)
	echo := time.Duration(raw * nsPerHundredthCM)
	return fmt.Sprintf("0,%s,%d\n", formatEcho(echo), raw)
}

func formatEcho(d time.Duration) string {
	return fmt.Sprintf("%d:%d", d/time.Second, d%time.Second)
}

// isStartCommand accepts "start" as the first word, case-insensitive, with
// optional surrounding whitespace.
func isStartCommand(cmd string) bool {
	cmd = strings.TrimLeftFunc(cmd, unicode.IsSpace)
	if len(cmd) < len("start") || !strings.EqualFold(cmd[:len("start")], "start") {
		return false
	}
	rest := cmd[len("start"):]
	return rest == "" || unicode.IsSpace(rune(rest[0])) || rest[0] == 0
}
