package sensor

import (
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
)

// newReading copies a ranging result into a Reading stamped with cycle and ts.
func newReading(cycle uint64, res ranging.Result, ts time.Time) Reading {
	r := Reading{Cycle: cycle, Status: res.Status, Raw: res.Line, Timestamp: ts}
	if cm, ok := res.Distance(); ok {
		r.DistanceCM = cm
	}
	return r
}
