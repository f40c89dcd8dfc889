package sensor

import (
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
)

// Reading is one ranging cycle as seen by the harness and outputs.
type Reading struct {
	Cycle      uint64         `json:"cycle"`
	Status     ranging.Status `json:"status"`
	DistanceCM float64        `json:"distance_cm"`
	Raw        string         `json:"raw"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Result returns the ranging result the reading was built from.
func (r Reading) Result() ranging.Result {
	return ranging.Result{Status: r.Status, DistanceCM: r.DistanceCM, Line: r.Raw}
}

// Report renders the reading the way the exerciser prints it, e.g.
// "Success 12.34 cm" or "Timed out".
func (r Reading) Report() string {
	return r.Result().String()
}

type Sensor interface {
	// Read runs one ranging cycle. On error the returned Reading still
	// carries the cycle number and timestamp.
	Read() (Reading, error)
	Close() error
}
