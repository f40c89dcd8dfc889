package output

import (
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"periph.io/x/conn/v3/physic"
)

type Output interface {
	Publish(sensor.Reading) error
	Close() error
}

// Document is the JSON shape shared by the networked outputs.
type Document struct {
	Cycle      uint64    `json:"cycle"`
	Status     string    `json:"status"`
	Code       int       `json:"code"`
	DistanceCM *float64  `json:"distance_cm,omitempty"`
	DistanceM  *float64  `json:"distance_m,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewDocument(r sensor.Reading) Document {
	d := Document{
		Cycle:     r.Cycle,
		Status:    r.Status.String(),
		Code:      r.Status.Code(),
		Raw:       r.Raw,
		Timestamp: r.Timestamp,
	}
	res := r.Result()
	if cm, ok := res.Distance(); ok {
		d.DistanceCM = &cm
		m := float64(res.Range()) / float64(physic.Metre)
		d.DistanceM = &m
	}
	return d
}

