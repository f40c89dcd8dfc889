package console

import (
	"fmt"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/output"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(r sensor.Reading) error {
	fmt.Printf("%s cycle=%d Status: %s\n", r.Timestamp.Format(time.RFC3339), r.Cycle, r.Report())
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
