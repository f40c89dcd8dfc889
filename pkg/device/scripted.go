package device

import (
	"bytes"
	"io"
	"sync"
)

const (
	OpWrite = "write"
	OpRead  = "read"
)

// ScriptedPort is a Channel for tests. Each Read hands out the next scripted
// response; every call is recorded in Ops so tests can check ordering.
type ScriptedPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	responses []string
	pending   bytes.Buffer
	written   bytes.Buffer

	// Ops records every Write and Read call in order.
	Ops []string

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes the next Write report one byte less than it was given.
	ShortWrite bool
	// ReadError is returned by the next Read call if set.
	ReadError error
	// BlockReads makes Read wait for a response or Close once the script is
	// exhausted, instead of returning io.EOF.
	BlockReads bool

	Closed     bool
	CloseCalls int
}

func NewScriptedPort(responses ...string) *ScriptedPort {
	p := &ScriptedPort{responses: responses}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *ScriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Ops = append(p.Ops, OpWrite)
	if p.Closed {
		return 0, ErrClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	p.written.Write(b)
	if p.ShortWrite {
		p.ShortWrite = false
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (p *ScriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Ops = append(p.Ops, OpRead)
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	for p.pending.Len() == 0 {
		if p.Closed {
			return 0, ErrClosed
		}
		if len(p.responses) > 0 {
			p.pending.WriteString(p.responses[0])
			p.responses = p.responses[1:]
			break
		}
		if !p.BlockReads {
			return 0, io.EOF
		}
		p.cond.Wait()
	}
	return p.pending.Read(b)
}

func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CloseCalls++
	p.Closed = true
	p.cond.Broadcast()
	return nil
}

// Push appends responses to the script and wakes a blocked reader.
func (p *ScriptedPort) Push(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.responses = append(p.responses, responses...)
	p.cond.Broadcast()
}

// Written returns everything written to the port so far.
func (p *ScriptedPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Operations returns a copy of the recorded call sequence.
func (p *ScriptedPort) Operations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Ops...)
}
