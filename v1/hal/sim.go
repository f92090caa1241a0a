package hal

import (
	"fmt"
	"sync"
)

// Write is one recorded output transition.
type Write struct {
	Pin  PinID
	High bool
}

// Sim is a Provider for tests. Outputs are recorded in order; inputs read a
// level set with SetInput or computed by a function set with SetInputFunc.
// Output pins listed with Fail return an error on every write.
type Sim struct {
	mu      sync.Mutex
	writes  []Write
	outputs map[PinID]bool
	inputs  map[PinID]func() bool
	fail    map[PinID]error
	onWrite func(Write)
}

// NewSim returns an empty Sim. Unset inputs read low.
func NewSim() *Sim {
	return &Sim{
		outputs: make(map[PinID]bool),
		inputs:  make(map[PinID]func() bool),
		fail:    make(map[PinID]error),
	}
}

// SetInput fixes an input level.
func (s *Sim) SetInput(id PinID, high bool) {
	s.SetInputFunc(id, func() bool { return high })
}

// SetInputFunc makes reads of id call fn.
func (s *Sim) SetInputFunc(id PinID, fn func() bool) {
	s.mu.Lock()
	s.inputs[id] = fn
	s.mu.Unlock()
}

// Fail makes every write to id return err.
func (s *Sim) Fail(id PinID, err error) {
	s.mu.Lock()
	s.fail[id] = err
	s.mu.Unlock()
}

// OnWrite registers a hook called after each successful write.
func (s *Sim) OnWrite(fn func(Write)) {
	s.mu.Lock()
	s.onWrite = fn
	s.mu.Unlock()
}

// Writes returns a copy of the write log.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// WritesTo returns the levels written to id, in order.
func (s *Sim) WritesTo(id PinID) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bool
	for _, w := range s.writes {
		if w.Pin == id {
			out = append(out, w.High)
		}
	}
	return out
}

// Level returns the last level written to id.
func (s *Sim) Level(id PinID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[id]
}

// Reset clears the write log.
func (s *Sim) Reset() {
	s.mu.Lock()
	s.writes = nil
	s.mu.Unlock()
}

// Output implements Provider.Output.
func (s *Sim) Output(id PinID) (OutputPin, error) {
	return &simOutput{sim: s, id: id}, nil
}

// Input implements Provider.Input.
func (s *Sim) Input(id PinID, pull Pull) (InputPin, error) {
	return &simInput{sim: s, id: id}, nil
}

func (s *Sim) write(id PinID, high bool) error {
	s.mu.Lock()
	if err := s.fail[id]; err != nil {
		s.mu.Unlock()
		return fmt.Errorf("sim: write %s: %w", id, err)
	}
	w := Write{Pin: id, High: high}
	s.writes = append(s.writes, w)
	s.outputs[id] = high
	hook := s.onWrite
	s.mu.Unlock()
	if hook != nil {
		hook(w)
	}
	return nil
}

func (s *Sim) read(id PinID) bool {
	s.mu.Lock()
	fn := s.inputs[id]
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn()
}

type simOutput struct {
	sim *Sim
	id  PinID
}

func (p *simOutput) SetHigh() error { return p.sim.write(p.id, true) }
func (p *simOutput) SetLow() error  { return p.sim.write(p.id, false) }

type simInput struct {
	sim *Sim
	id  PinID
}

func (p *simInput) IsHigh() bool { return p.sim.read(p.id) }
func (p *simInput) IsLow() bool  { return !p.sim.read(p.id) }
