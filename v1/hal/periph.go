package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var initHost = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// Periph is a Provider backed by the host's GPIO through periph.io.
type Periph struct{}

// NewPeriph initialises the periph host drivers once per process.
func NewPeriph() (*Periph, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("hal: periph init: %w", err)
	}
	return &Periph{}, nil
}

func lookup(id PinID) (gpio.PinIO, error) {
	p := gpioreg.ByName(id.String())
	if p == nil {
		return nil, fmt.Errorf("hal: no such pin %s", id)
	}
	return p, nil
}

// Output implements Provider.Output. The pin starts low.
func (Periph) Output(id PinID) (OutputPin, error) {
	p, err := lookup(id)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hal: %s as output: %w", id, err)
	}
	return periphOutput{p: p}, nil
}

// Input implements Provider.Input.
func (Periph) Input(id PinID, pull Pull) (InputPin, error) {
	p, err := lookup(id)
	if err != nil {
		return nil, err
	}
	bias := gpio.Float
	switch pull {
	case PullUp:
		bias = gpio.PullUp
	case PullDown:
		bias = gpio.PullDown
	}
	if err := p.In(bias, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("hal: %s as input: %w", id, err)
	}
	return periphInput{p: p}, nil
}

type periphOutput struct{ p gpio.PinIO }

func (o periphOutput) SetHigh() error { return o.p.Out(gpio.High) }
func (o periphOutput) SetLow() error  { return o.p.Out(gpio.Low) }

type periphInput struct{ p gpio.PinIO }

func (i periphInput) IsHigh() bool { return i.p.Read() == gpio.High }
func (i periphInput) IsLow() bool  { return i.p.Read() == gpio.Low }
