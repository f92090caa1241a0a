package hal

// Stub is a Provider with fixed input levels and writes that go nowhere.
// Inputs read the default level unless overridden with Level.
type Stub struct {
	def    bool
	levels map[PinID]bool
}

// NewStub returns a Stub whose inputs read high when high is true.
func NewStub(high bool) *Stub {
	return &Stub{def: high, levels: make(map[PinID]bool)}
}

// Level fixes the level of a single input pin. It must be called before
// the pin is handed out.
func (s *Stub) Level(id PinID, high bool) *Stub {
	s.levels[id] = high
	return s
}

// Output implements Provider.Output.
func (s *Stub) Output(id PinID) (OutputPin, error) {
	return stubOutput{}, nil
}

// Input implements Provider.Input.
func (s *Stub) Input(id PinID, pull Pull) (InputPin, error) {
	high, ok := s.levels[id]
	if !ok {
		high = s.def
	}
	return stubInput{high: high}, nil
}

type stubOutput struct{}

func (stubOutput) SetHigh() error { return nil }
func (stubOutput) SetLow() error  { return nil }

type stubInput struct{ high bool }

func (p stubInput) IsHigh() bool { return p.high }
func (p stubInput) IsLow() bool  { return !p.high }
