package daemon

// State is the daemon lifecycle state
type State int

const (
	Stopped State = iota
	Starting
	Serving
	Draining
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for _, c := range []State{Stopped, Starting, Serving, Draining} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	*s = Stopped
	return nil
}
