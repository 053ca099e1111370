package geofence

// State is a geofence's position in the containment state machine
type State string

const (
	StateUnknown     State = ""
	StateActive      State = "active"
	StateActivated   State = "activated"
	StateInactive    State = "inactive"
	StateInactivated State = "inactivated"
)

// Next returns the state after an evaluation that found the point inside
// (or outside) the geofence. Activated and inactivated are edge states that
// last exactly one evaluation while containment is unchanged.
func (s State) Next(inside bool) State {
	if inside {
		switch s {
		case StateActive, StateActivated:
			return StateActive
		default:
			return StateActivated
		}
	}

	switch s {
	case StateInactive, StateInactivated:
		return StateInactive
	default:
		return StateInactivated
	}
}

// Valid reports whether s is one of the known states
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateActive, StateActivated, StateInactive, StateInactivated:
		return true
	}
	return false
}
