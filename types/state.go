package types

// State represents the host lifecycle state.
//
// States follow a defined progression:
//
//	StateInit → StateStarting → StateRunning → StateStopping → StateStopped
//
// A host that failed to start returns to StateInit and may be started again.
type State int

const (
	// StateInit is the initial state before Start is called.
	StateInit State = iota

	// StateStarting indicates the host is bootstrapping leases.
	StateStarting

	// StateRunning indicates the acquire and renew loops are active.
	StateRunning

	// StateStopping indicates graceful shutdown is in progress.
	StateStopping

	// StateStopped is terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
