// File: internal/agent/state.go
package agent

import "errors"

// ErrAlreadyRunning is returned when Run is called on an orchestrator that has
// already left the idle state.
var ErrAlreadyRunning = errors.New("orchestrator already started")

// State is the orchestrator's lifecycle phase.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
)

// validTransitions lists the allowed successors of each state. A crash is not
// a state of its own; it routes through stopping like any other exit.
var validTransitions = map[State][]State{
	StateIdle:         {StateInitializing},
	StateInitializing: {StateRunning, StateStopping},
	StateRunning:      {StateStopping},
	StateStopping:     {StateStopped},
}

func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StopReason records why the loop ended.
type StopReason string

const (
	StopTimeout   StopReason = "timeout"
	StopRequested StopReason = "stop requested"
	StopCancelled StopReason = "context cancelled"
	StopCrashed   StopReason = "crashed"
	StopInitError StopReason = "initialization failed"
)
