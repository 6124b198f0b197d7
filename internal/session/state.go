package session

import "fmt"

// State is the lifecycle phase of a meeting session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateProcessing
	StateComplete
	StateError
)

// String returns the lowercase name used in logs, events, and the API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalJSON renders the state as its string name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// validTransitions is the adjacency table of the session state machine.
// Self-edges are intentionally absent: transitioning to the current
// state is always AlreadyInStateError.
var validTransitions = map[State][]State{
	StateIdle:       {StateRecording},
	StateRecording:  {StatePaused, StateProcessing, StateError},
	StatePaused:     {StateRecording, StateProcessing, StateError},
	StateProcessing: {StateComplete, StateError},
	StateComplete:   {StateIdle},
	StateError:      {StateIdle, StateRecording},
}

// ProcessingStage is the sub-phase of StateProcessing used for progress
// reporting only.
type ProcessingStage int

const (
	StageNone ProcessingStage = iota
	StageTranscribing
	StageDiarizing
	StageSummarizing
	StageComplete
)

// String returns the lowercase stage name.
func (p ProcessingStage) String() string {
	switch p {
	case StageNone:
		return "none"
	case StageTranscribing:
		return "transcribing"
	case StageDiarizing:
		return "diarizing"
	case StageSummarizing:
		return "summarizing"
	case StageComplete:
		return "complete"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// MarshalJSON renders the stage as its string name.
func (p ProcessingStage) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Progress returns the fixed progress fraction for the stage.
func (p ProcessingStage) Progress() float64 {
	switch p {
	case StageTranscribing:
		return 0.25
	case StageDiarizing:
		return 0.50
	case StageSummarizing:
		return 0.75
	case StageComplete:
		return 1.0
	default:
		return 0.0
	}
}

// AlreadyInStateError reports a transition whose target equals the
// current state. It signals a caller bug, not a runtime condition.
type AlreadyInStateError struct {
	State State
}

func (e *AlreadyInStateError) Error() string {
	return fmt.Sprintf("session already in state %s", e.State)
}

// InvalidTransitionError reports an edge missing from the transition
// table.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition from %s to %s", e.From, e.To)
}
