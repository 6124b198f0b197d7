package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
)

// Duration limits for a single recording. Crossing WarningDuration
// raises a one-time warning event; crossing MaxDuration forces an
// automatic stop.
const (
	WarningDuration = 85 * time.Minute
	MaxDuration     = 90 * time.Minute
)

// Session is the finite state machine plus metadata for one recording.
// It carries no lock of its own: the coordinator serializes every
// mutation, and all state changes go through Transition, SetError, and
// SetProcessingStage rather than direct field writes.
type Session struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	State        State           `json:"state"`
	Stage        ProcessingStage `json:"processing_stage"`
	AudioSource  audio.Source    `json:"audio_source"`
	Duration     float64         `json:"duration_seconds"`
	SpeakerCount int             `json:"speaker_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	SessionDir   string          `json:"session_dir,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
}

// New creates an idle session with a fresh id.
func New(title string, source audio.Source) *Session {
	return &Session{
		ID:          uuid.New().String(),
		Title:       title,
		State:       StateIdle,
		Stage:       StageNone,
		AudioSource: source,
		StartedAt:   time.Now(),
	}
}

// CanTransition reports whether the edge from the current state to
// target exists in the transition table. Self-transitions are never
// valid.
func (s *Session) CanTransition(target State) bool {
	for _, next := range validTransitions[s.State] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition moves the session to target, returning
// *AlreadyInStateError when target equals the current state and
// *InvalidTransitionError when the edge is not in the table. Leaving
// StateError clears the error message.
func (s *Session) Transition(target State) error {
	if target == s.State {
		return &AlreadyInStateError{State: s.State}
	}
	if !s.CanTransition(target) {
		return &InvalidTransitionError{From: s.State, To: target}
	}
	if s.State == StateError {
		s.ErrorMessage = ""
	}
	s.State = target
	return nil
}

// SetProcessingStage updates the processing sub-phase. No-op unless the
// session is in StateProcessing.
func (s *Session) SetProcessingStage(stage ProcessingStage) {
	if s.State != StateProcessing {
		return
	}
	s.Stage = stage
}

// SetError forces the session into StateError from any state and
// records the message.
func (s *Session) SetError(message string) {
	s.State = StateError
	s.ErrorMessage = message
}

// IsActive reports whether the session is recording, paused, or
// processing.
func (s *Session) IsActive() bool {
	switch s.State {
	case StateRecording, StatePaused, StateProcessing:
		return true
	default:
		return false
	}
}

// TimeRemaining returns how long the recording may still run before the
// hard cap, never negative.
func (s *Session) TimeRemaining() time.Duration {
	remaining := MaxDuration - s.elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ShouldShowDurationWarning is true once the duration has reached the
// warning threshold but not yet the hard cap.
func (s *Session) ShouldShowDurationWarning() bool {
	d := s.elapsed()
	return d >= WarningDuration && d < MaxDuration
}

// HasReachedMaxDuration is true once the duration has hit the hard cap.
func (s *Session) HasReachedMaxDuration() bool {
	return s.elapsed() >= MaxDuration
}

func (s *Session) elapsed() time.Duration {
	return time.Duration(s.Duration * float64(time.Second))
}
