package session

import (
	"errors"
	"testing"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
)

var allStates = []State{
	StateIdle, StateRecording, StatePaused, StateProcessing, StateComplete, StateError,
}

// expectedEdges restates the intended transition table independently of
// the implementation so the exhaustive test is not circular.
var expectedEdges = map[State]map[State]bool{
	StateIdle:       {StateRecording: true},
	StateRecording:  {StatePaused: true, StateProcessing: true, StateError: true},
	StatePaused:     {StateRecording: true, StateProcessing: true, StateError: true},
	StateProcessing: {StateComplete: true, StateError: true},
	StateComplete:   {StateIdle: true},
	StateError:      {StateIdle: true, StateRecording: true},
}

func TestTransitionTableExhaustive(t *testing.T) {
	for _, from := range allStates {
		for _, to := range allStates {
			s := New("exhaustive", audio.SourceMicrophone)
			s.State = from

			valid := expectedEdges[from][to]
			if got := s.CanTransition(to); got != valid {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", from, to, got, valid)
			}

			err := s.Transition(to)
			switch {
			case from == to:
				var already *AlreadyInStateError
				if !errors.As(err, &already) {
					t.Errorf("Transition(%s -> %s) = %v, want AlreadyInStateError", from, to, err)
				} else if already.State != from {
					t.Errorf("AlreadyInStateError.State = %s, want %s", already.State, from)
				}
				if s.State != from {
					t.Errorf("failed self-transition mutated state to %s", s.State)
				}
			case valid:
				if err != nil {
					t.Errorf("Transition(%s -> %s) failed: %v", from, to, err)
				}
				if s.State != to {
					t.Errorf("Transition(%s -> %s) left state %s", from, to, s.State)
				}
			default:
				var invalid *InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Errorf("Transition(%s -> %s) = %v, want InvalidTransitionError", from, to, err)
				} else if invalid.From != from || invalid.To != to {
					t.Errorf("InvalidTransitionError = %s -> %s, want %s -> %s",
						invalid.From, invalid.To, from, to)
				}
				if s.State != from {
					t.Errorf("rejected transition mutated state to %s", s.State)
				}
			}
		}
	}
}

func TestLeavingErrorClearsMessage(t *testing.T) {
	s := New("errored", audio.SourceBoth)
	s.State = StateRecording

	s.SetError("capture device vanished")
	if s.State != StateError {
		t.Fatalf("SetError left state %s", s.State)
	}
	if s.ErrorMessage != "capture device vanished" {
		t.Fatalf("unexpected error message %q", s.ErrorMessage)
	}

	if err := s.Transition(StateRecording); err != nil {
		t.Fatalf("error -> recording failed: %v", err)
	}
	if s.ErrorMessage != "" {
		t.Errorf("error message survived transition away from error: %q", s.ErrorMessage)
	}
}

func TestSetErrorForcesFromAnyState(t *testing.T) {
	for _, from := range allStates {
		s := New("forced", audio.SourceMicrophone)
		s.State = from
		s.SetError("boom")
		if s.State != StateError || s.ErrorMessage != "boom" {
			t.Errorf("SetError from %s: state %s message %q", from, s.State, s.ErrorMessage)
		}
	}
}

func TestSetProcessingStageGatedOnProcessing(t *testing.T) {
	s := New("staged", audio.SourceMicrophone)

	// Not processing: stage writes are ignored.
	s.SetProcessingStage(StageTranscribing)
	if s.Stage != StageNone {
		t.Errorf("stage mutated outside processing: %s", s.Stage)
	}

	s.State = StateProcessing
	s.SetProcessingStage(StageDiarizing)
	if s.Stage != StageDiarizing {
		t.Errorf("stage = %s, want diarizing", s.Stage)
	}
}

func TestProcessingStageProgress(t *testing.T) {
	cases := []struct {
		stage ProcessingStage
		want  float64
	}{
		{StageNone, 0.0},
		{StageTranscribing, 0.25},
		{StageDiarizing, 0.50},
		{StageSummarizing, 0.75},
		{StageComplete, 1.0},
	}
	for _, tc := range cases {
		if got := tc.stage.Progress(); got != tc.want {
			t.Errorf("Progress(%s) = %v, want %v", tc.stage, got, tc.want)
		}
	}
}

func TestIsActive(t *testing.T) {
	active := map[State]bool{
		StateIdle:       false,
		StateRecording:  true,
		StatePaused:     true,
		StateProcessing: true,
		StateComplete:   false,
		StateError:      false,
	}
	for state, want := range active {
		s := New("active", audio.SourceMicrophone)
		s.State = state
		if got := s.IsActive(); got != want {
			t.Errorf("IsActive(%s) = %v, want %v", state, got, want)
		}
	}
}

func TestDurationThresholds(t *testing.T) {
	cases := []struct {
		minutes     float64
		warning     bool
		reachedMax  bool
		remainingOK func(time.Duration) bool
	}{
		{0, false, false, func(d time.Duration) bool { return d == 90*time.Minute }},
		{84.99, false, false, func(d time.Duration) bool { return d > 5*time.Minute }},
		{85, true, false, func(d time.Duration) bool { return d == 5*time.Minute }},
		{89.5, true, false, func(d time.Duration) bool { return d == 30*time.Second }},
		{90, false, true, func(d time.Duration) bool { return d == 0 }},
		{95, false, true, func(d time.Duration) bool { return d == 0 }},
	}
	for _, tc := range cases {
		s := New("timed", audio.SourceMicrophone)
		s.Duration = tc.minutes * 60
		if got := s.ShouldShowDurationWarning(); got != tc.warning {
			t.Errorf("%v min: warning = %v, want %v", tc.minutes, got, tc.warning)
		}
		if got := s.HasReachedMaxDuration(); got != tc.reachedMax {
			t.Errorf("%v min: reached max = %v, want %v", tc.minutes, got, tc.reachedMax)
		}
		if rem := s.TimeRemaining(); !tc.remainingOK(rem) {
			t.Errorf("%v min: unexpected time remaining %v", tc.minutes, rem)
		}
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := New("kickoff sync", audio.SourceBoth)
	if s.ID == "" {
		t.Error("expected generated session id")
	}
	if s.State != StateIdle {
		t.Errorf("initial state = %s, want idle", s.State)
	}
	if s.Stage != StageNone {
		t.Errorf("initial stage = %s, want none", s.Stage)
	}
	if s.Title != "kickoff sync" || s.AudioSource != audio.SourceBoth {
		t.Errorf("metadata not captured: %+v", s)
	}

	other := New("kickoff sync", audio.SourceBoth)
	if other.ID == s.ID {
		t.Error("two sessions share an id")
	}
}
