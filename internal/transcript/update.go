package transcript

import (
	"fmt"
	"strings"
)

// TranscriptUpdate is one streamed transcription result for a window of
// session audio. Timestamp is seconds from session start; AudioDuration
// is how many seconds of audio produced the text.
type TranscriptUpdate struct {
	Text          string  `json:"text"`
	Timestamp     float64 `json:"timestamp"`
	AudioDuration float64 `json:"audioDuration"`
}

// IsEmpty reports whether the text is empty after trimming whitespace.
func (u TranscriptUpdate) IsEmpty() bool {
	return strings.TrimSpace(u.Text) == ""
}

// FormattedTimestamp renders the timestamp as [MM:SS], switching to
// [HH:MM:SS] once past one hour.
func (u TranscriptUpdate) FormattedTimestamp() string {
	total := int(u.Timestamp)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("[%02d:%02d:%02d]", hours, minutes, seconds)
	}
	return fmt.Sprintf("[%02d:%02d]", minutes, seconds)
}
