// Package transcribe holds the session-scoped transcript: utterances merged
// from the live stream and the finalized segments derived from them.
package transcribe

import (
	"encoding/json"
	"time"
)

// DefaultCueDuration is the display span given to a segment when the
// backend reports no end time.
const DefaultCueDuration = 3 * time.Second

// Utterance is one recognized speech span as delivered by the ingest stream.
// Interim utterances are refined in place by later messages with the same ID.
type Utterance struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	SpeakerID   string    `json:"speakerId"`
	SpeakerName string    `json:"speakerName"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	Language    string    `json:"language"`
	Timestamp   time.Time `json:"timestamp"`
	IsFinal     bool      `json:"isFinal"`

	// Duration is the spoken length when the provider reports it.
	Duration time.Duration `json:"-"`
}

// Segment is a timed, display-ready unit derived from a committed utterance.
// Times are offsets from the transcript origin, not wall-clock instants.
type Segment struct {
	ID         string        `json:"id"`
	SpeakerID  string        `json:"speaker_id"`
	Speaker    string        `json:"speaker"`
	Text       string        `json:"text"`
	StartTime  time.Duration `json:"-"`
	EndTime    time.Duration `json:"-"`
	Confidence float64       `json:"confidence"`
	Language   string        `json:"language"`
	IsEdited   bool          `json:"is_edited"`
	EditedBy   string        `json:"edited_by,omitempty"`
	EditedAt   *time.Time    `json:"edited_at,omitempty"`
}

// MarshalJSON encodes start and end times as seconds.
func (s Segment) MarshalJSON() ([]byte, error) {
	type plain Segment
	return json.Marshal(struct {
		plain
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	}{plain(s), s.StartTime.Seconds(), s.EndTime.Seconds()})
}

// Contains reports whether the cursor falls inside the segment, bounds included.
func (s Segment) Contains(cursor time.Duration) bool {
	return cursor >= s.StartTime && cursor <= s.EndTime
}

// Change describes what Apply did with an inbound utterance.
type Change int

const (
	ChangeIgnored Change = iota
	ChangeInserted
	ChangeRefined
	ChangeCommitted
)

func (c Change) String() string {
	switch c {
	case ChangeInserted:
		return "inserted"
	case ChangeRefined:
		return "refined"
	case ChangeCommitted:
		return "committed"
	default:
		return "ignored"
	}
}

// Result is the outcome of merging one utterance into a Transcript.
type Result struct {
	Change    Change
	Utterance Utterance
	// Segment is set only when Change is ChangeCommitted.
	Segment Segment
	Color   string
}

// SpeakerStat aggregates committed speech per speaker.
type SpeakerStat struct {
	SpeakerID string        `json:"speaker_id"`
	Speaker   string        `json:"speaker"`
	Color     string        `json:"color"`
	Segments  int           `json:"segments"`
	Words     int           `json:"words"`
	TalkTime  time.Duration `json:"talk_time"`
}
