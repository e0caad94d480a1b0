package subtitle

import (
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// Line is one rendered caption.
type Line struct {
	SegmentID     string        `json:"segmentId"`
	SpeakerID     string        `json:"speakerId"`
	Speaker       string        `json:"speaker,omitempty"`
	Text          string        `json:"text"`
	Color         string        `json:"color,omitempty"`
	LowConfidence bool          `json:"lowConfidence"`
	StartTime     time.Duration `json:"-"`
}

// String renders the line as plain text, e.g. "Alice: hello (?)".
func (l Line) String() string {
	s := l.Text
	if l.Speaker != "" {
		s = l.Speaker + ": " + s
	}
	if l.LowConfidence {
		s += " (?)"
	}
	return s
}

// Active returns the segments whose interval contains cursor in chronological
// order. When more than maxLines match, only the most recently started are
// kept. segments must be sorted by start time.
func Active(cursor time.Duration, segments []transcribe.Segment, maxLines int) []transcribe.Segment {
	var active []transcribe.Segment
	for _, s := range segments {
		if s.StartTime > cursor {
			break
		}
		if s.Contains(cursor) {
			active = append(active, s)
		}
	}
	if maxLines > 0 && len(active) > maxLines {
		active = active[len(active)-maxLines:]
	}
	return active
}

// Renderer formats active segments according to display settings. Color
// looks up the speaker color and may be nil.
type Renderer struct {
	Settings DisplaySettings
	Color    func(speakerID string) string
}

func (r Renderer) Render(cursor time.Duration, segments []transcribe.Segment) []Line {
	active := Active(cursor, segments, r.Settings.MaxLines)
	lines := make([]Line, 0, len(active))
	for _, s := range active {
		line := Line{
			SegmentID:     s.ID,
			SpeakerID:     s.SpeakerID,
			Text:          s.Text,
			LowConfidence: lowConfidence(s.Confidence),
			StartTime:     s.StartTime,
		}
		if r.Settings.ShowSpeakerNames {
			line.Speaker = speakerLabel(s)
		}
		if r.Color != nil {
			line.Color = r.Color(s.SpeakerID)
		}
		lines = append(lines, line)
	}
	return lines
}

// lowConfidence treats zero as unreported; imported and restored segments
// often carry no score.
func lowConfidence(c float64) bool {
	return c > 0 && c < LowConfidence
}

func speakerLabel(s transcribe.Segment) string {
	if s.Speaker != "" {
		return s.Speaker
	}
	if s.SpeakerID != "" {
		return "Speaker " + s.SpeakerID
	}
	return ""
}
