package transcribe

import (
	"fmt"
	"strconv"
	"strings"
)

// Word is one recognized word as reported by word-level providers.
type Word struct {
	Speaker        *int
	PunctuatedWord string
	Start          float64
	End            float64
}

// SpeakerRun is a contiguous span of words from a single speaker.
type SpeakerRun struct {
	Speaker int
	Text    string
	Start   float64
	End     float64
}

// SpeakerID returns the stable identifier used for this run's speaker.
func (r SpeakerRun) SpeakerID() string {
	if r.Speaker < 0 {
		return "unknown"
	}
	return strconv.Itoa(r.Speaker)
}

// SpeakerName returns the display label for this run's speaker.
func (r SpeakerRun) SpeakerName() string {
	if r.Speaker < 0 {
		return "Unknown"
	}
	return fmt.Sprintf("Speaker %d", r.Speaker)
}

// GroupWordsBySpeaker splits a word stream into runs at every speaker change.
// Words without a speaker are attributed to speaker -1.
func GroupWordsBySpeaker(words []Word) []SpeakerRun {
	if len(words) == 0 {
		return nil
	}

	var runs []SpeakerRun
	var current SpeakerRun
	var text strings.Builder

	for i, w := range words {
		speaker := -1
		if w.Speaker != nil {
			speaker = *w.Speaker
		}

		if i > 0 && speaker == current.Speaker {
			text.WriteByte(' ')
			text.WriteString(w.PunctuatedWord)
			current.End = w.End
			continue
		}

		if i > 0 {
			current.Text = text.String()
			runs = append(runs, current)
			text.Reset()
		}
		current = SpeakerRun{Speaker: speaker, Start: w.Start, End: w.End}
		text.WriteString(w.PunctuatedWord)
	}

	current.Text = text.String()
	return append(runs, current)
}
