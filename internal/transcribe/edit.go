package transcribe

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EditSegment replaces the text of a finalized segment. Timing and speaker
// are left untouched. Editing an utterance that is still interim fails with
// ErrInvalidState.
func (t *Transcript) EditSegment(id, text, editor string, at time.Time) (Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.segmentIndex(id)
	if i < 0 {
		if _, ok := t.index[id]; ok {
			return Segment{}, fmt.Errorf("%w: utterance %s is not final", ErrInvalidState, id)
		}
		return Segment{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}

	markEdited(&t.segments[i], editor, at)
	t.segments[i].Text = text
	if j, ok := t.index[id]; ok {
		t.entries[j].Text = text
	}
	return t.segments[i], nil
}

// MergeSegments folds the listed segments into the first one. The result
// spans the earliest start to the latest end and averages confidence.
func (t *Transcript) MergeSegments(ids []string, editor string, at time.Time) (Segment, error) {
	if len(ids) < 2 {
		return Segment{}, fmt.Errorf("%w: merge needs at least two segments", ErrInvalidState)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	positions := make([]int, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i := t.segmentIndex(id)
		if i < 0 {
			return Segment{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
		}
		positions = append(positions, i)
	}
	if len(positions) < 2 {
		return Segment{}, fmt.Errorf("%w: merge needs at least two segments", ErrInvalidState)
	}

	merged := t.segments[positions[0]]
	texts := make([]string, 0, len(positions))
	var confidence float64
	for _, i := range positions {
		s := t.segments[i]
		texts = append(texts, s.Text)
		confidence += s.Confidence
		merged.StartTime = min(merged.StartTime, s.StartTime)
		merged.EndTime = max(merged.EndTime, s.EndTime)
	}
	merged.Text = strings.Join(texts, " ")
	merged.Confidence = confidence / float64(len(positions))
	markEdited(&merged, editor, at)

	kept := t.segments[:0]
	for _, s := range t.segments {
		if !seen[s.ID] {
			kept = append(kept, s)
		}
	}
	t.segments = kept
	t.insertSegment(merged)
	if j, ok := t.index[merged.ID]; ok {
		t.entries[j].Text = merged.Text
	}
	return merged, nil
}

// SplitSegment cuts a segment in two at offset at, which must fall strictly
// inside the segment. Words are divided in proportion to elapsed time.
func (t *Transcript) SplitSegment(id string, at time.Duration, editor string, now time.Time) (Segment, Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.segmentIndex(id)
	if i < 0 {
		return Segment{}, Segment{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}
	s := t.segments[i]
	if at <= s.StartTime || at >= s.EndTime {
		return Segment{}, Segment{}, fmt.Errorf("%w: %s outside %s..%s", ErrInvalidSplit, at, s.StartTime, s.EndTime)
	}
	words := strings.Fields(s.Text)
	if len(words) < 2 {
		return Segment{}, Segment{}, fmt.Errorf("%w: segment has fewer than two words", ErrInvalidSplit)
	}

	ratio := float64(at-s.StartTime) / float64(s.EndTime-s.StartTime)
	n := int(math.Round(ratio * float64(len(words))))
	n = max(1, min(n, len(words)-1))

	first, second := s, s
	first.Text = strings.Join(words[:n], " ")
	first.EndTime = at
	second.ID = uuid.NewString()
	second.Text = strings.Join(words[n:], " ")
	second.StartTime = at
	markEdited(&first, editor, now)
	markEdited(&second, editor, now)

	t.segments = append(t.segments[:i], t.segments[i+1:]...)
	t.insertSegment(first)
	t.insertSegment(second)
	if j, ok := t.index[id]; ok {
		t.entries[j].Text = first.Text
	}
	return first, second, nil
}

// RenameSpeaker sets the display name for every segment and utterance from
// speakerID and returns the number of segments changed.
func (t *Transcript) RenameSpeaker(speakerID, name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].SpeakerID == speakerID {
			t.entries[i].SpeakerName = name
		}
	}
	n := 0
	for i := range t.segments {
		if t.segments[i].SpeakerID == speakerID {
			t.segments[i].Speaker = name
			n++
		}
	}
	return n
}

// Restore loads previously persisted segments, e.g. when reopening a session
// from storage. Existing state is replaced.
func (t *Transcript) Restore(segments []Segment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = t.entries[:0]
	t.index = make(map[string]int)
	t.committed = make(map[string]bool)
	t.segments = nil
	for _, s := range segments {
		if s.SpeakerID != "" {
			t.colors.Assign(s.SpeakerID)
		}
		t.index[s.ID] = len(t.entries)
		t.entries = append(t.entries, Utterance{
			ID:          s.ID,
			SessionID:   t.sessionID,
			SpeakerID:   s.SpeakerID,
			SpeakerName: s.Speaker,
			Text:        s.Text,
			Confidence:  s.Confidence,
			Language:    s.Language,
			Timestamp:   t.origin.Add(s.StartTime),
			IsFinal:     true,
			Duration:    s.EndTime - s.StartTime,
		})
		t.committed[s.ID] = true
		t.insertSegment(s)
	}
}

func markEdited(s *Segment, editor string, at time.Time) {
	at = at.UTC()
	s.IsEdited = true
	s.EditedBy = editor
	s.EditedAt = &at
}

// FilterSegments keeps segments whose text contains query, case-insensitively,
// and whose speaker matches speakerID. An empty speakerID or "all" matches
// every speaker.
func FilterSegments(segments []Segment, query, speakerID string) []Segment {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if speakerID != "" && speakerID != "all" && s.SpeakerID != speakerID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(s.Text), query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func speakerStats(segments []Segment, colors *SpeakerColors) []SpeakerStat {
	byID := make(map[string]*SpeakerStat)
	var order []string
	for _, s := range segments {
		st, ok := byID[s.SpeakerID]
		if !ok {
			color, _ := colors.Lookup(s.SpeakerID)
			st = &SpeakerStat{SpeakerID: s.SpeakerID, Speaker: s.Speaker, Color: color}
			byID[s.SpeakerID] = st
			order = append(order, s.SpeakerID)
		}
		st.Segments++
		st.Words += len(strings.Fields(s.Text))
		st.TalkTime += s.EndTime - s.StartTime
	}
	out := make([]SpeakerStat, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
