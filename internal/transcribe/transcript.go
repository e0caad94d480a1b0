package transcribe

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the session-scoped merge store. The ingest stream writes to
// it; renderers and exporters read snapshots from it.
type Transcript struct {
	sessionID string

	mu        sync.RWMutex
	origin    time.Time
	entries   []Utterance
	index     map[string]int
	committed map[string]bool
	segments  []Segment
	colors    *SpeakerColors
}

// NewTranscript creates an empty transcript. Segment times are measured from
// origin; a zero origin is replaced by the first utterance's timestamp.
func NewTranscript(sessionID string, origin time.Time) *Transcript {
	return &Transcript{
		sessionID: sessionID,
		origin:    origin,
		index:     make(map[string]int),
		committed: make(map[string]bool),
		colors:    NewSpeakerColors(nil),
	}
}

func (t *Transcript) SessionID() string { return t.sessionID }

func (t *Transcript) Origin() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.origin
}

// Apply merges one inbound utterance.
//
// A new id is appended to the merged view. A known, uncommitted id is
// replaced in place. The first final message for an id commits it exactly
// once and derives a segment. Any message for an already committed id is
// ignored.
func (t *Transcript) Apply(u Utterance) Result {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.SessionID == "" {
		u.SessionID = t.sessionID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.origin.IsZero() && !u.Timestamp.IsZero() {
		t.origin = u.Timestamp
	}

	color := ""
	if u.SpeakerID != "" {
		color = t.colors.Assign(u.SpeakerID)
	}

	if t.committed[u.ID] {
		return Result{Change: ChangeIgnored, Utterance: t.entries[t.index[u.ID]], Color: color}
	}

	change := ChangeInserted
	if i, ok := t.index[u.ID]; ok {
		t.entries[i] = u
		change = ChangeRefined
	} else {
		t.index[u.ID] = len(t.entries)
		t.entries = append(t.entries, u)
	}

	if !u.IsFinal {
		return Result{Change: change, Utterance: u, Color: color}
	}

	t.committed[u.ID] = true
	seg := t.segmentFor(u)
	t.insertSegment(seg)
	return Result{Change: ChangeCommitted, Utterance: u, Segment: seg, Color: color}
}

func (t *Transcript) segmentFor(u Utterance) Segment {
	start := time.Duration(0)
	if !u.Timestamp.IsZero() {
		start = u.Timestamp.Sub(t.origin)
	}
	if start < 0 {
		start = 0
	}
	end := start + DefaultCueDuration
	if u.Duration > 0 {
		end = start + u.Duration
	}
	return Segment{
		ID:         u.ID,
		SpeakerID:  u.SpeakerID,
		Speaker:    u.SpeakerName,
		Text:       u.Text,
		StartTime:  start,
		EndTime:    end,
		Confidence: u.Confidence,
		Language:   u.Language,
	}
}

// insertSegment keeps segments ordered by start time; equal starts keep
// arrival order.
func (t *Transcript) insertSegment(seg Segment) {
	i := sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].StartTime > seg.StartTime
	})
	t.segments = append(t.segments, Segment{})
	copy(t.segments[i+1:], t.segments[i:])
	t.segments[i] = seg
}

func (t *Transcript) segmentIndex(id string) int {
	for i := range t.segments {
		if t.segments[i].ID == id {
			return i
		}
	}
	return -1
}

// Merged returns interim and committed utterances in arrival order.
func (t *Transcript) Merged() []Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Utterance(nil), t.entries...)
}

// Utterance returns the current merged entry for id.
func (t *Transcript) Utterance(id string) (Utterance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		return Utterance{}, false
	}
	return t.entries[i], true
}

// IsCommitted reports whether id has received its final message.
func (t *Transcript) IsCommitted(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.committed[id]
}

// Segments returns the finalized segments ordered by start time.
func (t *Transcript) Segments() []Segment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Segment(nil), t.segments...)
}

// Segment returns one finalized segment by id.
func (t *Transcript) Segment(id string) (Segment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.segmentIndex(id); i >= 0 {
		return t.segments[i], true
	}
	return Segment{}, false
}

// SpeakerColor returns the color assigned to speakerID, if any.
func (t *Transcript) SpeakerColor(speakerID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	color, _ := t.colors.Lookup(speakerID)
	return color
}

// SpeakerColorMap returns every assignment made so far.
func (t *Transcript) SpeakerColorMap() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.colors.assigned))
	for id, color := range t.colors.assigned {
		out[id] = color
	}
	return out
}

// Search returns finalized segments matching query and speakerID.
func (t *Transcript) Search(query, speakerID string) []Segment {
	return FilterSegments(t.Segments(), query, speakerID)
}

// Stats aggregates committed speech per speaker in first-appearance order.
func (t *Transcript) Stats() []SpeakerStat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return speakerStats(t.segments, t.colors)
}

// Speaker is a participant seen by the transcript with its assigned color.
type Speaker struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Speakers lists speakers in first-appearance order.
func (t *Transcript) Speakers() []Speaker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make(map[string]string)
	for _, u := range t.entries {
		if u.SpeakerName != "" {
			names[u.SpeakerID] = u.SpeakerName
		}
	}
	out := make([]Speaker, 0, len(t.colors.order))
	for _, id := range t.colors.order {
		out = append(out, Speaker{ID: id, Name: names[id], Color: t.colors.assigned[id]})
	}
	return out
}
