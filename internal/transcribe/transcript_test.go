package transcribe

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func utt(id, speaker, text string, offset time.Duration, final bool) Utterance {
	return Utterance{
		ID:          id,
		SpeakerID:   speaker,
		SpeakerName: speaker,
		Text:        text,
		Confidence:  0.9,
		Timestamp:   t0.Add(offset),
		IsFinal:     final,
	}
}

func TestApplyAssignsColorsInFirstAppearanceOrder(t *testing.T) {
	tr := NewTranscript("s1", t0)
	r1 := tr.Apply(utt("u1", "alice", "hi", 0, true))
	r2 := tr.Apply(utt("u2", "bob", "hello", time.Second, true))
	r3 := tr.Apply(utt("u3", "alice", "again", 2*time.Second, true))

	if r1.Color != DefaultPalette[0] || r2.Color != DefaultPalette[1] || r3.Color != DefaultPalette[0] {
		t.Fatalf("colors = %s %s %s", r1.Color, r2.Color, r3.Color)
	}
	if got := tr.SpeakerColor("bob"); got != DefaultPalette[1] {
		t.Fatalf("bob color = %s", got)
	}
}

func TestPaletteWrapsAfterSixSpeakers(t *testing.T) {
	c := NewSpeakerColors(nil)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		c.Assign(id)
	}
	if got := c.Assign("g"); got != DefaultPalette[0] {
		t.Fatalf("seventh speaker color = %s", got)
	}
	if got := c.Assign("b"); got != DefaultPalette[1] {
		t.Fatalf("existing speaker changed color: %s", got)
	}
}

func TestApplyRefinesInterimInPlace(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "alice", "hel", 0, false))
	tr.Apply(utt("u2", "bob", "yes", time.Second, false))
	r := tr.Apply(utt("u1", "alice", "hello there", 0, false))

	if r.Change != ChangeRefined {
		t.Fatalf("change = %s", r.Change)
	}
	merged := tr.Merged()
	if len(merged) != 2 {
		t.Fatalf("merged len = %d", len(merged))
	}
	if merged[0].ID != "u1" || merged[0].Text != "hello there" {
		t.Fatalf("merged[0] = %+v", merged[0])
	}
	if len(tr.Segments()) != 0 {
		t.Fatal("interim utterances must not produce segments")
	}
}

func TestApplyCommitsOnceAndIgnoresLaterMessages(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "alice", "hel", 0, false))
	r := tr.Apply(utt("u1", "alice", "hello", 0, true))
	if r.Change != ChangeCommitted {
		t.Fatalf("change = %s", r.Change)
	}
	if r.Segment.ID != "u1" || r.Segment.Text != "hello" {
		t.Fatalf("segment = %+v", r.Segment)
	}

	late := tr.Apply(utt("u1", "alice", "jello", 0, false))
	if late.Change != ChangeIgnored {
		t.Fatalf("late interim change = %s", late.Change)
	}
	again := tr.Apply(utt("u1", "alice", "hello!", 0, true))
	if again.Change != ChangeIgnored {
		t.Fatalf("duplicate final change = %s", again.Change)
	}

	segs := tr.Segments()
	if len(segs) != 1 || segs[0].Text != "hello" {
		t.Fatalf("segments = %+v", segs)
	}
	if u, _ := tr.Utterance("u1"); u.Text != "hello" {
		t.Fatalf("merged text = %q", u.Text)
	}
}

func TestApplyGeneratesMissingID(t *testing.T) {
	tr := NewTranscript("s1", t0)
	r := tr.Apply(Utterance{Text: "anon", Timestamp: t0, IsFinal: true})
	if r.Utterance.ID == "" || r.Segment.ID != r.Utterance.ID {
		t.Fatalf("generated ids = %q %q", r.Utterance.ID, r.Segment.ID)
	}
	if r.Utterance.SessionID != "s1" {
		t.Fatalf("session id = %q", r.Utterance.SessionID)
	}
}

func TestSegmentTiming(t *testing.T) {
	tr := NewTranscript("s1", t0)

	r := tr.Apply(utt("u1", "a", "default", 5*time.Second, true))
	if r.Segment.StartTime != 5*time.Second || r.Segment.EndTime != 8*time.Second {
		t.Fatalf("default timing = %s..%s", r.Segment.StartTime, r.Segment.EndTime)
	}

	u := utt("u2", "a", "measured", 10*time.Second, true)
	u.Duration = 1500 * time.Millisecond
	r = tr.Apply(u)
	if r.Segment.EndTime != 11500*time.Millisecond {
		t.Fatalf("measured end = %s", r.Segment.EndTime)
	}

	r = tr.Apply(utt("u3", "a", "early", -2*time.Second, true))
	if r.Segment.StartTime != 0 {
		t.Fatalf("clamped start = %s", r.Segment.StartTime)
	}
}

func TestZeroOriginUsesFirstTimestamp(t *testing.T) {
	tr := NewTranscript("s1", time.Time{})
	tr.Apply(utt("u1", "a", "first", 4*time.Second, true))
	r := tr.Apply(utt("u2", "a", "second", 6*time.Second, true))
	if r.Segment.StartTime != 2*time.Second {
		t.Fatalf("start = %s", r.Segment.StartTime)
	}
}

func TestSegmentsOrderedByStart(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("late", "a", "late", 9*time.Second, true))
	tr.Apply(utt("early", "a", "early", 1*time.Second, true))
	tr.Apply(utt("mid", "a", "mid", 5*time.Second, true))

	segs := tr.Segments()
	want := []string{"early", "mid", "late"}
	for i, id := range want {
		if segs[i].ID != id {
			t.Fatalf("segs[%d] = %s, want %s", i, segs[i].ID, id)
		}
	}
}

func TestEditCommittedSegmentKeepsTiming(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "a", "helo wrld", 2*time.Second, true))
	at := t0.Add(time.Minute)

	seg, err := tr.EditSegment("u1", "hello world", "instructor", at)
	if err != nil {
		t.Fatalf("EditSegment: %v", err)
	}
	if seg.Text != "hello world" || !seg.IsEdited || seg.EditedBy != "instructor" {
		t.Fatalf("edited = %+v", seg)
	}
	if seg.EditedAt == nil || !seg.EditedAt.Equal(at) {
		t.Fatalf("edited at = %v", seg.EditedAt)
	}
	if seg.StartTime != 2*time.Second || seg.EndTime != 5*time.Second {
		t.Fatalf("timing changed: %s..%s", seg.StartTime, seg.EndTime)
	}
}

func TestEditInterimFails(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "a", "partial", 0, false))

	_, err := tr.EditSegment("u1", "x", "instructor", t0)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	_, err = tr.EditSegment("missing", "x", "instructor", t0)
	if !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("err = %v, want ErrSegmentNotFound", err)
	}
}

func TestSearchFiltersTextAndSpeaker(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "alice", "Photosynthesis is fun", 0, true))
	tr.Apply(utt("u2", "bob", "what is photosynthesis", time.Second, true))
	tr.Apply(utt("u3", "bob", "lunch time", 2*time.Second, true))

	if got := tr.Search("PHOTO", ""); len(got) != 2 {
		t.Fatalf("text search = %d results", len(got))
	}
	if got := tr.Search("photo", "bob"); len(got) != 1 || got[0].ID != "u2" {
		t.Fatalf("speaker search = %+v", got)
	}
	if got := tr.Search("", "all"); len(got) != 3 {
		t.Fatalf("all = %d results", len(got))
	}
}

func TestMergeSegments(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "a", "the quick", 0, true))
	b := utt("u2", "a", "brown fox", 2*time.Second, true)
	b.Confidence = 0.7
	tr.Apply(b)
	tr.Apply(utt("u3", "a", "jumps", 10*time.Second, true))

	merged, err := tr.MergeSegments([]string{"u1", "u2"}, "instructor", t0)
	if err != nil {
		t.Fatalf("MergeSegments: %v", err)
	}
	if merged.ID != "u1" || merged.Text != "the quick brown fox" {
		t.Fatalf("merged = %+v", merged)
	}
	if merged.StartTime != 0 || merged.EndTime != 5*time.Second {
		t.Fatalf("merged timing = %s..%s", merged.StartTime, merged.EndTime)
	}
	if merged.Confidence < 0.799 || merged.Confidence > 0.801 {
		t.Fatalf("merged confidence = %v", merged.Confidence)
	}
	if segs := tr.Segments(); len(segs) != 2 {
		t.Fatalf("segments after merge = %d", len(segs))
	}

	if _, err := tr.MergeSegments([]string{"u1"}, "instructor", t0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("single merge err = %v", err)
	}
	if _, err := tr.MergeSegments([]string{"u1", "nope"}, "instructor", t0); !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("missing merge err = %v", err)
	}
}

func TestSplitSegment(t *testing.T) {
	tr := NewTranscript("s1", t0)
	u := utt("u1", "a", "one two three four", 0, true)
	u.Duration = 4 * time.Second
	tr.Apply(u)

	first, second, err := tr.SplitSegment("u1", time.Second, "instructor", t0)
	if err != nil {
		t.Fatalf("SplitSegment: %v", err)
	}
	if first.Text != "one" || second.Text != "two three four" {
		t.Fatalf("split text = %q | %q", first.Text, second.Text)
	}
	if first.EndTime != time.Second || second.StartTime != time.Second || second.EndTime != 4*time.Second {
		t.Fatalf("split timing = %s %s %s", first.EndTime, second.StartTime, second.EndTime)
	}
	if second.ID == "" || second.ID == first.ID {
		t.Fatalf("second id = %q", second.ID)
	}

	if _, _, err := tr.SplitSegment(first.ID, 0, "instructor", t0); !errors.Is(err, ErrInvalidSplit) {
		t.Fatalf("boundary split err = %v", err)
	}
	if _, _, err := tr.SplitSegment(first.ID, 500*time.Millisecond, "instructor", t0); !errors.Is(err, ErrInvalidSplit) {
		t.Fatalf("single-word split err = %v", err)
	}
}

func TestRenameSpeakerAndStats(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Apply(utt("u1", "0", "good morning class", 0, true))
	tr.Apply(utt("u2", "1", "morning", 3*time.Second, true))
	tr.Apply(utt("u3", "0", "open your books", 6*time.Second, true))

	if n := tr.RenameSpeaker("0", "Ms. Rivera"); n != 2 {
		t.Fatalf("renamed %d segments", n)
	}
	stats := tr.Stats()
	if len(stats) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[0].Speaker != "Ms. Rivera" || stats[0].Segments != 2 || stats[0].Words != 6 {
		t.Fatalf("stats[0] = %+v", stats[0])
	}
	if stats[0].TalkTime != 6*time.Second || stats[0].Color != DefaultPalette[0] {
		t.Fatalf("stats[0] = %+v", stats[0])
	}
}

func TestRestore(t *testing.T) {
	tr := NewTranscript("s1", t0)
	tr.Restore([]Segment{
		{ID: "b", SpeakerID: "1", Text: "second", StartTime: 4 * time.Second, EndTime: 5 * time.Second},
		{ID: "a", SpeakerID: "0", Text: "first", StartTime: time.Second, EndTime: 2 * time.Second},
	})
	segs := tr.Segments()
	if len(segs) != 2 || segs[0].ID != "a" {
		t.Fatalf("restored = %+v", segs)
	}
	if r := tr.Apply(utt("a", "0", "again", 0, false)); r.Change != ChangeIgnored {
		t.Fatalf("restored segment accepted update: %s", r.Change)
	}
}
