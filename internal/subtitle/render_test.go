package subtitle

import (
	"testing"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

func seg(id, speaker string, start time.Duration, text string) transcribe.Segment {
	return transcribe.Segment{
		ID:         id,
		SpeakerID:  speaker,
		Speaker:    speaker,
		Text:       text,
		StartTime:  start,
		EndTime:    start + transcribe.DefaultCueDuration,
		Confidence: 0.95,
	}
}

func TestActiveAtCursor(t *testing.T) {
	segs := []transcribe.Segment{
		seg("a", "Alice", 0, "zero"),
		seg("b", "Alice", 5*time.Second, "five"),
		seg("c", "Alice", 10*time.Second, "ten"),
	}
	got := Active(6*time.Second, segs, 2)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("active = %+v", got)
	}
	if got := Active(3*time.Second, segs, 2); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("end bound inclusive: %+v", got)
	}
	if got := Active(9*time.Second, segs, 2); len(got) != 0 {
		t.Fatalf("gap: %+v", got)
	}
}

func TestActiveKeepsMostRecentlyStarted(t *testing.T) {
	segs := []transcribe.Segment{
		seg("a", "A", 0, "one"),
		seg("b", "B", time.Second, "two"),
		seg("c", "C", 2*time.Second, "three"),
	}
	got := Active(2500*time.Millisecond, segs, 2)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("active = %+v", got)
	}
}

func TestRendererLines(t *testing.T) {
	low := seg("a", "Alice", 0, "maybe")
	low.Confidence = 0.5
	segs := []transcribe.Segment{low, seg("b", "Bob", time.Second, "sure")}

	settings := DefaultDisplaySettings()
	r := Renderer{Settings: settings, Color: func(id string) string { return "#" + id }}
	lines := r.Render(1500*time.Millisecond, segs)
	if len(lines) != 2 {
		t.Fatalf("lines = %+v", lines)
	}
	if got := lines[0].String(); got != "Alice: maybe (?)" {
		t.Fatalf("line 0 = %q", got)
	}
	if got := lines[1].String(); got != "Bob: sure" {
		t.Fatalf("line 1 = %q", got)
	}
	if lines[1].Color != "#Bob" {
		t.Fatalf("color = %q", lines[1].Color)
	}

	settings.ShowSpeakerNames = false
	r.Settings = settings
	if got := r.Render(1500*time.Millisecond, segs)[1].String(); got != "sure" {
		t.Fatalf("unnamed line = %q", got)
	}
}

func TestRendererUnscoredSegmentIsNotUncertain(t *testing.T) {
	unscored := seg("a", "Alice", 0, "imported line")
	unscored.Confidence = 0
	edge := seg("b", "Bob", 0, "right at threshold")
	edge.Confidence = LowConfidence

	lines := Renderer{Settings: DefaultDisplaySettings()}.Render(time.Second, []transcribe.Segment{unscored, edge})
	if len(lines) != 2 {
		t.Fatalf("lines = %+v", lines)
	}
	for _, l := range lines {
		if l.LowConfidence {
			t.Fatalf("line %s marked uncertain: %+v", l.SegmentID, l)
		}
	}
	if got := lines[0].String(); got != "Alice: imported line" {
		t.Fatalf("line 0 = %q", got)
	}
}

func TestDisplaySettingsValidate(t *testing.T) {
	if err := DefaultDisplaySettings().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cases := map[string]func(*DisplaySettings){
		"font size":  func(s *DisplaySettings) { s.FontSize = 40 },
		"opacity":    func(s *DisplaySettings) { s.Opacity = 0 },
		"max lines":  func(s *DisplaySettings) { s.MaxLines = 6 },
		"position":   func(s *DisplaySettings) { s.Position = "left" },
		"hide delay": func(s *DisplaySettings) { s.HideDelayMs = 500 },
		"color":      func(s *DisplaySettings) { s.TextColor = "white" },
	}
	for name, mutate := range cases {
		s := DefaultDisplaySettings()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
