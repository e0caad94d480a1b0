package subtitle

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

func sampleSegments() []transcribe.Segment {
	a := seg("u1", "Alice", 1500*time.Millisecond, "Good morning.")
	b := seg("u2", "Bob", 65*time.Second, "Hi there.")
	b.EndTime = 67250 * time.Millisecond
	return []transcribe.Segment{a, b}
}

func TestExportText(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportText(&buf, sampleSegments()); err != nil {
		t.Fatal(err)
	}
	want := "[Alice]: Good morning.\n[Bob]: Hi there."
	if buf.String() != want {
		t.Fatalf("got %q\nwant %q", buf.String(), want)
	}
}

func TestExportVTT(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportVTT(&buf, sampleSegments()); err != nil {
		t.Fatal(err)
	}
	want := "WEBVTT\n\n" +
		"1\n00:00:01.500 --> 00:00:04.500\n<v Alice>Good morning.</v>\n\n" +
		"2\n00:01:05.000 --> 00:01:07.250\n<v Bob>Hi there.</v>\n\n"
	if buf.String() != want {
		t.Fatalf("got %q\nwant %q", buf.String(), want)
	}
}

func TestExportSRT(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportSRT(&buf, sampleSegments()); err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:01,500 --> 00:00:04,500\nAlice: Good morning.\n\n" +
		"2\n00:01:05,000 --> 00:01:07,250\nBob: Hi there.\n\n"
	if buf.String() != want {
		t.Fatalf("got %q\nwant %q", buf.String(), want)
	}
}

func TestExportMissingEndUsesFixedDuration(t *testing.T) {
	s := transcribe.Segment{ID: "x", SpeakerID: "2", Text: "hm", StartTime: time.Hour}
	out, err := Bytes(FormatVTT, []transcribe.Segment{s})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "01:00:00.000 --> 01:00:03.000\n<v Speaker 2>hm</v>") {
		t.Fatalf("vtt = %q", out)
	}
}

func TestExportASS(t *testing.T) {
	out, err := Bytes(FormatASS, sampleSegments())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "[Script Info]\n") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(string(out), "Dialogue: 0,0:00:01.50,0:00:04.50,Default,Alice,0,0,0,,Good morning.\n") {
		t.Fatalf("ass = %q", out)
	}
}

func TestVTTRoundTrip(t *testing.T) {
	segs := sampleSegments()
	segs = append(segs, transcribe.Segment{ID: "u3", Text: "no speaker", StartTime: 70 * time.Second, EndTime: 71 * time.Second})

	out, err := Bytes(FormatVTT, segs)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseVTT(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	if len(parsed) != len(segs) {
		t.Fatalf("parsed %d cues, want %d", len(parsed), len(segs))
	}
	for i := range segs {
		if parsed[i].StartTime != segs[i].StartTime || parsed[i].EndTime != cueEnd(segs[i]) {
			t.Errorf("cue %d timing = %s..%s", i, parsed[i].StartTime, parsed[i].EndTime)
		}
		if parsed[i].Text != segs[i].Text {
			t.Errorf("cue %d text = %q", i, parsed[i].Text)
		}
	}
	if parsed[0].Speaker != "Alice" || parsed[2].Speaker != "" {
		t.Fatalf("speakers = %q %q", parsed[0].Speaker, parsed[2].Speaker)
	}
}

func TestSRTRoundTrip(t *testing.T) {
	out, err := Bytes(FormatSRT, sampleSegments())
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseSRT(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(parsed) != 2 || parsed[1].Speaker != "Bob" || parsed[1].Text != "Hi there." {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseVTTAcceptsShortTimestampsAndNotes(t *testing.T) {
	in := "WEBVTT - lecture\r\n\r\nNOTE produced elsewhere\r\n\r\nintro\r\n00:01.000 --> 00:02.500 align:start\r\n<v.loud Ms. Rivera>Welcome\r\n"
	parsed, err := ParseVTT(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed = %+v", parsed)
	}
	p := parsed[0]
	if p.ID != "intro" || p.Speaker != "Ms. Rivera" || p.Text != "Welcome" || p.EndTime != 2500*time.Millisecond {
		t.Fatalf("cue = %+v", p)
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := ParseVTT(strings.NewReader("1\n00:00:01.000 --> 00:00:02.000\nhi\n")); !errors.Is(err, ErrMalformedCue) {
		t.Fatalf("missing header err = %v", err)
	}
	if _, err := ParseSRT(strings.NewReader("1\nsoon --> later\nhi\n")); !errors.Is(err, ErrMalformedCue) {
		t.Fatalf("bad timing err = %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExportWriteFailure(t *testing.T) {
	err := Export(failingWriter{}, FormatSRT, sampleSegments())
	if !errors.Is(err, ErrExportFailure) {
		t.Fatalf("err = %v", err)
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("format err = %v", err)
	}
}

func TestTerminalOverlayView(t *testing.T) {
	frame := Frame{
		Visible:  true,
		Settings: DefaultDisplaySettings(),
		Lines:    []Line{{Speaker: "Alice", Text: "hello class", Color: transcribe.DefaultPalette[0]}},
	}
	view := TerminalOverlay{Width: 60, Height: 5}.View(frame)
	if !strings.Contains(view, "hello class") || !strings.Contains(view, "Alice:") {
		t.Fatalf("view = %q", view)
	}
	hidden := TerminalOverlay{Width: 60, Height: 5}.View(Frame{})
	if strings.Contains(hidden, "hello") {
		t.Fatal("hidden frame rendered text")
	}
}
