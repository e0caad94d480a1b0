package subtitle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

type Format string

const (
	FormatText Format = "txt"
	FormatVTT  Format = "vtt"
	FormatSRT  Format = "srt"
	FormatASS  Format = "ass"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatVTT, FormatSRT, FormatASS, FormatJSON:
		return f, nil
	case "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) Extension() string { return "." + string(f) }

func (f Format) ContentType() string {
	switch f {
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	case FormatASS:
		return "text/x-ssa; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Export writes segments to w in the given format.
func Export(w io.Writer, format Format, segments []transcribe.Segment) error {
	switch format {
	case FormatText:
		return ExportText(w, segments)
	case FormatVTT:
		return ExportVTT(w, segments)
	case FormatSRT:
		return ExportSRT(w, segments)
	case FormatASS:
		return ExportASS(w, segments)
	case FormatJSON:
		return exportJSON(w, segments)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Bytes renders segments in memory.
func Bytes(format Format, segments []transcribe.Segment) ([]byte, error) {
	var buf bytes.Buffer
	if err := Export(&buf, format, segments); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportText writes one "[speaker]: text" line per segment.
func ExportText(w io.Writer, segments []transcribe.Segment) error {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		name := speakerLabel(s)
		if name == "" {
			name = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", name, s.Text))
	}
	return write(w, FormatText, strings.Join(lines, "\n"))
}

func ExportVTT(w io.Writer, segments []transcribe.Segment) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, s := range segments {
		body := s.Text
		if name := speakerLabel(s); name != "" {
			body = "<v " + name + ">" + s.Text + "</v>"
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, vttTimestamp(s.StartTime), vttTimestamp(cueEnd(s)), body)
	}
	return write(w, FormatVTT, b.String())
}

func ExportSRT(w io.Writer, segments []transcribe.Segment) error {
	var b strings.Builder
	for i, s := range segments {
		body := s.Text
		if name := speakerLabel(s); name != "" {
			body = name + ": " + s.Text
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(s.StartTime), srtTimestamp(cueEnd(s)), body)
	}
	return write(w, FormatSRT, b.String())
}

const assHeader = `[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,48,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,2,0,2,10,10,40,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

func ExportASS(w io.Writer, segments []transcribe.Segment) error {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, s := range segments {
		text := strings.ReplaceAll(s.Text, "\n", `\N`)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,%s,0,0,0,,%s\n",
			assTimestamp(s.StartTime), assTimestamp(cueEnd(s)), speakerLabel(s), text)
	}
	return write(w, FormatASS, b.String())
}

func exportJSON(w io.Writer, segments []transcribe.Segment) error {
	if segments == nil {
		segments = []transcribe.Segment{}
	}
	data, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode json: %w", ErrExportFailure, err)
	}
	return write(w, FormatJSON, string(data))
}

func write(w io.Writer, format Format, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrExportFailure, format, err)
	}
	return nil
}

func cueEnd(s transcribe.Segment) time.Duration {
	if s.EndTime > s.StartTime {
		return s.EndTime
	}
	return s.StartTime + transcribe.DefaultCueDuration
}

func splitClock(d time.Duration) (h, m, s, ms int64) {
	if d < 0 {
		d = 0
	}
	total := d.Milliseconds()
	return total / 3_600_000, total / 60_000 % 60, total / 1000 % 60, total % 1000
}

func vttTimestamp(d time.Duration) string {
	h, m, s, ms := splitClock(d)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func srtTimestamp(d time.Duration) string {
	h, m, s, ms := splitClock(d)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func assTimestamp(d time.Duration) string {
	h, m, s, ms := splitClock(d)
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, ms/10)
}
