package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

var voiceTag = regexp.MustCompile(`(?s)^<v(?:\.[^ >]*)?\s+([^>]*)>(.*?)(?:</v>)?$`)

// ParseVTT reads a WebVTT track back into segments. Voice tags become the
// speaker; NOTE, STYLE and REGION blocks are skipped.
func ParseVTT(r io.Reader) ([]transcribe.Segment, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 || !strings.HasPrefix(blocks[0][0], "WEBVTT") {
		return nil, fmt.Errorf("%w: missing WEBVTT header", ErrMalformedCue)
	}

	var segments []transcribe.Segment
	for _, block := range blocks[1:] {
		switch first := block[0]; {
		case strings.HasPrefix(first, "NOTE"), first == "STYLE", first == "REGION":
			continue
		}
		seg, err := parseCue(block, len(segments)+1, vttTime)
		if err != nil {
			return nil, err
		}
		if m := voiceTag.FindStringSubmatch(seg.Text); m != nil {
			seg.Speaker = strings.TrimSpace(m[1])
			seg.SpeakerID = seg.Speaker
			seg.Text = m[2]
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// ParseSRT reads a SubRip track. A leading "name: " becomes the speaker.
func ParseSRT(r io.Reader) ([]transcribe.Segment, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, err
	}
	segments := make([]transcribe.Segment, 0, len(blocks))
	for _, block := range blocks {
		seg, err := parseCue(block, len(segments)+1, srtTime)
		if err != nil {
			return nil, err
		}
		if name, text, ok := strings.Cut(seg.Text, ": "); ok && !strings.Contains(name, "\n") {
			seg.Speaker = name
			seg.SpeakerID = name
			seg.Text = text
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// Parse dispatches on format; only VTT and SRT can be read back.
func Parse(r io.Reader, format Format) ([]transcribe.Segment, error) {
	switch format {
	case FormatVTT:
		return ParseVTT(r)
	case FormatSRT:
		return ParseSRT(r)
	default:
		return nil, fmt.Errorf("%w: cannot parse %q", ErrUnknownFormat, format)
	}
}

func parseCue(block []string, n int, parseTime func(string) (time.Duration, error)) (transcribe.Segment, error) {
	id := strconv.Itoa(n)
	if !strings.Contains(block[0], "-->") {
		id = strings.TrimSpace(block[0])
		block = block[1:]
	}
	if len(block) < 2 {
		return transcribe.Segment{}, fmt.Errorf("%w: cue %s has no text", ErrMalformedCue, id)
	}

	startRaw, rest, ok := strings.Cut(block[0], "-->")
	if !ok {
		return transcribe.Segment{}, fmt.Errorf("%w: cue %s timing %q", ErrMalformedCue, id, block[0])
	}
	endFields := strings.Fields(rest)
	if len(endFields) == 0 {
		return transcribe.Segment{}, fmt.Errorf("%w: cue %s timing %q", ErrMalformedCue, id, block[0])
	}
	start, err := parseTime(strings.TrimSpace(startRaw))
	if err != nil {
		return transcribe.Segment{}, fmt.Errorf("%w: cue %s: %w", ErrMalformedCue, id, err)
	}
	end, err := parseTime(endFields[0])
	if err != nil {
		return transcribe.Segment{}, fmt.Errorf("%w: cue %s: %w", ErrMalformedCue, id, err)
	}

	return transcribe.Segment{
		ID:         id,
		Text:       strings.Join(block[1:], "\n"),
		StartTime:  start,
		EndTime:    end,
		Confidence: 1,
	}, nil
}

// readBlocks splits input into runs of non-blank lines.
func readBlocks(r io.Reader) ([][]string, error) {
	var blocks [][]string
	var cur []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks, nil
}

func vttTime(s string) (time.Duration, error) { return clockTime(s, '.') }

func srtTime(s string) (time.Duration, error) { return clockTime(s, ',') }

// clockTime parses [HH:]MM:SS<sep>mmm.
func clockTime(s string, sep byte) (time.Duration, error) {
	clock, frac, ok := strings.Cut(s, string(sep))
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	var total int64
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total = total*60 + v
	}
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return time.Duration(total)*time.Second + time.Duration(ms)*time.Millisecond, nil
}
