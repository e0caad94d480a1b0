// Command captionview plays an exported VTT or SRT track in the terminal
// using the same overlay as the live view.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

func main() {
	var (
		names    = flag.Bool("names", true, "show speaker names")
		maxLines = flag.Int("lines", 2, "maximum caption lines")
		position = flag.String("position", "bottom", "caption position: top, center or bottom")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: captionview [flags] transcript.vtt|transcript.srt\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	segments, err := load(flag.Arg(0))
	if err != nil {
		slog.Error("load transcript", "path", flag.Arg(0), "error", err)
		os.Exit(1)
	}

	settings := subtitle.DefaultDisplaySettings()
	settings.ShowSpeakerNames = *names
	settings.MaxLines = *maxLines
	settings.Position = subtitle.Position(*position)
	if err := settings.Validate(); err != nil {
		slog.Error("invalid display settings", "error", err)
		os.Exit(2)
	}

	m := newModel(segments, settings)
	defer m.overlay.Close()
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		slog.Error("captionview", "error", err)
		os.Exit(1)
	}
}

func load(path string) ([]transcribe.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	format, err := subtitle.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}
	return subtitle.Parse(f, format)
}
