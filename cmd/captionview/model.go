package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

const (
	tickInterval = 100 * time.Millisecond
	seekStep     = 5 * time.Second
)

type tickMsg time.Time

type model struct {
	segments []transcribe.Segment
	overlay  *subtitle.Overlay
	frame    subtitle.Frame

	cursor  time.Duration
	end     time.Duration
	playing bool
	width   int
	height  int
}

func newModel(segments []transcribe.Segment, settings subtitle.DisplaySettings) model {
	colors := transcribe.NewSpeakerColors(nil)
	var end time.Duration
	for _, s := range segments {
		if s.SpeakerID != "" {
			colors.Assign(s.SpeakerID)
		}
		end = max(end, s.EndTime)
	}
	overlay := subtitle.NewOverlay(subtitle.Renderer{
		Settings: settings,
		Color: func(speakerID string) string {
			c, _ := colors.Lookup(speakerID)
			return c
		},
	}, nil)
	m := model{
		segments: segments,
		overlay:  overlay,
		end:      end,
		playing:  true,
		width:    80,
		height:   24,
	}
	m.frame = overlay.Update(0, segments)
	return m
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		if m.playing {
			m.cursor = min(m.cursor+tickInterval, m.end)
			if m.cursor == m.end {
				m.playing = false
			}
		}
		m.frame = m.overlay.Update(m.cursor, m.segments)
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			if !m.playing && m.cursor >= m.end {
				m.cursor = 0
			}
			m.playing = !m.playing
		case "left", "h":
			m.cursor = max(m.cursor-seekStep, 0)
		case "right", "l":
			m.cursor = min(m.cursor+seekStep, m.end)
		case "s":
			m.overlay.SetVisible(!m.overlay.Visible())
		}
		m.frame = m.overlay.Update(m.cursor, m.segments)
		return m, nil
	}
	return m, nil
}

var statusStyle = lipgloss.NewStyle().Faint(true)

func (m model) View() string {
	state := "playing"
	if !m.playing {
		state = "paused"
	}
	status := statusStyle.Render(fmt.Sprintf(" %s / %s  %s  [space] play/pause  [←/→] seek  [s] captions  [q] quit",
		clock(m.cursor), clock(m.end), state))

	captions := subtitle.TerminalOverlay{Width: m.width, Height: max(m.height-1, 1)}.View(m.frame)
	return lipgloss.JoinVertical(lipgloss.Left, captions, status)
}

func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mm := d / time.Minute
	d -= mm * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, mm, d/time.Second)
}
