package subtitle

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TerminalOverlay draws frames for a character terminal. Font size, family
// and opacity have no terminal equivalent and are ignored.
type TerminalOverlay struct {
	Width  int
	Height int
}

func (o TerminalOverlay) View(f Frame) string {
	if !f.Visible || len(f.Lines) == 0 {
		return lipgloss.Place(o.Width, o.Height, lipgloss.Center, lipgloss.Bottom, "")
	}

	box := lipgloss.NewStyle().
		Foreground(lipgloss.Color(f.Settings.TextColor)).
		Background(lipgloss.Color(f.Settings.BackgroundColor)).
		Padding(0, 1)

	rendered := make([]string, 0, len(f.Lines))
	for _, l := range f.Lines {
		var b strings.Builder
		if l.Speaker != "" {
			name := lipgloss.NewStyle().Bold(true).Background(lipgloss.Color(f.Settings.BackgroundColor))
			if l.Color != "" {
				name = name.Foreground(lipgloss.Color(l.Color))
			}
			b.WriteString(name.Render(l.Speaker + ":"))
			b.WriteString(box.UnsetPadding().Render(" "))
		}
		text := box.UnsetPadding()
		if l.LowConfidence {
			text = text.Italic(true)
		}
		b.WriteString(text.Render(l.Text))
		if l.LowConfidence {
			b.WriteString(box.UnsetPadding().Faint(true).Render(" (?)"))
		}
		rendered = append(rendered, box.Render(b.String()))
	}
	block := lipgloss.JoinVertical(lipgloss.Center, rendered...)

	return lipgloss.Place(o.Width, o.Height, lipgloss.Center, verticalPosition(f.Settings.Position), block)
}

func verticalPosition(p Position) lipgloss.Position {
	switch p {
	case PositionTop:
		return lipgloss.Top
	case PositionCenter:
		return lipgloss.Center
	default:
		return lipgloss.Bottom
	}
}
