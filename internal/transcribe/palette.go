package transcribe

// DefaultPalette is the fixed speaker color cycle.
var DefaultPalette = []string{"#3B82F6", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6", "#06B6D4"}

// SpeakerColors hands out palette colors in first-appearance order. A speaker
// keeps its color for the lifetime of the assignment; the palette wraps after
// every color has been used once. It is not safe for concurrent use.
type SpeakerColors struct {
	palette  []string
	assigned map[string]string
	order    []string
}

func NewSpeakerColors(palette []string) *SpeakerColors {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &SpeakerColors{palette: palette, assigned: make(map[string]string)}
}

// Assign returns the color for speakerID, consuming the next palette entry on
// first sight.
func (c *SpeakerColors) Assign(speakerID string) string {
	if color, ok := c.assigned[speakerID]; ok {
		return color
	}
	color := c.palette[len(c.order)%len(c.palette)]
	c.assigned[speakerID] = color
	c.order = append(c.order, speakerID)
	return color
}

// Lookup returns the assigned color without assigning one.
func (c *SpeakerColors) Lookup(speakerID string) (string, bool) {
	color, ok := c.assigned[speakerID]
	return color, ok
}

// Order returns speaker ids in first-appearance order.
func (c *SpeakerColors) Order() []string {
	return append([]string(nil), c.order...)
}
