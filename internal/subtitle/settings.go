// Package subtitle turns finalized transcript segments into captions: the
// time-synchronized overlay and the exported subtitle tracks.
package subtitle

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Position string

const (
	PositionTop    Position = "top"
	PositionCenter Position = "center"
	PositionBottom Position = "bottom"
)

// LowConfidence is the threshold below which a line is marked uncertain.
const LowConfidence = 0.8

// DisplaySettings controls how captions are shown.
type DisplaySettings struct {
	FontSize         int      `yaml:"font_size" json:"fontSize" validate:"min=12,max=32"`
	FontFamily       string   `yaml:"font_family" json:"fontFamily" validate:"required"`
	TextColor        string   `yaml:"text_color" json:"textColor" validate:"hexcolor"`
	BackgroundColor  string   `yaml:"background_color" json:"backgroundColor" validate:"hexcolor"`
	Position         Position `yaml:"position" json:"position" validate:"oneof=top center bottom"`
	Opacity          float64  `yaml:"opacity" json:"opacity" validate:"min=0.1,max=1"`
	MaxLines         int      `yaml:"max_lines" json:"maxLines" validate:"min=1,max=5"`
	ShowSpeakerNames bool     `yaml:"show_speaker_names" json:"showSpeakerNames"`
	AutoHide         bool     `yaml:"auto_hide" json:"autoHide"`
	HideDelayMs      int      `yaml:"hide_delay_ms" json:"hideDelayMs" validate:"min=1000,max=10000"`
}

func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		FontSize:         16,
		FontFamily:       "Arial, sans-serif",
		TextColor:        "#ffffff",
		BackgroundColor:  "#000000",
		Position:         PositionBottom,
		Opacity:          1,
		MaxLines:         2,
		ShowSpeakerNames: true,
		AutoHide:         false,
		HideDelayMs:      3000,
	}
}

func (s DisplaySettings) HideDelay() time.Duration {
	return time.Duration(s.HideDelayMs) * time.Millisecond
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first constraint the settings violate.
func (s DisplaySettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid display settings: %w", err)
	}
	return nil
}
