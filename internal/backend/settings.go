// Package backend is the client for the remote transcription service: job
// control, segment edits and subtitle downloads.
package backend

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings configures a transcription job.
type Settings struct {
	Language                    string   `yaml:"language" json:"language" validate:"required"`
	EnableSpeakerIdentification bool     `yaml:"speaker_identification" json:"enableSpeakerIdentification"`
	EnableRealTime              bool     `yaml:"real_time" json:"enableRealTime"`
	EnableAutoCorrection        bool     `yaml:"auto_correction" json:"enableAutoCorrection"`
	EnablePunctuation           bool     `yaml:"punctuation" json:"enablePunctuation"`
	EnableProfanityFilter       bool     `yaml:"profanity_filter" json:"enableProfanityFilter"`
	CustomVocabulary            []string `yaml:"custom_vocabulary" json:"customVocabulary"`
	MaxSpeakers                 int      `yaml:"max_speakers" json:"maxSpeakers" validate:"min=1,max=20"`
	ConfidenceThreshold         float64  `yaml:"confidence_threshold" json:"confidenceThreshold" validate:"min=0,max=1"`
	OutputFormats               []string `yaml:"output_formats" json:"outputFormats" validate:"dive,oneof=vtt srt ass txt json"`
}

func DefaultSettings() Settings {
	return Settings{
		Language:                    "en-US",
		EnableSpeakerIdentification: true,
		EnableRealTime:              true,
		EnableAutoCorrection:        true,
		EnablePunctuation:           true,
		MaxSpeakers:                 10,
		ConfidenceThreshold:         0.8,
		OutputFormats:               []string{"vtt", "srt"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid transcription settings: %w", err)
	}
	return nil
}
