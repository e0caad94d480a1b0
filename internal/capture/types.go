// Package capture records one local media session at a time: chunked capture
// on a fixed flush tick, pause and resume, and final assembly into one blob.
package capture

import (
	"time"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// Active reports whether the state holds a device stream.
func (s State) Active() bool {
	return s == StateRecording || s == StatePaused
}

type VideoConstraints struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	Width     int  `yaml:"width" json:"width"`
	Height    int  `yaml:"height" json:"height"`
	FrameRate int  `yaml:"frame_rate" json:"frameRate"`
}

type AudioConstraints struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	EchoCancellation bool `yaml:"echo_cancellation" json:"echoCancellation"`
	NoiseSuppression bool `yaml:"noise_suppression" json:"noiseSuppression"`
	AutoGainControl  bool `yaml:"auto_gain_control" json:"autoGainControl"`
	SampleRate       int  `yaml:"sample_rate" json:"sampleRate"`
	ChannelCount     int  `yaml:"channel_count" json:"channelCount"`
}

type Constraints struct {
	Video VideoConstraints `yaml:"video" json:"video"`
	Audio AudioConstraints `yaml:"audio" json:"audio"`
}

func DefaultConstraints() Constraints {
	return Constraints{
		Video: VideoConstraints{Enabled: true, Width: 1920, Height: 1080, FrameRate: 30},
		Audio: AudioConstraints{
			Enabled:          true,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       48000,
			ChannelCount:     2,
		},
	}
}

// Blob is the assembled recording.
type Blob struct {
	Data       []byte
	MimeType   string
	Size       int64
	Duration   time.Duration
	Chunks     int
	SampleRate int
	Channels   int
}

type EventKind string

const (
	EventChunk EventKind = "chunk"
	EventState EventKind = "state"
	EventError EventKind = "error"
)

// Event is delivered to subscribers. Chunk is only set for EventChunk and
// must not be modified.
type Event struct {
	Kind       EventKind
	SessionID  string
	State      State
	Chunk      []byte
	Seq        int
	TotalBytes int64
	Elapsed    time.Duration
	Err        error
}

// Status is a point-in-time view of the engine.
type Status struct {
	SessionID  string        `json:"session_id,omitempty"`
	State      State         `json:"state"`
	MimeType   string        `json:"mime_type,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	Elapsed    time.Duration `json:"-"`
	TotalBytes int64         `json:"total_bytes"`
	Chunks     int           `json:"chunks"`
	Error      string        `json:"error,omitempty"`
}
