package server

import (
	"time"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/conference"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type LiveTranscriptEvent struct {
	Event
	SessionID string             `json:"session_id"`
	Segment   transcribe.Segment `json:"segment"`
	Color     string             `json:"color,omitempty"`
}

type LiveTranscriptInterimEvent struct {
	Event
	SessionID string               `json:"session_id"`
	Utterance transcribe.Utterance `json:"utterance"`
	Color     string               `json:"color,omitempty"`
}

type RecordingStatusEvent struct {
	Event
	capture.Status
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Duration       string  `json:"duration"`
	Size           string  `json:"size"`
}

// RecordingChunkEvent reports capture progress; chunk bytes are not sent.
type RecordingChunkEvent struct {
	Event
	SessionID      string  `json:"session_id"`
	Seq            int     `json:"seq"`
	ChunkBytes     int     `json:"chunk_bytes"`
	TotalBytes     int64   `json:"total_bytes"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Size           string  `json:"size"`
}

type StreamStatusEvent struct {
	Event
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type SegmentEditedEvent struct {
	Event
	SessionID string               `json:"session_id"`
	Action    string               `json:"action"`
	Segments  []transcribe.Segment `json:"segments"`
	Removed   []string             `json:"removed,omitempty"`
}

type SessionStartedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type SessionEndedEvent struct {
	Event
	SessionID string  `json:"session_id"`
	Duration  float64 `json:"duration"`
}

type SummaryReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
	Preset    string `json:"preset,omitempty"`
}

// ConferenceCommandEvent asks the browser-side conferencing engine to run a
// command.
type ConferenceCommandEvent struct {
	Event
	Command conference.Command `json:"command"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
