package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjawhar/classroom-live/internal/conference"
)

const eventTimeout = 10 * time.Second

// Attach subscribes the manager to conference events: recording status
// drives local capture, transcription chunks feed the transcript and leaving
// the conference tears the live view down. The returned func detaches.
func (m *Manager) Attach(bus *conference.Bus) (detach func()) {
	tokens := []conference.Token{
		bus.Subscribe(conference.EventRecordingStatusChanged, m.onRecordingStatus),
		bus.Subscribe(conference.EventTranscriptionChunkReceived, m.onTranscriptionChunk),
		bus.Subscribe(conference.EventConferenceLeft, m.onConferenceLeft),
	}
	return func() {
		for _, t := range tokens {
			bus.Unsubscribe(t)
		}
	}
}

func (m *Manager) onRecordingStatus(ev conference.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	active := m.cfg.Recorder.State().Active()
	switch {
	case ev.Recording && !active:
		if err := m.StartRecording(ctx); err != nil {
			slog.Warn("start recording from conference", "room", ev.RoomName, "error", err)
		}
	case !ev.Recording && active:
		if _, err := m.StopRecording(ctx); err != nil {
			slog.Warn("stop recording from conference", "room", ev.RoomName, "error", err)
		}
	}
}

func (m *Manager) onTranscriptionChunk(ev conference.Event) {
	if ev.Chunk == nil {
		return
	}

	s := m.current()
	if s == nil {
		m.lifecycle.Lock()
		var err error
		s, err = m.ensureLocked()
		m.lifecycle.Unlock()
		if err != nil {
			slog.Warn("open session for transcription chunk", "error", err)
			return
		}
	}
	s.client.Ingest(*ev.Chunk)
}

func (m *Manager) onConferenceLeft(ev conference.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := m.Teardown(ctx); err != nil {
		slog.Warn("tear down after leaving conference", "room", ev.RoomName, "error", err)
	}
}
