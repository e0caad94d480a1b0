package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/ingest"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// Hub fans live events out to websocket clients. Slow clients drop messages
// rather than block producers.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{}), now: time.Now}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastLiveTranscript(sessionID string, seg transcribe.Segment, color string) {
	h.broadcastEvent(LiveTranscriptEvent{
		Event:     h.event("live_transcript"),
		SessionID: sessionID,
		Segment:   seg,
		Color:     color,
	})
}

func (h *Hub) BroadcastLiveTranscriptInterim(sessionID string, u transcribe.Utterance, color string) {
	h.broadcastEvent(LiveTranscriptInterimEvent{
		Event:     h.event("live_transcript_interim"),
		SessionID: sessionID,
		Utterance: u,
		Color:     color,
	})
}

func (h *Hub) BroadcastRecordingStatus(st capture.Status) {
	h.broadcastEvent(RecordingStatusEvent{
		Event:          h.event("recording_status"),
		Status:         st,
		ElapsedSeconds: st.Elapsed.Seconds(),
		Duration:       capture.FormatDuration(st.Elapsed),
		Size:           capture.FormatSize(st.TotalBytes),
	})
}

func (h *Hub) BroadcastRecordingChunk(sessionID string, seq, size int, total int64, elapsed time.Duration) {
	h.broadcastEvent(RecordingChunkEvent{
		Event:          h.event("recording_chunk"),
		SessionID:      sessionID,
		Seq:            seq,
		ChunkBytes:     size,
		TotalBytes:     total,
		ElapsedSeconds: elapsed.Seconds(),
		Size:           capture.FormatSize(total),
	})
}

func (h *Hub) BroadcastStreamStatus(sessionID string, status ingest.Status, err error) {
	ev := StreamStatusEvent{
		Event:     h.event("stream_status"),
		SessionID: sessionID,
		Status:    string(status),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.broadcastEvent(ev)
}

func (h *Hub) BroadcastSegmentEdited(sessionID, action string, segments []transcribe.Segment, removed []string) {
	h.broadcastEvent(SegmentEditedEvent{
		Event:     h.event("segment_edited"),
		SessionID: sessionID,
		Action:    action,
		Segments:  segments,
		Removed:   removed,
	})
}

func (h *Hub) BroadcastSessionStarted(sessionID string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     h.event("session_started"),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastSessionEnded(sessionID string, duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:     h.event("session_ended"),
		SessionID: sessionID,
		Duration:  duration.Seconds(),
	})
}

func (h *Hub) BroadcastSummaryReady(sessionID, summary, status, preset string) {
	h.broadcastEvent(SummaryReadyEvent{
		Event:     h.event("summary_ready"),
		SessionID: sessionID,
		Summary:   summary,
		Status:    status,
		Preset:    preset,
	})
}

func (h *Hub) event(eventType string) Event {
	return newEvent(eventType, h.now().UTC())
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal live event", "error", err)
		return
	}
	h.Broadcast(payload)
}
