package session

import (
	"context"
	"time"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/ingest"
	"github.com/sjawhar/classroom-live/internal/storage"
	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

type Store interface {
	CreateSession(id string, startedAt time.Time) error
	EndSession(id string, endedAt time.Time, rec storage.Recording) error
	UpsertSegment(sessionID string, seg transcribe.Segment) error
	DeleteSegment(sessionID, segmentID string) error
	GetSegments(sessionID string) ([]transcribe.Segment, error)
	UpdateSummary(sessionID, summary, status, preset string) error
}

// Recorder is the local capture engine driven by the live view.
type Recorder interface {
	Start(ctx context.Context, sessionID string, c capture.Constraints) error
	Pause() bool
	Resume() bool
	Stop() (capture.Blob, error)
	SnapshotBlob() (capture.Blob, error)
	Subscribe(fn func(capture.Event)) (unsubscribe func())
	State() capture.State
	Status() capture.Status
	Dispose()
}

type FileWriter interface {
	SaveRecording(blob capture.Blob, at time.Time) (string, capture.Blob, error)
	SaveExport(sessionID string, at time.Time, format subtitle.Format, segments []transcribe.Segment) (string, error)
}

// Uploader copies finished session files to remote storage.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, sessionID, transcript string) (summary, preset string, err error)
	SummarizeWithPreset(ctx context.Context, sessionID, transcript, preset string) (string, error)
}

// SegmentMirror propagates transcript edits to the transcription backend.
type SegmentMirror interface {
	EditSegment(ctx context.Context, segmentID, text string) (transcribe.Segment, error)
}

type EventBroadcaster interface {
	BroadcastSessionStarted(sessionID string)
	BroadcastSessionEnded(sessionID string, duration time.Duration)
	BroadcastLiveTranscript(sessionID string, seg transcribe.Segment, color string)
	BroadcastLiveTranscriptInterim(sessionID string, u transcribe.Utterance, color string)
	BroadcastRecordingStatus(status capture.Status)
	BroadcastRecordingChunk(sessionID string, seq, size int, total int64, elapsed time.Duration)
	BroadcastStreamStatus(sessionID string, status ingest.Status, err error)
	BroadcastSegmentEdited(sessionID, action string, segments []transcribe.Segment, removed []string)
	BroadcastSummaryReady(sessionID, summary, status, preset string)
}

// Status is a snapshot of the live view.
type Status struct {
	SessionID string               `json:"session_id,omitempty"`
	StartedAt time.Time            `json:"started_at,omitzero"`
	Recording capture.Status       `json:"recording"`
	Stream    ingest.Status        `json:"stream,omitempty"`
	Segments  int                  `json:"segments"`
	Speakers  []transcribe.Speaker `json:"speakers"`
	Captions  bool                 `json:"captions_visible"`
}
