// Package session owns the live classroom view: one capture run, one
// transcription channel and the transcript they feed, plus what happens to
// them once the lecture ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/classroom-live/internal/backend"
	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/ingest"
	"github.com/sjawhar/classroom-live/internal/storage"
	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/summary"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// ErrTranscriptionDisabled is returned by OpenTranscription when no live
// source is configured.
var ErrTranscriptionDisabled = errors.New("live transcription disabled")

var ErrSummariesDisabled = errors.New("summaries disabled")

type Config struct {
	Store    Store
	Recorder Recorder
	// Source is nil when live transcription is disabled; conference
	// transcription chunks are still merged.
	Source     ingest.Source
	Jobs       ingest.JobController
	Files      FileWriter
	Uploader   Uploader
	Summarizer Summarizer
	Mirror     SegmentMirror
	Hub        EventBroadcaster

	Constraints   capture.Constraints
	Transcription backend.Settings
	Display       subtitle.DisplaySettings
	// ExportFormats are written next to the recording when a session ends.
	ExportFormats []subtitle.Format
	// AutoTranscribe opens the live channel whenever recording starts.
	AutoTranscribe bool
	Now            func() time.Time
}

type live struct {
	id         string
	startedAt  time.Time
	transcript *transcribe.Transcript
	client     *ingest.Client
}

type Manager struct {
	cfg         Config
	overlay     *subtitle.Overlay
	unsubscribe func()

	// lifecycle serializes start, stop and teardown; mu guards cur only.
	lifecycle sync.Mutex
	mu        sync.Mutex
	cur       *live

	// persist orders transcript edits and their store writes against
	// live commits.
	persist sync.Mutex

	wg sync.WaitGroup
}

func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Hub == nil {
		cfg.Hub = nopBroadcaster{}
	}
	if cfg.Display == (subtitle.DisplaySettings{}) {
		cfg.Display = subtitle.DefaultDisplaySettings()
	}

	m := &Manager{cfg: cfg}
	m.overlay = subtitle.NewOverlay(subtitle.Renderer{Settings: cfg.Display, Color: m.speakerColor}, nil)
	if cfg.Recorder != nil {
		m.unsubscribe = cfg.Recorder.Subscribe(m.onCapture)
	}
	return m
}

// StartSession opens a new live view with an empty transcript.
func (m *Manager) StartSession(_ context.Context) (string, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	s, err := m.startLocked()
	if err != nil {
		return "", err
	}
	return s.id, nil
}

func (m *Manager) startLocked() (*live, error) {
	if cur := m.current(); cur != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, cur.id)
	}

	startedAt := m.cfg.Now().UTC()
	id := uuid.NewString()
	if err := m.cfg.Store.CreateSession(id, startedAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	t := transcribe.NewTranscript(id, startedAt)
	s := &live{
		id:         id,
		startedAt:  startedAt,
		transcript: t,
		client:     ingest.NewClient(t, m.cfg.Source, ingest.Options{Jobs: m.cfg.Jobs, Observer: m}),
	}

	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()

	m.cfg.Hub.BroadcastSessionStarted(id)
	return s, nil
}

func (m *Manager) ensureLocked() (*live, error) {
	if s := m.current(); s != nil {
		return s, nil
	}
	return m.startLocked()
}

// StartRecording begins local capture, opening a session first when none is
// active.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	s, err := m.ensureLocked()
	if err != nil {
		return err
	}
	if err := m.cfg.Recorder.Start(ctx, s.id, m.cfg.Constraints); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	if m.cfg.AutoTranscribe && m.cfg.Source != nil && s.client.Active() == nil {
		if err := m.openLocked(ctx, s); err != nil {
			slog.Warn("open transcription with recording", "session_id", s.id, "error", err)
		}
	}
	return nil
}

// PauseRecording reports whether the recorder was paused; pausing while not
// recording is a no-op.
func (m *Manager) PauseRecording() (bool, error) {
	if m.current() == nil {
		return false, ErrNoActiveSession
	}
	return m.cfg.Recorder.Pause(), nil
}

func (m *Manager) ResumeRecording() (bool, error) {
	if m.current() == nil {
		return false, ErrNoActiveSession
	}
	return m.cfg.Recorder.Resume(), nil
}

// StopRecording finalizes the recording and ends the session.
func (m *Manager) StopRecording(ctx context.Context) (capture.Blob, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	s := m.current()
	if s == nil {
		return capture.Blob{}, ErrNoActiveSession
	}

	blob, err := m.cfg.Recorder.Stop()
	if err != nil {
		return capture.Blob{}, fmt.Errorf("stop recording: %w", err)
	}
	if err := m.endLocked(ctx, s, &blob); err != nil {
		return blob, err
	}
	return blob, nil
}

// SnapshotRecording returns the recording collected so far without stopping.
func (m *Manager) SnapshotRecording() (capture.Blob, error) {
	if m.current() == nil {
		return capture.Blob{}, ErrNoActiveSession
	}
	blob, err := m.cfg.Recorder.SnapshotBlob()
	if err != nil {
		return capture.Blob{}, fmt.Errorf("snapshot recording: %w", err)
	}
	return capture.Downloadable(blob), nil
}

// OpenTranscription connects the live channel for the current session,
// opening a session first when none is active.
func (m *Manager) OpenTranscription(ctx context.Context) error {
	if m.cfg.Source == nil {
		return ErrTranscriptionDisabled
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	s, err := m.ensureLocked()
	if err != nil {
		return err
	}
	return m.openLocked(ctx, s)
}

func (m *Manager) openLocked(ctx context.Context, s *live) error {
	h, err := s.client.Open(ctx, m.cfg.Transcription)
	if err != nil {
		return fmt.Errorf("open transcription: %w", err)
	}
	m.cfg.Hub.BroadcastStreamStatus(s.id, h.Status(), nil)
	return nil
}

// CloseTranscription closes the live channel; the transcript is kept.
func (m *Manager) CloseTranscription() error {
	s := m.current()
	if s == nil {
		return ErrNoActiveSession
	}
	h := s.client.Active()
	if h == nil {
		return fmt.Errorf("%w: transcription not open", ingest.ErrInvalidState)
	}
	err := h.Close()
	m.cfg.Hub.BroadcastStreamStatus(s.id, ingest.StatusClosed, nil)
	return err
}

// EndSession stops any active recording and transcription and finalizes
// the session.
func (m *Manager) EndSession(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	s := m.current()
	if s == nil {
		return ErrNoActiveSession
	}

	var blob *capture.Blob
	if m.cfg.Recorder != nil && m.cfg.Recorder.State().Active() {
		b, err := m.cfg.Recorder.Stop()
		if err != nil {
			slog.Warn("stop recording on session end", "session_id", s.id, "error", err)
		} else {
			blob = &b
		}
	}
	return m.endLocked(ctx, s, blob)
}

// Teardown ends the current session, if any. It is used when the
// conference is left.
func (m *Manager) Teardown(ctx context.Context) error {
	if err := m.EndSession(ctx); err != nil && !errors.Is(err, ErrNoActiveSession) {
		return err
	}
	return nil
}

// Close tears down the live view, releases the recorder and waits for
// background work.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Teardown(ctx)
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.cfg.Recorder != nil {
		m.cfg.Recorder.Dispose()
	}
	m.overlay.Close()
	m.Wait()
	return err
}

// Wait blocks until background uploads and summaries finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) endLocked(ctx context.Context, s *live, blob *capture.Blob) error {
	if h := s.client.Active(); h != nil {
		if err := h.Close(); err != nil {
			slog.Warn("close transcription on session end", "session_id", s.id, "error", err)
		}
		m.cfg.Hub.BroadcastStreamStatus(s.id, ingest.StatusClosed, nil)
	}

	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()

	endedAt := m.cfg.Now().UTC()
	var rec storage.Recording
	var files []string
	if blob != nil {
		rec = storage.Recording{MimeType: blob.MimeType, Bytes: blob.Size, Duration: blob.Duration}
		if blob.Size > 0 && m.cfg.Files != nil {
			path, file, err := m.cfg.Files.SaveRecording(*blob, endedAt)
			if err != nil {
				slog.Error("save recording", "session_id", s.id, "size", capture.FormatSize(blob.Size), "error", err)
			} else {
				rec = storage.Recording{Path: path, MimeType: file.MimeType, Bytes: file.Size, Duration: file.Duration}
				files = append(files, path)
			}
		}
	}

	if err := m.cfg.Store.EndSession(s.id, endedAt, rec); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	segments := s.transcript.Segments()
	if m.cfg.Files != nil && len(segments) > 0 {
		for _, format := range m.cfg.ExportFormats {
			path, err := m.cfg.Files.SaveExport(s.id, endedAt, format, segments)
			if err != nil {
				slog.Warn("write transcript export", "session_id", s.id, "format", format, "error", err)
				continue
			}
			files = append(files, path)
		}
	}

	slog.Info("session ended",
		"session_id", s.id,
		"duration", capture.FormatDuration(endedAt.Sub(s.startedAt)),
		"segments", len(segments),
		"recording", capture.FormatSize(rec.Bytes),
	)
	m.cfg.Hub.BroadcastSessionEnded(s.id, endedAt.Sub(s.startedAt))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := context.WithoutCancel(ctx)
		m.upload(ctx, s.id, files)
		m.generateSummary(ctx, s.id, segments)
	}()
	return nil
}

func (m *Manager) upload(ctx context.Context, sessionID string, paths []string) {
	if m.cfg.Uploader == nil {
		return
	}
	for _, p := range paths {
		if err := m.cfg.Uploader.Upload(ctx, p); err != nil {
			slog.Warn("upload session file", "session_id", sessionID, "path", p, "error", err)
		}
	}
}

func (m *Manager) generateSummary(ctx context.Context, sessionID string, segments []transcribe.Segment) {
	if m.cfg.Summarizer == nil {
		_ = m.cfg.Store.UpdateSummary(sessionID, "", storage.SummarySkipped, "")
		return
	}
	m.runSummary(ctx, sessionID, "", segments, m.cfg.Summarizer.Summarize)
}

// Resummarize regenerates the summary of a stored session with the named
// preset. The work runs in the background; progress is broadcast.
func (m *Manager) Resummarize(ctx context.Context, sessionID, preset string) error {
	if m.cfg.Summarizer == nil {
		return ErrSummariesDisabled
	}
	if m.CurrentSession() == sessionID {
		return fmt.Errorf("resummarize %s: %w", sessionID, ErrSessionActive)
	}
	segments, err := m.cfg.Store.GetSegments(sessionID)
	if err != nil {
		return fmt.Errorf("load segments %s: %w", sessionID, err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runSummary(context.WithoutCancel(ctx), sessionID, preset, segments,
			func(ctx context.Context, sessionID, transcript string) (string, string, error) {
				text, err := m.cfg.Summarizer.SummarizeWithPreset(ctx, sessionID, transcript, preset)
				return text, preset, err
			})
	}()
	return nil
}

type summarizeFunc func(ctx context.Context, sessionID, transcript string) (text, preset string, err error)

func (m *Manager) runSummary(ctx context.Context, sessionID, preset string, segments []transcribe.Segment, summarize summarizeFunc) {
	m.cfg.Hub.BroadcastSummaryReady(sessionID, "", storage.SummaryRunning, preset)

	transcript, err := subtitle.Bytes(subtitle.FormatText, segments)
	if err != nil {
		m.failSummary(sessionID, preset, err)
		return
	}

	text, preset, err := summarize(ctx, sessionID, string(transcript))
	if errors.Is(err, summary.ErrDuplicateRequest) {
		slog.Info("lecture summary already requested", "session_id", sessionID)
		return
	}
	if err != nil {
		m.failSummary(sessionID, preset, err)
		return
	}

	status := storage.SummaryCompleted
	if strings.TrimSpace(text) == "" {
		status = storage.SummarySkipped
	}
	if err := m.cfg.Store.UpdateSummary(sessionID, text, status, preset); err != nil {
		m.failSummary(sessionID, preset, err)
		return
	}
	m.cfg.Hub.BroadcastSummaryReady(sessionID, text, status, preset)
}

func (m *Manager) failSummary(sessionID, preset string, err error) {
	slog.Warn("lecture summary failed", "session_id", sessionID, "preset", preset, "error", err)
	_ = m.cfg.Store.UpdateSummary(sessionID, "", storage.SummaryFailed, preset)
	m.cfg.Hub.BroadcastSummaryReady(sessionID, "", storage.SummaryFailed, preset)
}

// OnUtterance persists committed segments and forwards every merged
// utterance to live clients.
func (m *Manager) OnUtterance(sessionID string, r transcribe.Result) {
	switch r.Change {
	case transcribe.ChangeCommitted:
		seg, ok := m.persistCommitted(sessionID, r.Segment)
		if !ok {
			return
		}
		m.cfg.Hub.BroadcastLiveTranscript(sessionID, seg, r.Color)
	case transcribe.ChangeInserted, transcribe.ChangeRefined:
		m.cfg.Hub.BroadcastLiveTranscriptInterim(sessionID, r.Utterance, r.Color)
	}
}

// persistCommitted stores the transcript's current copy of a committed
// segment, so an edit made since the commit is not overwritten. It reports
// false when the segment has been merged or split away.
func (m *Manager) persistCommitted(sessionID string, seg transcribe.Segment) (transcribe.Segment, bool) {
	m.persist.Lock()
	defer m.persist.Unlock()
	if s := m.current(); s != nil && s.id == sessionID {
		cur, ok := s.transcript.Segment(seg.ID)
		if !ok {
			return transcribe.Segment{}, false
		}
		seg = cur
	}
	if err := m.cfg.Store.UpsertSegment(sessionID, seg); err != nil {
		slog.Error("persist segment", "session_id", sessionID, "segment_id", seg.ID, "error", err)
	}
	return seg, true
}

func (m *Manager) OnDisconnect(sessionID string, err error) {
	m.cfg.Hub.BroadcastStreamStatus(sessionID, ingest.StatusDisconnected, err)
}

func (m *Manager) onCapture(ev capture.Event) {
	switch ev.Kind {
	case capture.EventChunk:
		m.cfg.Hub.BroadcastRecordingChunk(ev.SessionID, ev.Seq, len(ev.Chunk), ev.TotalBytes, ev.Elapsed)
		if len(ev.Chunk) == 0 {
			return
		}
		if s := m.current(); s != nil && s.id == ev.SessionID {
			if h := s.client.Active(); h != nil {
				if _, err := h.Write(ev.Chunk); err != nil {
					slog.Warn("forward audio to transcription", "session_id", s.id, "error", err)
				}
			}
		}
	case capture.EventState:
		st := m.cfg.Recorder.Status()
		st.State = ev.State
		m.cfg.Hub.BroadcastRecordingStatus(st)
	case capture.EventError:
		slog.Error("capture failed", "session_id", ev.SessionID, "error", ev.Err)
	}
}

// Captions renders the live transcript at cursor under the current display
// settings.
func (m *Manager) Captions(cursor time.Duration) subtitle.Frame {
	var segments []transcribe.Segment
	if s := m.current(); s != nil {
		segments = s.transcript.Segments()
	}
	return m.overlay.Update(cursor, segments)
}

func (m *Manager) SetCaptionsVisible(visible bool) {
	m.overlay.SetVisible(visible)
}

func (m *Manager) CaptionSettings() subtitle.DisplaySettings {
	return m.overlay.Settings()
}

func (m *Manager) SetCaptionSettings(s subtitle.DisplaySettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.overlay.SetSettings(s)
	return nil
}

func (m *Manager) speakerColor(speakerID string) string {
	if s := m.current(); s != nil {
		return s.transcript.SpeakerColor(speakerID)
	}
	return ""
}

// CurrentSession returns the live session id, or "" when none is open.
func (m *Manager) CurrentSession() string {
	if s := m.current(); s != nil {
		return s.id
	}
	return ""
}

func (m *Manager) Status() Status {
	st := Status{Captions: m.overlay.Visible()}
	if m.cfg.Recorder != nil {
		st.Recording = m.cfg.Recorder.Status()
	}
	s := m.current()
	if s == nil {
		return st
	}
	st.SessionID = s.id
	st.StartedAt = s.startedAt
	st.Stream = ingest.StatusClosed
	if h := s.client.Active(); h != nil {
		st.Stream = h.Status()
	}
	st.Segments = len(s.transcript.Segments())
	st.Speakers = s.transcript.Speakers()
	return st
}

func (m *Manager) current() *live {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastSessionStarted(string)                                         {}
func (nopBroadcaster) BroadcastSessionEnded(string, time.Duration)                            {}
func (nopBroadcaster) BroadcastLiveTranscript(string, transcribe.Segment, string)             {}
func (nopBroadcaster) BroadcastLiveTranscriptInterim(string, transcribe.Utterance, string)    {}
func (nopBroadcaster) BroadcastRecordingStatus(capture.Status)                                {}
func (nopBroadcaster) BroadcastRecordingChunk(string, int, int, int64, time.Duration)         {}
func (nopBroadcaster) BroadcastStreamStatus(string, ingest.Status, error)                     {}
func (nopBroadcaster) BroadcastSegmentEdited(string, string, []transcribe.Segment, []string) {}
func (nopBroadcaster) BroadcastSummaryReady(string, string, string, string)                   {}
