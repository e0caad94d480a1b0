package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// transcriptFor returns the live transcript for sessionID or one restored
// from the store for an ended session.
func (m *Manager) transcriptFor(sessionID string) (*transcribe.Transcript, error) {
	if s := m.current(); s != nil && s.id == sessionID {
		return s.transcript, nil
	}
	segments, err := m.cfg.Store.GetSegments(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	t := transcribe.NewTranscript(sessionID, time.Time{})
	t.Restore(segments)
	return t, nil
}

// Segments returns the finalized segments of a live or ended session.
func (m *Manager) Segments(sessionID string) ([]transcribe.Segment, error) {
	if s := m.current(); s != nil && s.id == sessionID {
		return s.transcript.Segments(), nil
	}
	segments, err := m.cfg.Store.GetSegments(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	return segments, nil
}

// Search filters finalized segments by case-insensitive text and exact
// speaker id.
func (m *Manager) Search(sessionID, query, speakerID string) ([]transcribe.Segment, error) {
	segments, err := m.Segments(sessionID)
	if err != nil {
		return nil, err
	}
	return transcribe.FilterSegments(segments, query, speakerID), nil
}

func (m *Manager) Export(sessionID string, format subtitle.Format) ([]byte, error) {
	segments, err := m.Segments(sessionID)
	if err != nil {
		return nil, err
	}
	return subtitle.Bytes(format, segments)
}

func (m *Manager) EditSegment(ctx context.Context, sessionID, segmentID, text, editor string) (transcribe.Segment, error) {
	t, err := m.transcriptFor(sessionID)
	if err != nil {
		return transcribe.Segment{}, err
	}
	seg, err := m.editAndPersist(sessionID, t, segmentID, text, editor)
	if err != nil {
		return transcribe.Segment{}, err
	}

	if m.cfg.Mirror != nil {
		if _, err := m.cfg.Mirror.EditSegment(ctx, seg.ID, seg.Text); err != nil {
			slog.Warn("mirror segment edit to backend", "session_id", sessionID, "segment_id", seg.ID, "error", err)
		}
	}

	m.cfg.Hub.BroadcastSegmentEdited(sessionID, "edit", []transcribe.Segment{seg}, nil)
	return seg, nil
}

func (m *Manager) editAndPersist(sessionID string, t *transcribe.Transcript, segmentID, text, editor string) (transcribe.Segment, error) {
	m.persist.Lock()
	defer m.persist.Unlock()
	seg, err := t.EditSegment(segmentID, text, editor, m.cfg.Now())
	if err != nil {
		return transcribe.Segment{}, err
	}
	if err := m.cfg.Store.UpsertSegment(sessionID, seg); err != nil {
		return transcribe.Segment{}, fmt.Errorf("persist edit: %w", err)
	}
	return seg, nil
}

// MergeSegments joins segments into the first id; the others are removed.
func (m *Manager) MergeSegments(sessionID string, ids []string, editor string) (transcribe.Segment, error) {
	t, err := m.transcriptFor(sessionID)
	if err != nil {
		return transcribe.Segment{}, err
	}
	m.persist.Lock()
	defer m.persist.Unlock()
	merged, err := t.MergeSegments(ids, editor, m.cfg.Now())
	if err != nil {
		return transcribe.Segment{}, err
	}
	if err := m.cfg.Store.UpsertSegment(sessionID, merged); err != nil {
		return transcribe.Segment{}, fmt.Errorf("persist merge: %w", err)
	}

	var removed []string
	seen := map[string]bool{merged.ID: true}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		removed = append(removed, id)
		if err := m.cfg.Store.DeleteSegment(sessionID, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return transcribe.Segment{}, fmt.Errorf("persist merge: %w", err)
		}
	}

	m.cfg.Hub.BroadcastSegmentEdited(sessionID, "merge", []transcribe.Segment{merged}, removed)
	return merged, nil
}

func (m *Manager) SplitSegment(sessionID, segmentID string, at time.Duration, editor string) (transcribe.Segment, transcribe.Segment, error) {
	t, err := m.transcriptFor(sessionID)
	if err != nil {
		return transcribe.Segment{}, transcribe.Segment{}, err
	}
	m.persist.Lock()
	defer m.persist.Unlock()
	first, second, err := t.SplitSegment(segmentID, at, editor, m.cfg.Now())
	if err != nil {
		return transcribe.Segment{}, transcribe.Segment{}, err
	}
	for _, seg := range []transcribe.Segment{first, second} {
		if err := m.cfg.Store.UpsertSegment(sessionID, seg); err != nil {
			return transcribe.Segment{}, transcribe.Segment{}, fmt.Errorf("persist split: %w", err)
		}
	}

	m.cfg.Hub.BroadcastSegmentEdited(sessionID, "split", []transcribe.Segment{first, second}, nil)
	return first, second, nil
}

// RenameSpeaker relabels every committed segment of speakerID and returns
// how many changed.
func (m *Manager) RenameSpeaker(sessionID, speakerID, name string) (int, error) {
	t, err := m.transcriptFor(sessionID)
	if err != nil {
		return 0, err
	}
	m.persist.Lock()
	defer m.persist.Unlock()
	n := t.RenameSpeaker(speakerID, name)
	if n == 0 {
		return 0, nil
	}

	var changed []transcribe.Segment
	for _, seg := range t.Segments() {
		if seg.SpeakerID != speakerID {
			continue
		}
		if err := m.cfg.Store.UpsertSegment(sessionID, seg); err != nil {
			return 0, fmt.Errorf("persist speaker rename: %w", err)
		}
		changed = append(changed, seg)
	}

	m.cfg.Hub.BroadcastSegmentEdited(sessionID, "rename", changed, nil)
	return n, nil
}
