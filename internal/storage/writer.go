package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// Writer lays out recordings and transcript exports under one data directory:
// recordings/{date}/recording-{millis}.{ext} and
// transcripts/{date}/transcription-{session}.{ext}.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string {
	return w.dir
}

// SaveRecording writes the downloadable form of blob and returns the file path.
func (w *Writer) SaveRecording(blob capture.Blob, at time.Time) (string, capture.Blob, error) {
	file := capture.Downloadable(blob)
	name := capture.RecordingFileName(at, "", file.MimeType)
	path, err := w.write(filepath.Join("recordings", at.Format("2006-01-02")), name, file.Data)
	if err != nil {
		return "", capture.Blob{}, err
	}
	return path, file, nil
}

func (w *Writer) SaveExport(sessionID string, at time.Time, format subtitle.Format, segments []transcribe.Segment) (string, error) {
	var buf bytes.Buffer
	if err := subtitle.Export(&buf, format, segments); err != nil {
		return "", err
	}
	name := "transcription-" + sessionID + format.Extension()
	return w.write(filepath.Join("transcripts", at.Format("2006-01-02")), name, buf.Bytes())
}

func (w *Writer) write(sub, name string, data []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
