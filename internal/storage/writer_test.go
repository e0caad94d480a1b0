package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

func TestWriterSavesRecording(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	at := time.Date(2026, 2, 26, 10, 30, 0, 0, time.UTC)

	blob := capture.Blob{Data: []byte("webm-bytes"), MimeType: "video/webm;codecs=vp9,opus", Size: 10}
	path, file, err := w.SaveRecording(blob, at)
	if err != nil {
		t.Fatalf("SaveRecording failed: %v", err)
	}

	want := filepath.Join(dir, "recordings", "2026-02-26", "recording-1772101800000.webm")
	if path != want {
		t.Fatalf("expected path %s, got %s", want, path)
	}
	if file.MimeType != blob.MimeType {
		t.Fatalf("expected mime to pass through, got %q", file.MimeType)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(data, blob.Data) {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestWriterWrapsPCMAsWAV(t *testing.T) {
	w := NewWriter(t.TempDir())
	blob := capture.Blob{Data: make([]byte, 8), MimeType: capture.MimeTypeL16, SampleRate: 16000, Channels: 1}

	path, file, err := w.SaveRecording(blob, time.Now())
	if err != nil {
		t.Fatalf("SaveRecording failed: %v", err)
	}
	if filepath.Ext(path) != ".wav" {
		t.Fatalf("expected .wav file, got %s", path)
	}
	if file.Size != 52 {
		t.Fatalf("expected 44-byte header plus data, got %d", file.Size)
	}
	data, _ := os.ReadFile(path)
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("expected RIFF header, got %q", data[:4])
	}
}

func TestWriterSavesExport(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	at := time.Date(2026, 2, 26, 10, 30, 0, 0, time.UTC)
	segs := []transcribe.Segment{
		{ID: "1", Speaker: "Alice", Text: "Hello world.", StartTime: 0, EndTime: time.Second},
		{ID: "2", Speaker: "Bob", Text: "Hi.", StartTime: 2 * time.Second, EndTime: 3 * time.Second},
	}

	path, err := w.SaveExport("s1", at, subtitle.FormatSRT, segs)
	if err != nil {
		t.Fatalf("SaveExport failed: %v", err)
	}
	if filepath.Base(path) != "transcription-s1.srt" {
		t.Fatalf("unexpected export name %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "Alice: Hello world.") {
		t.Fatalf("expected SRT body, got %q", data)
	}
}
