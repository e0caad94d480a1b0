package capture

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := EncodeWAV(pcm, 16000, 1)
	if len(wav) != 48 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Fatalf("bad header %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != 40 {
		t.Fatalf("chunk size = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 4 {
		t.Fatalf("data size = %d", got)
	}
}

func TestDownloadable(t *testing.T) {
	b := Downloadable(Blob{Data: []byte{0, 0}, MimeType: MimeTypeL16, SampleRate: 48000, Channels: 2})
	if b.MimeType != "audio/wav" || b.Size != 46 {
		t.Fatalf("blob = %+v", b)
	}
	webm := Blob{Data: []byte("x"), MimeType: "video/webm"}
	if got := Downloadable(webm); got.MimeType != "video/webm" || len(got.Data) != 1 {
		t.Fatalf("webm changed: %+v", got)
	}
}

func TestRecordingFileName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got := RecordingFileName(now, "", "video/webm;codecs=vp9,opus"); got != "recording-1700000000123.webm" {
		t.Fatalf("got %q", got)
	}
	if got := RecordingFileName(now, "", MimeTypeL16); got != "recording-1700000000123.wav" {
		t.Fatalf("got %q", got)
	}
	if got := RecordingFileName(now, "lecture.webm", "video/webm"); got != "lecture.webm" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatDuration(65 * time.Second); got != "1:05" {
		t.Fatalf("duration = %q", got)
	}
	if got := FormatDuration(3725 * time.Second); got != "1:02:05" {
		t.Fatalf("duration = %q", got)
	}
	if got := FormatSize(1536); got != "1.5 KiB" {
		t.Fatalf("size = %q", got)
	}
}
