package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// MimeTypeL16 is raw little-endian 16-bit PCM as produced by PortAudioDevice.
const MimeTypeL16 = "audio/L16"

// PortAudioDevice captures the default input device. Video constraints are
// ignored. portaudio.Initialize must have been called.
type PortAudioDevice struct {
	FramesPerBuffer int
}

func (d PortAudioDevice) Supports(mimeType string) bool {
	return strings.HasPrefix(mimeType, MimeTypeL16)
}

func (d PortAudioDevice) Open(_ context.Context, c Constraints, mimeType string) (Stream, error) {
	if !d.Supports(mimeType) {
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
	if !c.Audio.Enabled {
		return nil, errors.New("audio capture disabled")
	}

	channels := max(c.Audio.ChannelCount, 1)
	rate := c.Audio.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	frames := d.FramesPerBuffer
	if frames <= 0 {
		frames = rate / 10
	}

	buf := make([]int16, frames*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(rate), frames, buf)
	if err != nil {
		return nil, fmt.Errorf("open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start portaudio stream: %w", err)
	}

	s := &micStream{stream: stream, buf: buf, done: make(chan struct{})}
	go s.read()
	return s, nil
}

type micStream struct {
	stream *portaudio.Stream
	buf    []int16
	done   chan struct{}

	mu      sync.Mutex
	pending bytes.Buffer
	muted   bool
	closed  bool
	err     error
}

func (s *micStream) read() {
	defer close(s.done)
	var frame bytes.Buffer
	frame.Grow(len(s.buf) * 2)
	for {
		err := s.stream.Read()

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			s.err = err
			s.mu.Unlock()
			return
		}
		if !s.muted {
			frame.Reset()
			_ = binary.Write(&frame, binary.LittleEndian, s.buf)
			s.pending.Write(frame.Bytes())
		}
		s.mu.Unlock()
	}
}

func (s *micStream) Flush() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := bytes.Clone(s.pending.Bytes())
	s.pending.Reset()
	return out, nil
}

func (s *micStream) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

func (s *micStream) Unmute() {
	s.mu.Lock()
	s.muted = false
	s.mu.Unlock()
}

func (s *micStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	stopErr := s.stream.Stop()
	<-s.done
	return errors.Join(stopErr, s.stream.Close())
}
