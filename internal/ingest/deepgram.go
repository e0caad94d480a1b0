package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/classroom-live/internal/backend"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// DeepgramSource streams captured audio to Deepgram and turns its interim and
// final results into utterances. Audio is written through the handle.
type DeepgramSource struct {
	APIKey     string
	Model      string
	Encoding   string
	SampleRate int
	Channels   int
}

type deepgramConn interface {
	io.Writer
	Stop()
}

func (s DeepgramSource) Connect(ctx context.Context, sessionID string, settings backend.Settings) (Stream, error) {
	model := s.Model
	if model == "" {
		model = "nova-2"
	}
	encoding := s.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:           model,
		Language:        settings.Language,
		Diarize:         settings.EnableSpeakerIdentification,
		Punctuate:       settings.EnablePunctuation,
		SmartFormat:     settings.EnableAutoCorrection,
		ProfanityFilter: settings.EnableProfanityFilter,
		Keywords:        settings.CustomVocabulary,
		InterimResults:  true,
		Encoding:        encoding,
		SampleRate:      s.SampleRate,
		Channels:        max(s.Channels, 1),
	}
	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}

	stream := newDeepgramStream(time.Now().UTC())
	dg, err := client.NewWSUsingCallback(ctx, s.APIKey, cOptions, tOptions, deepgramCallback{stream})
	if err != nil {
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return nil, errors.New("deepgram connect failed")
	}
	stream.conn = dg
	slog.Info("deepgram stream connected", "session_id", sessionID, "model", model)
	return stream, nil
}

// deepgramStream exposes the SDK's live results as a Stream.
type deepgramStream struct {
	openedAt time.Time
	conn     deepgramConn
	out      chan transcribe.Utterance

	mu       sync.Mutex
	err      error
	closed   bool
	done     chan struct{}
	stopOnce sync.Once
}

func newDeepgramStream(openedAt time.Time) *deepgramStream {
	return &deepgramStream{
		openedAt: openedAt,
		out:      make(chan transcribe.Utterance, 64),
		done:     make(chan struct{}),
	}
}

func (s *deepgramStream) Recv() (transcribe.Utterance, error) {
	select {
	case u := <-s.out:
		return u, nil
	case <-s.done:
		select {
		case u := <-s.out:
			return u, nil
		default:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return transcribe.Utterance{}, s.err
		}
		return transcribe.Utterance{}, io.EOF
	}
}

func (s *deepgramStream) Write(p []byte) (int, error) {
	if s.conn == nil {
		return len(p), nil
	}
	return s.conn.Write(p)
}

// Close ends the stream and stops the socket, also after the server has
// already closed it, so the SDK's keepalive and reader goroutines exit.
func (s *deepgramStream) Close() error {
	s.finish(nil)
	s.stopOnce.Do(func() {
		if s.conn != nil {
			s.conn.Stop()
		}
	})
	return nil
}

// finish ends the stream once; it reports whether this call ended it.
func (s *deepgramStream) finish(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.err = err
	close(s.done)
	return true
}

func (s *deepgramStream) push(us []transcribe.Utterance) {
	for _, u := range us {
		select {
		case s.out <- u:
		case <-s.done:
			return
		}
	}
}

func (s *deepgramStream) receive(mr *api.MessageResponse) {
	s.push(s.translate(mr))
}

// translate maps one result to utterances. An interim result is a single
// utterance keyed by its audio window; a final result is split by speaker
// and the first piece reuses the interim id so it supersedes it.
func (s *deepgramStream) translate(mr *api.MessageResponse) []transcribe.Utterance {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	sentence := strings.TrimSpace(alt.Transcript)
	if sentence == "" {
		return nil
	}

	window := fmt.Sprintf("dg-%d", int64(mr.Start*1000))
	words := make([]transcribe.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		words = append(words, transcribe.Word{Speaker: w.Speaker, PunctuatedWord: word, Start: w.Start, End: w.End})
	}

	if !mr.IsFinal || len(words) == 0 {
		speaker := -1
		if len(words) > 0 && words[0].Speaker != nil {
			speaker = *words[0].Speaker
		}
		run := transcribe.SpeakerRun{Speaker: speaker, Text: sentence, Start: mr.Start, End: mr.Start + mr.Duration}
		return []transcribe.Utterance{s.utterance(window+"-0", run, alt.Confidence, mr.IsFinal)}
	}

	runs := transcribe.GroupWordsBySpeaker(words)
	out := make([]transcribe.Utterance, 0, len(runs))
	for i, run := range runs {
		out = append(out, s.utterance(fmt.Sprintf("%s-%d", window, i), run, alt.Confidence, true))
	}
	return out
}

func (s *deepgramStream) utterance(id string, run transcribe.SpeakerRun, confidence float64, final bool) transcribe.Utterance {
	return transcribe.Utterance{
		ID:          id,
		SpeakerID:   run.SpeakerID(),
		SpeakerName: run.SpeakerName(),
		Text:        run.Text,
		Confidence:  confidence,
		Timestamp:   s.openedAt.Add(seconds(run.Start)),
		Duration:    seconds(run.End - run.Start),
		IsFinal:     final,
	}
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

// deepgramCallback adapts the SDK's callback interface to a deepgramStream.
type deepgramCallback struct{ s *deepgramStream }

func (c deepgramCallback) Open(*api.OpenResponse) error { return nil }

func (c deepgramCallback) Message(mr *api.MessageResponse) error {
	c.s.receive(mr)
	return nil
}

func (c deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (c deepgramCallback) Close(*api.CloseResponse) error {
	c.s.finish(io.EOF)
	return nil
}

func (c deepgramCallback) Error(er *api.ErrorResponse) error {
	slog.Warn("deepgram error", "code", er.ErrCode, "description", er.Description)
	return nil
}

func (c deepgramCallback) UnhandledEvent([]byte) error { return nil }
