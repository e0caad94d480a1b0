package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultFlushInterval = time.Second

// DefaultMimeTypes is the negotiation order used when none is configured.
var DefaultMimeTypes = []string{"video/webm;codecs=vp9,opus", "video/webm"}

type Options struct {
	FlushInterval time.Duration
	MimeTypes     []string
	NewTicker     func(time.Duration) Ticker
	// OnStop receives the assembled blob after a successful Stop.
	OnStop func(Blob)
	// OnError is called when the device fails to open or fails mid-recording.
	OnError func(error)
	Now     func() time.Time
}

// Engine owns one capture session at a time.
type Engine struct {
	device Device
	opts   Options

	mu          sync.Mutex
	sessionID   string
	state       State
	mimeType    string
	constraints Constraints
	startedAt   time.Time
	elapsed     time.Duration
	totalBytes  int64
	chunks      [][]byte
	seq         int
	stream      Stream
	lastErr     error
	stop        chan struct{}
	done        chan struct{}
	disposed    bool

	subs    map[int]func(Event)
	nextSub int

	onTick func()
}

func NewEngine(device Device, opts Options) *Engine {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if len(opts.MimeTypes) == 0 {
		opts.MimeTypes = DefaultMimeTypes
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		device: device,
		opts:   opts,
		state:  StateIdle,
		subs:   make(map[int]func(Event)),
	}
}

// Subscribe registers fn for chunk, state and error events. Handlers run on
// the engine's goroutines and must not call back into the engine.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Start acquires the device and begins the flush tick.
func (e *Engine) Start(ctx context.Context, sessionID string, c Constraints) error {
	e.mu.Lock()
	if e.disposed || e.state.Active() {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidState, state)
	}

	mimeType := e.negotiate()
	if mimeType == "" {
		err := fmt.Errorf("%w: no supported mime type in %v", ErrDeviceUnavailable, e.opts.MimeTypes)
		events := e.failLocked(err)
		e.mu.Unlock()
		e.emit(events...)
		e.reportError(err)
		return err
	}

	stream, err := e.device.Open(ctx, c, mimeType)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		events := e.failLocked(err)
		e.mu.Unlock()
		e.emit(events...)
		e.reportError(err)
		return err
	}

	e.sessionID = sessionID
	e.mimeType = mimeType
	e.constraints = c
	e.startedAt = e.opts.Now()
	e.elapsed = 0
	e.totalBytes = 0
	e.chunks = nil
	e.seq = 0
	e.lastErr = nil
	e.stream = stream
	e.state = StateRecording
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.opts.NewTicker(e.opts.FlushInterval), e.stop, e.done)

	ev := e.stateEventLocked()
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

func (e *Engine) negotiate() string {
	for _, m := range e.opts.MimeTypes {
		if e.device.Supports(m) {
			return m
		}
	}
	return ""
}

func (e *Engine) loop(t Ticker, stop, done chan struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			ok := e.tick()
			if e.onTick != nil {
				e.onTick()
			}
			if !ok {
				return
			}
		}
	}
}

// tick flushes one chunk and advances the duration counter. It reports false
// once the device has failed.
func (e *Engine) tick() bool {
	e.mu.Lock()
	if e.state != StateRecording {
		e.mu.Unlock()
		return true
	}

	data, err := e.stream.Flush()
	if err != nil {
		err = fmt.Errorf("%w: flush chunk: %w", ErrDeviceUnavailable, err)
		events := e.failLocked(err)
		e.stop = nil
		e.mu.Unlock()
		e.emit(events...)
		e.reportError(err)
		return false
	}

	e.elapsed += e.opts.FlushInterval
	events := []Event{e.appendLocked(data)}
	e.mu.Unlock()

	e.emit(events...)
	return true
}

// appendLocked records a chunk; an empty flush still reports progress.
func (e *Engine) appendLocked(data []byte) Event {
	if len(data) > 0 {
		e.chunks = append(e.chunks, data)
		e.totalBytes += int64(len(data))
		e.seq++
	}
	return Event{
		Kind:       EventChunk,
		SessionID:  e.sessionID,
		State:      e.state,
		Chunk:      data,
		Seq:        e.seq,
		TotalBytes: e.totalBytes,
		Elapsed:    e.elapsed,
	}
}

// failLocked moves to the error state and releases the device and chunks.
func (e *Engine) failLocked(err error) []Event {
	if e.stream != nil {
		if cerr := e.stream.Close(); cerr != nil {
			slog.Warn("close capture stream after failure", "session_id", e.sessionID, "error", cerr)
		}
		e.stream = nil
	}
	e.chunks = nil
	e.state = StateError
	e.lastErr = err
	return []Event{
		{Kind: EventError, SessionID: e.sessionID, State: StateError, Err: err},
		e.stateEventLocked(),
	}
}

// Pause stops the duration counter but keeps the device open. It is a no-op
// unless recording.
func (e *Engine) Pause() bool {
	return e.transition(StateRecording, StatePaused, Stream.Mute)
}

// Resume is a no-op unless paused.
func (e *Engine) Resume() bool {
	return e.transition(StatePaused, StateRecording, Stream.Unmute)
}

func (e *Engine) transition(from, to State, apply func(Stream)) bool {
	e.mu.Lock()
	if e.state != from {
		e.mu.Unlock()
		return false
	}
	apply(e.stream)
	e.state = to
	ev := e.stateEventLocked()
	e.mu.Unlock()

	e.emit(ev)
	return true
}

// Stop drains the pending flush, also when paused, releases the device and
// assembles every chunk in order.
func (e *Engine) Stop() (Blob, error) {
	e.mu.Lock()
	stop, done := e.stop, e.done
	if stop == nil {
		state := e.state
		e.mu.Unlock()
		return Blob{}, fmt.Errorf("%w: stop while %s", ErrInvalidState, state)
	}
	e.stop = nil
	e.mu.Unlock()

	close(stop)
	<-done

	e.mu.Lock()
	if e.stream == nil {
		err := e.lastErr
		e.mu.Unlock()
		return Blob{}, fmt.Errorf("%w: device failed: %w", ErrInvalidState, err)
	}

	var events []Event
	if e.state.Active() {
		data, err := e.stream.Flush()
		if err != nil {
			slog.Warn("final capture flush failed", "session_id", e.sessionID, "error", err)
			events = append(events, Event{Kind: EventError, SessionID: e.sessionID, State: e.state, Err: err})
		} else if len(data) > 0 {
			events = append(events, e.appendLocked(data))
		}
	}
	if err := e.stream.Close(); err != nil {
		slog.Warn("close capture stream", "session_id", e.sessionID, "error", err)
	}
	e.stream = nil

	blob := e.assembleLocked()
	e.chunks = nil
	e.state = StateStopped
	events = append(events, e.stateEventLocked())
	onStop := e.opts.OnStop
	e.mu.Unlock()

	e.emit(events...)
	if onStop != nil {
		onStop(blob)
	}
	return blob, nil
}

// SnapshotBlob assembles the chunks collected so far without stopping. While
// recording or paused it first forces a flush, which is kept as a regular
// chunk.
func (e *Engine) SnapshotBlob() (Blob, error) {
	e.mu.Lock()
	var events []Event
	if e.state.Active() {
		data, err := e.stream.Flush()
		if err != nil {
			e.mu.Unlock()
			return Blob{}, fmt.Errorf("flush snapshot: %w", err)
		}
		if len(data) > 0 {
			events = append(events, e.appendLocked(data))
		}
	}
	if len(e.chunks) == 0 {
		e.mu.Unlock()
		e.emit(events...)
		return Blob{}, ErrNoRecording
	}
	blob := e.assembleLocked()
	e.mu.Unlock()

	e.emit(events...)
	return blob, nil
}

func (e *Engine) assembleLocked() Blob {
	data := bytes.Join(e.chunks, nil)
	return Blob{
		Data:       data,
		MimeType:   e.mimeType,
		Size:       int64(len(data)),
		Duration:   e.elapsed,
		Chunks:     len(e.chunks),
		SampleRate: e.constraints.Audio.SampleRate,
		Channels:   e.constraints.Audio.ChannelCount,
	}
}

// Clear resets counters of a finished session.
func (e *Engine) Clear() error {
	e.mu.Lock()
	if e.state.Active() {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: clear while %s", ErrInvalidState, state)
	}
	e.chunks = nil
	e.elapsed = 0
	e.totalBytes = 0
	e.seq = 0
	e.lastErr = nil
	e.sessionID = ""
	e.state = StateIdle
	ev := e.stateEventLocked()
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// Dispose tears the engine down. An active recording is discarded without
// calling OnStop. Safe to call more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	stop, done := e.stop, e.done
	e.stop = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	e.mu.Lock()
	if e.stream != nil {
		if err := e.stream.Close(); err != nil {
			slog.Warn("close capture stream on dispose", "session_id", e.sessionID, "error", err)
		}
		e.stream = nil
		e.state = StateStopped
	}
	e.chunks = nil
	e.subs = make(map[int]func(Event))
	e.mu.Unlock()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		SessionID:  e.sessionID,
		State:      e.state,
		MimeType:   e.mimeType,
		StartedAt:  e.startedAt,
		Elapsed:    e.elapsed,
		TotalBytes: e.totalBytes,
		Chunks:     len(e.chunks),
	}
	if e.lastErr != nil {
		st.Error = e.lastErr.Error()
	}
	return st
}

func (e *Engine) stateEventLocked() Event {
	return Event{
		Kind:       EventState,
		SessionID:  e.sessionID,
		State:      e.state,
		Seq:        e.seq,
		TotalBytes: e.totalBytes,
		Elapsed:    e.elapsed,
		Err:        e.lastErr,
	}
}

func (e *Engine) reportError(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
}

func (e *Engine) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
