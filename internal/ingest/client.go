// Package ingest runs the live transcription channel for a session and merges
// every inbound utterance into the session transcript.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/classroom-live/internal/backend"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// Stream delivers utterances until it is closed or the channel drops. Closing
// the stream unblocks a pending Recv.
type Stream interface {
	Recv() (transcribe.Utterance, error)
	Close() error
}

// Source opens a live channel for one session.
type Source interface {
	Connect(ctx context.Context, sessionID string, s backend.Settings) (Stream, error)
}

// JobController starts and stops the backend's realtime job.
type JobController interface {
	StartRealtime(ctx context.Context, sessionID string, s backend.Settings) (backend.Job, error)
	StopRealtime(ctx context.Context, sessionID string) error
}

type Observer interface {
	OnUtterance(sessionID string, r transcribe.Result)
	OnDisconnect(sessionID string, err error)
}

type Status string

const (
	StatusOpen         Status = "open"
	StatusDisconnected Status = "disconnected"
	StatusClosed       Status = "closed"
)

type Options struct {
	Jobs     JobController
	Observer Observer
	// StopTimeout bounds the StopRealtime call made on Close.
	StopTimeout time.Duration
}

// Client owns at most one open handle for its transcript.
type Client struct {
	transcript *transcribe.Transcript
	source     Source
	opts       Options

	mu      sync.Mutex
	active  *Handle
	opening bool
}

func NewClient(t *transcribe.Transcript, source Source, opts Options) *Client {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Client{transcript: t, source: source, opts: opts}
}

func (c *Client) Transcript() *transcribe.Transcript { return c.transcript }

// Open starts the realtime job and connects the live channel for the
// transcript's session. A second Open while a handle is open fails with
// ErrInvalidState.
func (c *Client) Open(ctx context.Context, s backend.Settings) (*Handle, error) {
	sessionID := c.transcript.SessionID()

	c.mu.Lock()
	if c.active != nil || c.opening {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: stream already open for session %s", ErrInvalidState, sessionID)
	}
	c.opening = true
	c.mu.Unlock()

	h, err := c.open(ctx, sessionID, s)

	c.mu.Lock()
	c.opening = false
	if err == nil {
		c.active = h
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	go h.run()
	return h, nil
}

func (c *Client) open(ctx context.Context, sessionID string, s backend.Settings) (*Handle, error) {
	if c.opts.Jobs != nil {
		if _, err := c.opts.Jobs.StartRealtime(ctx, sessionID, s); err != nil {
			return nil, fmt.Errorf("start realtime job: %w", err)
		}
	}

	stream, err := c.source.Connect(ctx, sessionID, s)
	if err != nil {
		c.stopJob(sessionID)
		return nil, fmt.Errorf("connect live channel: %w", err)
	}

	return &Handle{
		client:    c,
		sessionID: sessionID,
		stream:    stream,
		done:      make(chan struct{}),
		status:    StatusOpen,
	}, nil
}

// Ingest merges an utterance that arrived outside the live channel, such as
// a conference transcription chunk.
func (c *Client) Ingest(u transcribe.Utterance) transcribe.Result {
	res := c.transcript.Apply(u)
	if res.Change != transcribe.ChangeIgnored && c.opts.Observer != nil {
		c.opts.Observer.OnUtterance(c.transcript.SessionID(), res)
	}
	return res
}

// Active returns the open handle, if any.
func (c *Client) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) release(h *Handle) {
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Client) stopJob(sessionID string) {
	if c.opts.Jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout)
	defer cancel()
	if err := c.opts.Jobs.StopRealtime(ctx, sessionID); err != nil {
		slog.Warn("stop realtime job", "session_id", sessionID, "error", err)
	}
}

// Handle is one open live channel. It must be closed exactly once.
type Handle struct {
	client    *Client
	sessionID string
	stream    Stream
	done      chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	status  Status
	closing bool
	err     error
}

func (h *Handle) SessionID() string { return h.sessionID }

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the disconnect cause once the channel has dropped.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the receive loop exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Write forwards captured audio to streams that accept it and discards it
// otherwise.
func (h *Handle) Write(p []byte) (int, error) {
	w, ok := h.stream.(io.Writer)
	if !ok || h.Status() != StatusOpen {
		return len(p), nil
	}
	return w.Write(p)
}

func (h *Handle) run() {
	defer close(h.done)
	for {
		u, err := h.stream.Recv()
		if err != nil {
			h.disconnect(err)
			return
		}
		res := h.client.transcript.Apply(u)
		if res.Change != transcribe.ChangeIgnored && h.client.opts.Observer != nil {
			h.client.opts.Observer.OnUtterance(h.sessionID, res)
		}
	}
}

func (h *Handle) disconnect(cause error) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return
	}
	if errors.Is(cause, io.EOF) {
		cause = fmt.Errorf("%w: channel closed by peer", ErrStreamDisconnected)
	} else {
		cause = fmt.Errorf("%w: %w", ErrStreamDisconnected, cause)
	}
	h.status = StatusDisconnected
	h.err = cause
	h.mu.Unlock()

	if err := h.stop(); err != nil {
		slog.Debug("close dropped live channel", "session_id", h.sessionID, "error", err)
	}
	h.client.release(h)
	slog.Warn("transcription stream disconnected", "session_id", h.sessionID, "error", cause)
	if h.client.opts.Observer != nil {
		h.client.opts.Observer.OnDisconnect(h.sessionID, cause)
	}
}

// Close stops ingestion and the backend job. Collected utterances stay in the
// transcript; an in-flight interim utterance is not finalized.
func (h *Handle) Close() error {
	err := ErrHandleClosed
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closing = true
		h.mu.Unlock()

		err = h.stop()
		<-h.done
		h.client.release(h)

		h.mu.Lock()
		h.status = StatusClosed
		h.mu.Unlock()
		if err != nil {
			err = fmt.Errorf("close live channel: %w", err)
		}
	})
	return err
}

// stop closes the stream and stops the backend job exactly once, whether the
// channel dropped or the handle was closed. Later calls return nil.
func (h *Handle) stop() error {
	var err error
	h.stopOnce.Do(func() {
		err = h.stream.Close()
		h.client.stopJob(h.sessionID)
	})
	return err
}
