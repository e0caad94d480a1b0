package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/classroom-live/internal/backend"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// WebSocketSource dials the backend's per-session live channel at
// {BaseURL}/sessions/{id}/transcription/live. Each text frame is one JSON
// utterance.
type WebSocketSource struct {
	BaseURL string
	Token   string
	Dialer  *websocket.Dialer
}

func (s WebSocketSource) Connect(ctx context.Context, sessionID string, _ backend.Settings) (Stream, error) {
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/sessions/" + url.PathEscape(sessionID) + "/transcription/live"

	dialer := s.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	header := http.Header{}
	if s.Token != "" {
		header.Set("Authorization", "Bearer "+s.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsStream) Recv() (transcribe.Utterance, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return transcribe.Utterance{}, err
		}
		var u transcribe.Utterance
		if err := json.Unmarshal(data, &u); err != nil {
			slog.Warn("skip malformed transcription frame", "error", err)
			continue
		}
		return u, nil
	}
}

func (s *wsStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
