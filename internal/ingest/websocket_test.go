package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/classroom-live/internal/backend"
)

func TestWebSocketSourceReceivesUtterances(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotPath := make(chan string, 1)
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.Path
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"u1","sessionId":"room-1","speakerId":"s1","speakerName":"Ms. Rivera","text":"Good morning","confidence":0.92,"isFinal":true,"timestamp":"2026-03-01T09:00:01.5Z","language":"en-US"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	src := WebSocketSource{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "tok"}
	stream, err := src.Connect(context.Background(), "room-1", backend.DefaultSettings())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer stream.Close()

	if p := <-gotPath; p != "/sessions/room-1/transcription/live" {
		t.Fatalf("path = %q", p)
	}
	if a := <-gotAuth; a != "Bearer tok" {
		t.Fatalf("auth = %q", a)
	}

	u, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if u.ID != "u1" || u.SpeakerName != "Ms. Rivera" || !u.IsFinal || u.Confidence != 0.92 {
		t.Fatalf("utterance = %+v", u)
	}
	want := time.Date(2026, 3, 1, 9, 0, 1, 500_000_000, time.UTC)
	if !u.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s", u.Timestamp)
	}

	_, err = stream.Recv()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("err = %v", err)
	}
}
