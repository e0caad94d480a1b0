package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/conference"
	"github.com/sjawhar/classroom-live/internal/ingest"
	"github.com/sjawhar/classroom-live/internal/session"
	"github.com/sjawhar/classroom-live/internal/storage"
	"github.com/sjawhar/classroom-live/internal/subtitle"
	"github.com/sjawhar/classroom-live/internal/transcribe"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type SessionStore interface {
	ListSessions(limit int) ([]storage.Session, error)
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetDates() ([]string, error)
}

// LiveView is the session owner behind the recording, transcription and
// transcript routes.
type LiveView interface {
	StartRecording(ctx context.Context) error
	PauseRecording() (bool, error)
	ResumeRecording() (bool, error)
	StopRecording(ctx context.Context) (capture.Blob, error)
	SnapshotRecording() (capture.Blob, error)
	OpenTranscription(ctx context.Context) error
	CloseTranscription() error
	EndSession(ctx context.Context) error

	Segments(sessionID string) ([]transcribe.Segment, error)
	Search(sessionID, query, speakerID string) ([]transcribe.Segment, error)
	Export(sessionID string, format subtitle.Format) ([]byte, error)
	EditSegment(ctx context.Context, sessionID, segmentID, text, editor string) (transcribe.Segment, error)
	MergeSegments(sessionID string, ids []string, editor string) (transcribe.Segment, error)
	SplitSegment(sessionID, segmentID string, at time.Duration, editor string) (transcribe.Segment, transcribe.Segment, error)
	RenameSpeaker(sessionID, speakerID, name string) (int, error)
	Resummarize(ctx context.Context, sessionID, preset string) error

	Captions(cursor time.Duration) subtitle.Frame
	SetCaptionsVisible(visible bool)
	CaptionSettings() subtitle.DisplaySettings
	SetCaptionSettings(s subtitle.DisplaySettings) error

	Status() session.Status
}

type EventPublisher interface {
	Publish(ev conference.Event)
}

type Commander interface {
	Execute(ctx context.Context, cmd conference.Command) error
	Participants() []conference.Participant
}

func registerAPIRoutes(mux *http.ServeMux, d Deps) {
	registerSessionRoutes(mux, d.Store, d.Live)
	registerLiveRoutes(mux, d.Live)
	registerConferenceRoutes(mux, d.Events, d.Conference)

	mux.HandleFunc("GET /api/presets", func(w http.ResponseWriter, r *http.Request) {
		descriptions := map[string]string{}
		if d.Presets != nil {
			for name, preset := range d.Presets() {
				descriptions[name] = preset.Description
			}
		}
		writeJSON(w, http.StatusOK, descriptions)
	})

	mux.HandleFunc("POST /api/sessions/{id}/resummarize", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		var body struct {
			Preset string `json:"preset"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if d.Presets != nil {
			if _, ok := d.Presets()[body.Preset]; !ok {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown preset %q", body.Preset))
				return
			}
		}
		if err := d.Live.Resummarize(r.Context(), id, body.Preset); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if d.Warnings != nil {
			warnings = d.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"live": d.Live.Status(), "warnings": warnings})
	})
}

func registerSessionRoutes(mux *http.ServeMux, store SessionStore, live LiveView) {
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var sessions []storage.Session
		var err error
		if date := r.URL.Query().Get("date"); date != "" {
			sessions, err = store.GetSessionsByDate(date)
		} else {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			sessions, err = store.ListSessions(limit)
		}
		if err != nil {
			writeError(w, fmt.Errorf("list sessions: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeError(w, fmt.Errorf("get dates: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, dates)
	})

	mux.HandleFunc("GET /api/sessions/{id}", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		sess, err := store.GetSession(id)
		if err != nil {
			writeError(w, fmt.Errorf("get session: %w", err))
			return
		}
		segments, err := live.Segments(id)
		if err != nil {
			writeError(w, fmt.Errorf("get session segments: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess, "segments": segments})
	}))

	mux.HandleFunc("GET /api/sessions/{id}/recording", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		sess, err := store.GetSession(id)
		if err != nil {
			writeError(w, fmt.Errorf("get session: %w", err))
			return
		}
		if sess.RecordingPath == "" {
			writeJSONError(w, http.StatusNotFound, "recording not available")
			return
		}

		cleanPath := filepath.Clean(sess.RecordingPath)
		if cleanPath == "." || strings.Contains(cleanPath, "..") {
			writeJSONError(w, http.StatusForbidden, "invalid recording path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "recording file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeError(w, fmt.Errorf("stat recording: %w", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		if sess.MimeType != "" {
			w.Header().Set("Content-Type", sess.MimeType)
		}
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	}))

	mux.HandleFunc("GET /api/sessions/{id}/segments", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		q := r.URL.Query()
		segments, err := live.Search(id, q.Get("q"), q.Get("speaker"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, segments)
	}))

	mux.HandleFunc("PATCH /api/sessions/{id}/segments/{segmentID}", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		var body struct {
			Text   string `json:"text"`
			Editor string `json:"editor"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if strings.TrimSpace(body.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		seg, err := live.EditSegment(r.Context(), id, r.PathValue("segmentID"), body.Text, body.Editor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	}))

	mux.HandleFunc("POST /api/sessions/{id}/segments/merge", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		var body struct {
			SegmentIDs []string `json:"segmentIds"`
			Editor     string   `json:"editor"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		seg, err := live.MergeSegments(id, body.SegmentIDs, body.Editor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	}))

	mux.HandleFunc("POST /api/sessions/{id}/segments/{segmentID}/split", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		var body struct {
			SplitTime float64 `json:"splitTime"`
			Editor    string  `json:"editor"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		at := time.Duration(body.SplitTime * float64(time.Second))
		first, second, err := live.SplitSegment(id, r.PathValue("segmentID"), at, body.Editor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []transcribe.Segment{first, second})
	}))

	mux.HandleFunc("PUT /api/sessions/{id}/speakers/{speakerID}", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		var body struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			writeJSONError(w, http.StatusBadRequest, "name is required")
			return
		}
		n, err := live.RenameSpeaker(id, r.PathValue("speakerID"), body.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": n})
	}))

	mux.HandleFunc("GET /api/sessions/{id}/export", withSessionID(func(w http.ResponseWriter, r *http.Request, id string) {
		raw := r.URL.Query().Get("format")
		if raw == "" {
			raw = string(subtitle.FormatVTT)
		}
		format, err := subtitle.ParseFormat(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := live.Export(id, format)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transcription-%s%s"`, id, format.Extension()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}))
}

func registerLiveRoutes(mux *http.ServeMux, live LiveView) {
	mux.HandleFunc("POST /api/recording/{action}", func(w http.ResponseWriter, r *http.Request) {
		var err error
		changed := true
		switch r.PathValue("action") {
		case "start":
			err = live.StartRecording(r.Context())
		case "pause":
			changed, err = live.PauseRecording()
		case "resume":
			changed, err = live.ResumeRecording()
		case "stop":
			_, err = live.StopRecording(r.Context())
		default:
			writeJSONError(w, http.StatusBadRequest, "unknown recording action")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "recording": live.Status().Recording})
	})

	mux.HandleFunc("GET /api/recording/snapshot", func(w http.ResponseWriter, r *http.Request) {
		blob, err := live.SnapshotRecording()
		if err != nil {
			writeError(w, err)
			return
		}
		name := capture.RecordingFileName(time.Now(), r.URL.Query().Get("name"), blob.MimeType)
		w.Header().Set("Content-Type", blob.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
		w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob.Data)
	})

	mux.HandleFunc("POST /api/transcription/{action}", func(w http.ResponseWriter, r *http.Request) {
		var err error
		switch r.PathValue("action") {
		case "open":
			err = live.OpenTranscription(r.Context())
		case "close":
			err = live.CloseTranscription()
		default:
			writeJSONError(w, http.StatusBadRequest, "unknown transcription action")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, live.Status())
	})

	mux.HandleFunc("POST /api/session/end", func(w http.ResponseWriter, r *http.Request) {
		if err := live.EndSession(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/captions", func(w http.ResponseWriter, r *http.Request) {
		seconds, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
		if err != nil || seconds < 0 {
			writeJSONError(w, http.StatusBadRequest, "t must be a non-negative number of seconds")
			return
		}
		writeJSON(w, http.StatusOK, live.Captions(time.Duration(seconds*float64(time.Second))))
	})

	mux.HandleFunc("POST /api/captions/visibility", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Visible bool `json:"visible"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		live.SetCaptionsVisible(body.Visible)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/captions/settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, live.CaptionSettings())
	})

	mux.HandleFunc("PUT /api/captions/settings", func(w http.ResponseWriter, r *http.Request) {
		settings := live.CaptionSettings()
		if !decodeJSON(w, r, &settings) {
			return
		}
		if err := live.SetCaptionSettings(settings); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	})
}

func registerConferenceRoutes(mux *http.ServeMux, events EventPublisher, commander Commander) {
	mux.HandleFunc("POST /api/conference/events", func(w http.ResponseWriter, r *http.Request) {
		var ev conference.Event
		if !decodeJSON(w, r, &ev) {
			return
		}
		if !ev.Kind.Valid() {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown event kind %q", ev.Kind))
			return
		}
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		events.Publish(ev)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /api/conference/commands", func(w http.ResponseWriter, r *http.Request) {
		var cmd conference.Command
		if !decodeJSON(w, r, &cmd) {
			return
		}
		if err := commander.Execute(r.Context(), cmd); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /api/conference/participants", func(w http.ResponseWriter, r *http.Request) {
		participants := commander.Participants()
		if participants == nil {
			participants = []conference.Participant{}
		}
		writeJSON(w, http.StatusOK, participants)
	})
}

func withSessionID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !idPattern.MatchString(id) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		fn(w, r, id)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var invalid validator.ValidationErrors
	switch {
	case errors.Is(err, capture.ErrInvalidState),
		errors.Is(err, ingest.ErrInvalidState),
		errors.Is(err, ingest.ErrHandleClosed),
		errors.Is(err, transcribe.ErrInvalidState),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, transcribe.ErrSegmentNotFound),
		errors.Is(err, capture.ErrNoRecording),
		errors.Is(err, sql.ErrNoRows),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrDeviceUnavailable),
		errors.Is(err, session.ErrTranscriptionDisabled),
		errors.Is(err, session.ErrSummariesDisabled),
		errors.Is(err, conference.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, subtitle.ErrUnknownFormat),
		errors.Is(err, transcribe.ErrInvalidSplit),
		errors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
