package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

const (
	SummaryPending   = "pending"
	SummaryRunning   = "running"
	SummaryCompleted = "completed"
	SummaryFailed    = "failed"
	SummarySkipped   = "skipped"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

type Session struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         string     `json:"status"`
	MimeType       string     `json:"mime_type"`
	RecordingPath  string     `json:"recording_path"`
	RecordingBytes int64      `json:"recording_bytes"`
	DurationMS     int64      `json:"duration_ms"`
	Summary        string     `json:"summary"`
	SummaryStatus  string     `json:"summary_status"`
	SummaryPreset  string     `json:"summary_preset"`
}

// Recording describes the finalized capture attached to an ended session.
type Recording struct {
	Path     string
	MimeType string
	Bytes    int64
	Duration time.Duration
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "classroom-live.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	statements := []struct {
		name string
		sql  string
	}{
		{"sessions table", `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				started_at TEXT NOT NULL,
				ended_at TEXT,
				status TEXT NOT NULL,
				mime_type TEXT NOT NULL DEFAULT '',
				recording_path TEXT NOT NULL DEFAULT '',
				recording_bytes INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				summary TEXT NOT NULL DEFAULT '',
				summary_status TEXT NOT NULL DEFAULT 'pending',
				summary_preset TEXT NOT NULL DEFAULT ''
			);`},
		{"segments table", `
			CREATE TABLE IF NOT EXISTS segments (
				session_id TEXT NOT NULL,
				id TEXT NOT NULL,
				speaker_id TEXT NOT NULL DEFAULT '',
				speaker TEXT NOT NULL DEFAULT '',
				text TEXT NOT NULL,
				start_ms INTEGER NOT NULL,
				end_ms INTEGER NOT NULL,
				confidence REAL NOT NULL DEFAULT 0,
				language TEXT NOT NULL DEFAULT '',
				is_edited INTEGER NOT NULL DEFAULT 0,
				edited_by TEXT NOT NULL DEFAULT '',
				edited_at TEXT,
				PRIMARY KEY(session_id, id),
				FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
			);`},
		{"summary_requests table", `
			CREATE TABLE IF NOT EXISTS summary_requests (
				session_id TEXT NOT NULL,
				prompt_hash TEXT NOT NULL,
				created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(session_id, prompt_hash)
			);`},
		{"sessions index", "CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"},
		{"segments index", "CREATE INDEX IF NOT EXISTS idx_segments_start ON segments(session_id, start_ms)"},
	}
	for _, st := range statements {
		if _, err := s.db.Exec(st.sql); err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateSession(id string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, started_at, status, summary_status) VALUES(?, ?, ?, ?)`,
		id,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusActive,
		SummaryPending,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) EndSession(id string, endedAt time.Time, rec Recording) error {
	res, err := s.db.Exec(
		`UPDATE sessions
		 SET ended_at = ?, status = ?, mime_type = ?, recording_path = ?, recording_bytes = ?, duration_ms = ?
		 WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		StatusEnded,
		rec.MimeType,
		rec.Path,
		rec.Bytes,
		rec.Duration.Milliseconds(),
		id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return requireRow(res, "end session")
}

// UpsertSegment stores a committed segment, replacing an earlier version
// with the same id after an edit.
func (s *SQLiteStore) UpsertSegment(sessionID string, seg transcribe.Segment) error {
	var editedAt sql.NullString
	if seg.EditedAt != nil {
		editedAt = sql.NullString{String: seg.EditedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO segments(session_id, id, speaker_id, speaker, text, start_ms, end_ms, confidence, language, is_edited, edited_by, edited_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, id) DO UPDATE SET
			speaker_id = excluded.speaker_id,
			speaker = excluded.speaker,
			text = excluded.text,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			confidence = excluded.confidence,
			language = excluded.language,
			is_edited = excluded.is_edited,
			edited_by = excluded.edited_by,
			edited_at = excluded.edited_at`,
		sessionID,
		seg.ID,
		seg.SpeakerID,
		seg.Speaker,
		strings.TrimSpace(seg.Text),
		seg.StartTime.Milliseconds(),
		seg.EndTime.Milliseconds(),
		seg.Confidence,
		seg.Language,
		seg.IsEdited,
		seg.EditedBy,
		editedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert segment %s for session %s: %w", seg.ID, sessionID, err)
	}
	return nil
}

// DeleteSegment removes a segment absorbed by a merge.
func (s *SQLiteStore) DeleteSegment(sessionID, segmentID string) error {
	res, err := s.db.Exec(`DELETE FROM segments WHERE session_id = ? AND id = ?`, sessionID, segmentID)
	if err != nil {
		return fmt.Errorf("delete segment %s for session %s: %w", segmentID, sessionID, err)
	}
	return requireRow(res, "delete segment")
}

func (s *SQLiteStore) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSegments(sessionID string) ([]transcribe.Segment, error) {
	rows, err := s.db.Query(
		`SELECT id, speaker_id, speaker, text, start_ms, end_ms, confidence, language, is_edited, edited_by, edited_at
		 FROM segments
		 WHERE session_id = ?
		 ORDER BY start_ms ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]transcribe.Segment, 0, 32)
	for rows.Next() {
		var seg transcribe.Segment
		var startMS, endMS int64
		var editedAt sql.NullString
		if err := rows.Scan(
			&seg.ID, &seg.SpeakerID, &seg.Speaker, &seg.Text, &startMS, &endMS,
			&seg.Confidence, &seg.Language, &seg.IsEdited, &seg.EditedBy, &editedAt,
		); err != nil {
			return nil, fmt.Errorf("scan segment for session %s: %w", sessionID, err)
		}
		seg.StartTime = time.Duration(startMS) * time.Millisecond
		seg.EndTime = time.Duration(endMS) * time.Millisecond

		if editedAt.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, editedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse segment %s edited_at: %w", seg.ID, err)
			}
			seg.EditedAt = &parsed
		}

		segments = append(segments, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows for session %s: %w", sessionID, err)
	}

	return segments, nil
}

func (s *SQLiteStore) UpdateSummary(sessionID, summary, status, preset string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET summary = ?, summary_status = ?, summary_preset = ? WHERE id = ?`,
		summary,
		status,
		preset,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update summary for session %s: %w", sessionID, err)
	}
	return requireRow(res, "update summary")
}

func (s *SQLiteStore) ClaimSummaryRequest(sessionID, promptHash string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO summary_requests(session_id, prompt_hash) VALUES(?, ?)`,
		sessionID,
		promptHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim summary request for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim summary rows affected: %w", err)
	}

	return rows > 0, nil
}

const sessionColumns = `id, started_at, ended_at, status, mime_type, recording_path, recording_bytes, duration_ms, summary, summary_status, summary_preset`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(
		&sess.ID, &startedAt, &endedAt, &sess.Status, &sess.MimeType, &sess.RecordingPath,
		&sess.RecordingBytes, &sess.DurationMS, &sess.Summary, &sess.SummaryStatus, &sess.SummaryPreset,
	); err != nil {
		return Session{}, err
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}
	return sess, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
