package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcription backend error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

type Job struct {
	ID                    string    `json:"id"`
	SessionID             string    `json:"sessionId"`
	RecordingID           string    `json:"recordingId,omitempty"`
	Status                JobStatus `json:"status"`
	Progress              int       `json:"progress"`
	Language              string    `json:"language"`
	SpeakerIdentification bool      `json:"speakerIdentification"`
	RealTimeEnabled       bool      `json:"realTimeEnabled"`
	AutoCorrection        bool      `json:"autoCorrection"`
	CustomVocabulary      []string  `json:"customVocabulary,omitempty"`
	StartedAt             string    `json:"startedAt,omitempty"`
	CompletedAt           string    `json:"completedAt,omitempty"`
	ErrorMessage          string    `json:"errorMessage,omitempty"`
	WordCount             int       `json:"wordCount,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j Job) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// wireSegment is the backend's segment representation: seconds as floats.
type wireSegment struct {
	ID         string     `json:"id"`
	StartTime  float64    `json:"startTime"`
	EndTime    float64    `json:"endTime"`
	Speaker    string     `json:"speaker"`
	SpeakerID  string     `json:"speakerId,omitempty"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Language   string     `json:"language"`
	IsEdited   bool       `json:"isEdited"`
	EditedBy   string     `json:"editedBy,omitempty"`
	EditedAt   *time.Time `json:"editedAt,omitempty"`
}

func (w wireSegment) segment() transcribe.Segment {
	return transcribe.Segment{
		ID:         w.ID,
		SpeakerID:  w.SpeakerID,
		Speaker:    w.Speaker,
		Text:       w.Text,
		StartTime:  time.Duration(w.StartTime * float64(time.Second)),
		EndTime:    time.Duration(w.EndTime * float64(time.Second)),
		Confidence: w.Confidence,
		Language:   w.Language,
		IsEdited:   w.IsEdited,
		EditedBy:   w.EditedBy,
		EditedAt:   w.EditedAt,
	}
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the transcription backend's REST API.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) StartRealtime(ctx context.Context, sessionID string, s Settings) (Job, error) {
	var job Job
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/transcription/start", s, &job)
	return job, err
}

func (c *Client) StopRealtime(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/transcription/stop", nil, nil)
}

// RequestTranscription starts a batch job over a stored recording.
func (c *Client) RequestTranscription(ctx context.Context, recordingID string, s Settings) (Job, error) {
	var job Job
	err := c.do(ctx, http.MethodPost, "/recordings/"+url.PathEscape(recordingID)+"/transcription", s, &job)
	return job, err
}

func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := c.do(ctx, http.MethodGet, "/transcription/jobs/"+url.PathEscape(jobID), nil, &job)
	return job, err
}

func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/transcription/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

func (c *Client) RetryJob(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := c.do(ctx, http.MethodPost, "/transcription/jobs/"+url.PathEscape(jobID)+"/retry", nil, &job)
	return job, err
}

func (c *Client) EditSegment(ctx context.Context, segmentID, text string) (transcribe.Segment, error) {
	var w wireSegment
	err := c.do(ctx, http.MethodPatch, "/transcription/segments/"+url.PathEscape(segmentID), map[string]string{"text": text}, &w)
	return w.segment(), err
}

func (c *Client) MergeSegments(ctx context.Context, segmentIDs []string) (transcribe.Segment, error) {
	var w wireSegment
	err := c.do(ctx, http.MethodPost, "/transcription/segments/merge", map[string][]string{"segmentIds": segmentIDs}, &w)
	return w.segment(), err
}

func (c *Client) SplitSegment(ctx context.Context, segmentID string, at time.Duration) ([]transcribe.Segment, error) {
	var ws []wireSegment
	body := map[string]float64{"splitTime": at.Seconds()}
	if err := c.do(ctx, http.MethodPost, "/transcription/segments/"+url.PathEscape(segmentID)+"/split", body, &ws); err != nil {
		return nil, err
	}
	out := make([]transcribe.Segment, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.segment())
	}
	return out, nil
}

func (c *Client) UpdateSpeaker(ctx context.Context, recordingID, speakerID, name string) error {
	path := "/recordings/" + url.PathEscape(recordingID) + "/speakers/" + url.PathEscape(speakerID)
	return c.do(ctx, http.MethodPatch, path, map[string]string{"name": name}, nil)
}

// DownloadSubtitles fetches a rendered subtitle track (vtt, srt or ass).
func (c *Client) DownloadSubtitles(ctx context.Context, recordingID, language, format string) ([]byte, error) {
	q := url.Values{"language": {language}, "format": {format}}
	path := "/recordings/" + url.PathEscape(recordingID) + "/subtitles/download?" + q.Encode()
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}
