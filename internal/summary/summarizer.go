// Package summary turns finished lecture transcripts into markdown notes
// using a configurable set of prompt presets.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sjawhar/classroom-live/internal/config"
	"github.com/sjawhar/classroom-live/internal/llm"
)

// minWords is the shortest transcript worth summarizing.
const minWords = 20

// ErrDuplicateRequest is returned when the same transcript was already
// submitted for a session.
var ErrDuplicateRequest = errors.New("summary already requested")

type IdempotencyStore interface {
	ClaimSummaryRequest(sessionID, promptHash string) (bool, error)
}

type Summarizer struct {
	cfg     config.Summarization
	factory llm.Factory
	router  *Router
	claims  IdempotencyStore
	sleep   func(time.Duration)
	now     func() time.Time
}

// New builds a Summarizer. With more than one preset, a router picks the
// preset per lecture. claims may be nil.
func New(cfg config.Summarization, factory llm.Factory, claims IdempotencyStore) *Summarizer {
	var router *Router
	if len(cfg.Presets) > 1 {
		router = NewRouter(cfg, factory)
	}
	return &Summarizer{
		cfg:     cfg,
		factory: factory,
		router:  router,
		claims:  claims,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

func (s *Summarizer) Summarize(ctx context.Context, sessionID, transcript string) (string, string, error) {
	if tooShort(transcript) {
		return "", s.defaultPreset(), nil
	}

	if s.claims != nil {
		hash := sha256.Sum256([]byte(transcript))
		claimed, err := s.claims.ClaimSummaryRequest(sessionID, hex.EncodeToString(hash[:]))
		if err != nil {
			return "", "", fmt.Errorf("claim summary request: %w", err)
		}
		if !claimed {
			return "", "", ErrDuplicateRequest
		}
	}

	presetName, err := s.selectPreset(ctx, transcript)
	if err != nil {
		return "", "", fmt.Errorf("select preset: %w", err)
	}
	summary, err := s.SummarizeWithPreset(ctx, sessionID, transcript, presetName)
	return summary, presetName, err
}

func (s *Summarizer) SummarizeWithPreset(ctx context.Context, _ string, transcript, presetName string) (string, error) {
	if tooShort(transcript) {
		return "", nil
	}

	preset, ok := s.cfg.Presets[presetName]
	if !ok {
		return "", fmt.Errorf("unknown preset %q", presetName)
	}

	modelStr := preset.Model
	if modelStr == "" {
		modelStr = s.cfg.Model
	}

	provider, model, err := llm.ParseModel(modelStr)
	if err != nil {
		return "", err
	}

	client, err := s.factory(provider, model)
	if err != nil {
		return "", fmt.Errorf("create llm client: %w", err)
	}

	date := s.now().UTC().Format("2006-01-02")
	userContent := strings.ReplaceAll(preset.UserTemplate, "{{transcript}}", transcript)
	userContent = strings.ReplaceAll(userContent, "{{date}}", date)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: preset.SystemPrompt},
		{Role: llm.RoleUser, Content: userContent},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := client.Complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			s.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize failed after retries: %w", lastErr)
}

func (s *Summarizer) selectPreset(ctx context.Context, transcript string) (string, error) {
	if s.router == nil {
		return s.defaultPreset(), nil
	}
	return s.router.SelectPreset(ctx, transcript)
}

func (s *Summarizer) defaultPreset() string {
	if _, ok := s.cfg.Presets[s.cfg.DefaultPreset]; ok {
		return s.cfg.DefaultPreset
	}
	return firstPreset(s.cfg.Presets)
}

func (s *Summarizer) Presets() map[string]config.Preset {
	return s.cfg.Presets
}

func tooShort(transcript string) bool {
	return len(strings.Fields(transcript)) < minWords
}
