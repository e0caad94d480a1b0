package summary

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sjawhar/classroom-live/internal/config"
	"github.com/sjawhar/classroom-live/internal/llm"
)

// Router asks the summarization model which preset fits a lecture best.
type Router struct {
	cfg     config.Summarization
	factory llm.Factory
}

func NewRouter(cfg config.Summarization, factory llm.Factory) *Router {
	return &Router{cfg: cfg, factory: factory}
}

// SampleTranscript keeps the opening, middle and closing words of a long
// transcript, joined by omission markers.
func SampleTranscript(transcript string, firstN, midN, lastN int) string {
	words := strings.Fields(transcript)
	total := len(words)

	if total <= firstN+midN+lastN {
		return transcript
	}

	first := strings.Join(words[:firstN], " ")
	midStart := (total - midN) / 2
	mid := strings.Join(words[midStart:midStart+midN], " ")
	last := strings.Join(words[total-lastN:], " ")

	return first + "\n\n[...]\n\n" + mid + "\n\n[...]\n\n" + last
}

func (r *Router) SelectPreset(ctx context.Context, transcript string) (string, error) {
	sampled := SampleTranscript(transcript, 300, 200, 200)

	var presetList strings.Builder
	for _, name := range sortedPresets(r.cfg.Presets) {
		fmt.Fprintf(&presetList, "- %s: %s\n", name, r.cfg.Presets[name].Description)
	}

	prompt := fmt.Sprintf(`Given this classroom session excerpt, choose the single best summarization preset.

Session excerpt:
%s

Available presets:
%s
Reply with ONLY the preset name, nothing else.`, sampled, presetList.String())

	provider, model, err := llm.ParseModel(r.cfg.Model)
	if err != nil {
		slog.Warn("router: falling back to default preset", "reason", "parse model failed", "error", err)
		return r.fallbackPreset(), nil
	}

	client, err := r.factory(provider, model)
	if err != nil {
		slog.Warn("router: falling back to default preset", "reason", "create client failed", "error", err)
		return r.fallbackPreset(), nil
	}

	result, err := client.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		slog.Warn("router: falling back to default preset", "reason", "llm complete failed", "error", err)
		return r.fallbackPreset(), nil
	}

	chosen := strings.Trim(strings.TrimSpace(result), "`\"'.")
	if _, ok := r.cfg.Presets[chosen]; ok {
		return chosen, nil
	}

	slog.Warn("router: falling back to default preset", "reason", "chosen preset not found", "chosen", chosen)
	return r.fallbackPreset(), nil
}

func (r *Router) fallbackPreset() string {
	if _, ok := r.cfg.Presets[r.cfg.DefaultPreset]; ok {
		return r.cfg.DefaultPreset
	}
	return firstPreset(r.cfg.Presets)
}

func firstPreset(presets map[string]config.Preset) string {
	if _, ok := presets["default"]; ok {
		return "default"
	}
	names := sortedPresets(presets)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func sortedPresets(presets map[string]config.Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
