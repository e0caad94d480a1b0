package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/classroom-live/internal/backend"
	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/subtitle"
)

// EnvPrefix is the namespace prefix for all Classroom Live environment variables.
const EnvPrefix = "CLASSROOM_LIVE_"

const (
	ProviderBackend  = "backend"
	ProviderDeepgram = "deepgram"
	ProviderNone     = "none"
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Capture       Capture                  `yaml:"capture"`
	Transcription Transcription            `yaml:"transcription"`
	Subtitles     subtitle.DisplaySettings `yaml:"subtitles"`
	Summarization Summarization            `yaml:"summarization"`
	GDrive        GDrive                   `yaml:"gdrive"`

	// Secrets, env vars only.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	BackendToken    string `yaml:"-"`
}

type Capture struct {
	// Device is "portaudio" for the default microphone or "none".
	Device              string   `yaml:"device"`
	FlushInterval       string   `yaml:"flush_interval"`
	MimeTypes           []string `yaml:"mime_types"`
	capture.Constraints `yaml:",inline"`
}

type Transcription struct {
	Provider         string `yaml:"provider"`
	BaseURL          string `yaml:"base_url"`
	StreamURL        string `yaml:"stream_url"`
	DeepgramModel    string `yaml:"deepgram_model"`
	AutoStart        bool   `yaml:"auto_start"`
	backend.Settings `yaml:",inline"`
}

type Summarization struct {
	Model         string            `yaml:"model"`
	DefaultPreset string            `yaml:"default_preset"`
	Presets       map[string]Preset `yaml:"presets"`
}

type Preset struct {
	Description  string `yaml:"description"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	UserTemplate string `yaml:"user_template"`
}

type GDrive struct {
	FolderID        string `yaml:"folder_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

func defaults() Config {
	return Config{
		Listen:   "127.0.0.1:8080",
		DBPath:   "data/classroom-live.db",
		DataDir:  "data",
		LogLevel: "info",
		Capture: Capture{
			Device:        "portaudio",
			FlushInterval: "1s",
			MimeTypes:     []string{"video/webm;codecs=vp9,opus", "video/webm", capture.MimeTypeL16},
			Constraints:   capture.DefaultConstraints(),
		},
		Transcription: Transcription{
			Provider:  ProviderDeepgram,
			AutoStart: true,
			Settings:  backend.DefaultSettings(),
		},
		Subtitles:     subtitle.DefaultDisplaySettings(),
		Summarization: defaultSummarization(),
		GDrive: GDrive{
			CredentialsFile: "./service-account.json",
		},
	}
}

func defaultSummarization() Summarization {
	return Summarization{
		Model:         "openai/gpt-4o-mini",
		DefaultPreset: "brief",
		Presets: map[string]Preset{
			"brief": {
				Description:  "Short recap of a lecture: topics covered and homework",
				SystemPrompt: "You summarize classroom lecture transcripts for students. Be concise and use markdown.",
				UserTemplate: "Lecture on {{date}}. Summarize the topics covered and any assignments in a few bullet points.\n\n{{transcript}}",
			},
			"detailed": {
				Description:  "Full study notes with sections per topic, definitions and examples",
				SystemPrompt: "You turn classroom lecture transcripts into structured study notes in markdown.",
				UserTemplate: "Lecture on {{date}}. Write study notes with one section per topic, including definitions, worked examples and open questions raised by students.\n\n{{transcript}}",
			},
			"key_points": {
				Description:  "Discussion-heavy sessions: key arguments, questions and decisions",
				SystemPrompt: "You summarize classroom discussions in markdown.",
				UserTemplate: "Session on {{date}}. List the key points made, the questions asked with their answers, and any decisions or follow-ups.\n\n{{transcript}}",
			},
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// Path returns the config file location, honoring CLASSROOM_LIVE_CONFIG.
func Path() string {
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}

// FlushInterval returns Capture.FlushInterval as a time.Duration, falling
// back to 1s if the value is invalid.
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.Capture.FlushInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// APIKey returns the secret for an LLM provider name.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}

// ExportFormats lists the transcript formats written when a session ends.
func (c *Config) ExportFormats() []subtitle.Format {
	formats := make([]subtitle.Format, 0, len(c.Transcription.OutputFormats))
	for _, raw := range c.Transcription.OutputFormats {
		if f, err := subtitle.ParseFormat(raw); err == nil {
			formats = append(formats, f)
		}
	}
	return formats
}

func applyEnvOverrides(cfg *Config) {
	fields := map[string]*string{
		"LISTEN":                  &cfg.Listen,
		"DB_PATH":                 &cfg.DBPath,
		"DATA_DIR":                &cfg.DataDir,
		"LOG_LEVEL":               &cfg.LogLevel,
		"CAPTURE_DEVICE":          &cfg.Capture.Device,
		"FLUSH_INTERVAL":          &cfg.Capture.FlushInterval,
		"TRANSCRIPTION_PROVIDER":  &cfg.Transcription.Provider,
		"BACKEND_URL":             &cfg.Transcription.BaseURL,
		"STREAM_URL":              &cfg.Transcription.StreamURL,
		"LANGUAGE":                &cfg.Transcription.Language,
		"SUMMARY_MODEL":           &cfg.Summarization.Model,
		"GDRIVE_FOLDER_ID":        &cfg.GDrive.FolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GDrive.CredentialsFile,
	}
	for key, dst := range fields {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.Capture.Audio.SampleRate = rate
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.BackendToken = os.Getenv(EnvPrefix + "BACKEND_TOKEN")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcription.Provider {
	case ProviderDeepgram:
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured. Live transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
			cfg.Transcription.Provider = ProviderNone
		}
	case ProviderBackend:
		if cfg.Transcription.BaseURL == "" {
			warnings = append(warnings, "Transcription backend URL not configured. Live transcription is disabled. Set transcription.base_url.")
			cfg.Transcription.Provider = ProviderNone
		}
	case ProviderNone:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription provider %q. Live transcription is disabled.", cfg.Transcription.Provider))
		cfg.Transcription.Provider = ProviderNone
	}

	if err := cfg.Transcription.Settings.Validate(); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid transcription settings (%v). Using defaults.", err))
		cfg.Transcription.Settings = backend.DefaultSettings()
	}
	if err := cfg.Subtitles.Validate(); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid subtitle settings (%v). Using defaults.", err))
		cfg.Subtitles = subtitle.DefaultDisplaySettings()
	}
	if d, err := time.ParseDuration(cfg.Capture.FlushInterval); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid capture.flush_interval %q. Using default 1s.", cfg.Capture.FlushInterval))
	}
	if level := cfg.LogLevel; level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid log_level %q. Using info.", level))
		}
	}

	warnings = append(warnings, validateSummarization(cfg)...)
	return warnings
}

func validateSummarization(cfg *Config) []string {
	var warnings []string
	s := &cfg.Summarization

	if len(s.Presets) == 0 {
		s.Presets = defaultSummarization().Presets
	}
	if _, ok := s.Presets[s.DefaultPreset]; !ok {
		warnings = append(warnings, fmt.Sprintf("Unknown summarization.default_preset %q.", s.DefaultPreset))
	}

	models := []string{s.Model}
	for _, p := range s.Presets {
		if p.Model != "" {
			models = append(models, p.Model)
		}
	}
	for _, m := range models {
		provider, _, ok := strings.Cut(m, "/")
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Invalid summarization model %q. Expected provider/model.", m))
			continue
		}
		if cfg.APIKey(provider) == "" {
			warnings = append(warnings, fmt.Sprintf("No API key for %s. Summaries using %s are disabled. Set %s%s_API_KEY.",
				provider, m, EnvPrefix, strings.ToUpper(provider)))
		}
	}
	return warnings
}
