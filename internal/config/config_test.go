package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/subtitle"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN", "DB_PATH", "DATA_DIR", "LOG_LEVEL",
		"CAPTURE_DEVICE", "FLUSH_INTERVAL", "SAMPLE_RATE",
		"TRANSCRIPTION_PROVIDER", "BACKEND_URL", "STREAM_URL", "LANGUAGE",
		"SUMMARY_MODEL", "GDRIVE_FOLDER_ID", "GOOGLE_CREDENTIALS_FILE",
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"BACKEND_TOKEN", "CONFIG",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "data/classroom-live.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("expected default data_dir, got %q", cfg.DataDir)
	}
	if cfg.FlushInterval() != time.Second {
		t.Fatalf("expected default flush interval 1s, got %s", cfg.FlushInterval())
	}
	if cfg.Capture.Audio.SampleRate != capture.DefaultConstraints().Audio.SampleRate {
		t.Fatalf("expected default sample rate, got %d", cfg.Capture.Audio.SampleRate)
	}
	if cfg.Transcription.Language != "en-US" {
		t.Fatalf("expected default language en-US, got %q", cfg.Transcription.Language)
	}
	if cfg.Subtitles != subtitle.DefaultDisplaySettings() {
		t.Fatalf("expected default subtitle settings, got %+v", cfg.Subtitles)
	}
	if cfg.Summarization.Model != "openai/gpt-4o-mini" || cfg.Summarization.DefaultPreset != "brief" {
		t.Fatalf("unexpected summarization defaults %+v", cfg.Summarization)
	}
	for _, name := range []string{"brief", "detailed", "key_points"} {
		p, ok := cfg.Summarization.Presets[name]
		if !ok || !strings.Contains(p.UserTemplate, "{{transcript}}") {
			t.Fatalf("expected preset %q with transcript placeholder, got %+v", name, p)
		}
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
listen: 0.0.0.0:9000
db_path: /custom/db.sqlite
data_dir: /custom/data
log_level: debug
capture:
  device: none
  flush_interval: 250ms
  mime_types: [audio/L16]
  audio:
    enabled: true
    sample_rate: 16000
    channel_count: 1
transcription:
  provider: backend
  base_url: https://asr.example.edu/api
  language: fr-FR
  max_speakers: 4
  custom_vocabulary: [photosynthesis, chlorophyll]
  output_formats: [vtt, txt]
subtitles:
  font_size: 20
  font_family: Inter
  text_color: "#ffffff"
  background_color: "#111111"
  position: top
  opacity: 0.8
  max_lines: 3
  hide_delay_ms: 2000
summarization:
  model: anthropic/claude-3-5-haiku-latest
  default_preset: detailed
gdrive:
  folder_id: my-folder
  credentials_file: /path/to/creds.json
`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != "0.0.0.0:9000" || cfg.DBPath != "/custom/db.sqlite" || cfg.DataDir != "/custom/data" {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}
	if cfg.Capture.Device != "none" || cfg.FlushInterval() != 250*time.Millisecond {
		t.Fatalf("unexpected capture %+v", cfg.Capture)
	}
	if !reflect.DeepEqual(cfg.Capture.MimeTypes, []string{"audio/L16"}) {
		t.Fatalf("unexpected mime types %v", cfg.Capture.MimeTypes)
	}
	if cfg.Capture.Audio.SampleRate != 16000 || cfg.Capture.Audio.ChannelCount != 1 {
		t.Fatalf("unexpected audio constraints %+v", cfg.Capture.Audio)
	}
	if cfg.Capture.Video.Width != 1920 {
		t.Fatalf("expected unspecified video constraints to keep defaults, got %+v", cfg.Capture.Video)
	}
	tr := cfg.Transcription
	if tr.Provider != ProviderBackend || tr.BaseURL != "https://asr.example.edu/api" || tr.Language != "fr-FR" || tr.MaxSpeakers != 4 {
		t.Fatalf("unexpected transcription %+v", tr)
	}
	if !reflect.DeepEqual(tr.CustomVocabulary, []string{"photosynthesis", "chlorophyll"}) {
		t.Fatalf("unexpected vocabulary %v", tr.CustomVocabulary)
	}
	if got := cfg.ExportFormats(); !reflect.DeepEqual(got, []subtitle.Format{subtitle.FormatVTT, subtitle.FormatText}) {
		t.Fatalf("unexpected export formats %v", got)
	}
	if cfg.Subtitles.FontSize != 20 || cfg.Subtitles.Position != subtitle.Position("top") {
		t.Fatalf("unexpected subtitles %+v", cfg.Subtitles)
	}
	if cfg.Summarization.Model != "anthropic/claude-3-5-haiku-latest" || cfg.Summarization.DefaultPreset != "detailed" {
		t.Fatalf("unexpected summarization %+v", cfg.Summarization)
	}
	if cfg.GDrive.FolderID != "my-folder" || cfg.GDrive.CredentialsFile != "/path/to/creds.json" {
		t.Fatalf("unexpected gdrive %+v", cfg.GDrive)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "db_path: /yaml/db.sqlite\n")

	t.Setenv(EnvPrefix+"DB_PATH", "/env/db.sqlite")
	t.Setenv(EnvPrefix+"LANGUAGE", "es-ES")
	t.Setenv(EnvPrefix+"SAMPLE_RATE", " 44100 ")
	t.Setenv(EnvPrefix+"GDRIVE_FOLDER_ID", "env-folder")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/env/db.sqlite" {
		t.Fatalf("expected env db_path to win, got %q", cfg.DBPath)
	}
	if cfg.Transcription.Language != "es-ES" {
		t.Fatalf("expected env language, got %q", cfg.Transcription.Language)
	}
	if cfg.Capture.Audio.SampleRate != 44100 {
		t.Fatalf("expected env sample rate, got %d", cfg.Capture.Audio.SampleRate)
	}
	if cfg.GDrive.FolderID != "env-folder" {
		t.Fatalf("expected env folder id, got %q", cfg.GDrive.FolderID)
	}
}

func TestInvalidSampleRateEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"SAMPLE_RATE", "fast")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.Audio.SampleRate != capture.DefaultConstraints().Audio.SampleRate {
		t.Fatalf("expected default sample rate, got %d", cfg.Capture.Audio.SampleRate)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "deepgram_api_key: from-yaml\n")
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg-key")
	t.Setenv(EnvPrefix+"ANTHROPIC_API_KEY", "ant-key")
	t.Setenv(EnvPrefix+"BACKEND_TOKEN", "token")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "dg-key" || cfg.BackendToken != "token" {
		t.Fatalf("unexpected secrets %q %q", cfg.DeepgramAPIKey, cfg.BackendToken)
	}
	if cfg.APIKey("anthropic") != "ant-key" || cfg.APIKey("openai") != "" || cfg.APIKey("mistral") != "" {
		t.Fatal("unexpected provider key lookup")
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Fatalf("expected default listen, got %q", cfg.Listen)
	}
}

func TestMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "capture: [unterminated\n")
	if _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestWarningsForMissingKeys(t *testing.T) {
	clearEnv(t)

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !hasWarning(warnings, "DEEPGRAM_API_KEY") {
		t.Fatalf("expected deepgram warning, got %v", warnings)
	}
	if cfg.Transcription.Provider != ProviderNone {
		t.Fatalf("expected transcription disabled, got %q", cfg.Transcription.Provider)
	}
	if !hasWarning(warnings, "OPENAI_API_KEY") {
		t.Fatalf("expected openai warning, got %v", warnings)
	}
}

func TestNoWarningsWhenConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg-key")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oa-key")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if cfg.Transcription.Provider != ProviderDeepgram {
		t.Fatalf("expected deepgram provider, got %q", cfg.Transcription.Provider)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg-key")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oa-key")
	path := writeConfig(t, `
log_level: loud
capture:
  flush_interval: soon
transcription:
  provider: carrier-pigeon
  max_speakers: 99
subtitles:
  font_size: 80
summarization:
  model: gpt-4o
  default_preset: poem
`)

	cfg, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, want := range []string{"log_level", "flush_interval", "carrier-pigeon", "transcription settings", "subtitle settings", "provider/model", "poem"} {
		if !hasWarning(warnings, want) {
			t.Fatalf("expected warning mentioning %q, got %v", want, warnings)
		}
	}
	if cfg.FlushInterval() != time.Second || cfg.SlogLevel() != slog.LevelInfo {
		t.Fatal("expected fallbacks for flush interval and log level")
	}
	if cfg.Transcription.Provider != ProviderNone || cfg.Transcription.MaxSpeakers != 10 {
		t.Fatalf("expected provider none and default settings, got %+v", cfg.Transcription)
	}
	if cfg.Subtitles != subtitle.DefaultDisplaySettings() {
		t.Fatalf("expected default subtitles, got %+v", cfg.Subtitles)
	}
}

func TestPath(t *testing.T) {
	clearEnv(t)
	if Path() != "config.yaml" {
		t.Fatalf("expected default config path, got %q", Path())
	}
	t.Setenv(EnvPrefix+"CONFIG", "/etc/classroom-live.yaml")
	if Path() != "/etc/classroom-live.yaml" {
		t.Fatalf("expected env config path, got %q", Path())
	}
}
