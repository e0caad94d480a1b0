package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/gordonklaus/portaudio"
	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/classroom-live/internal/backend"
	"github.com/sjawhar/classroom-live/internal/capture"
	"github.com/sjawhar/classroom-live/internal/conference"
	"github.com/sjawhar/classroom-live/internal/config"
	"github.com/sjawhar/classroom-live/internal/gdrive"
	"github.com/sjawhar/classroom-live/internal/ingest"
	"github.com/sjawhar/classroom-live/internal/llm"
	"github.com/sjawhar/classroom-live/internal/server"
	"github.com/sjawhar/classroom-live/internal/session"
	"github.com/sjawhar/classroom-live/internal/storage"
	"github.com/sjawhar/classroom-live/internal/summary"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	cfg, warnings, err := config.Load(config.Path())
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	for _, w := range warnings {
		slog.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, warnings); err != nil {
		slog.Error("classroom-live exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, warnings []string) error {
	slog.Info("classroom-live: starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	device, release := captureDevice(cfg.Capture.Device)
	defer release()

	hub := server.NewHub()
	source, jobs, mirror := transcription(cfg)

	var summarizer *summary.Summarizer
	if summariesEnabled(cfg) {
		summarizer = summary.New(cfg.Summarization, llm.NewFactory(cfg.APIKey), store)
	}

	var uploader session.Uploader
	if cfg.GDrive.FolderID != "" {
		syncer, err := gdrive.NewSyncer(ctx, cfg.GDrive.CredentialsFile, cfg.GDrive.FolderID)
		if err != nil {
			slog.Warn("gdrive sync disabled", "error", err)
			warnings = append(warnings, "Google Drive sync disabled: "+err.Error())
		} else {
			uploader = syncer
		}
	}

	recorder := capture.NewEngine(device, capture.Options{
		FlushInterval: cfg.FlushInterval(),
		MimeTypes:     cfg.Capture.MimeTypes,
		OnError: func(err error) {
			slog.Warn("capture error", "error", err)
		},
	})

	mcfg := session.Config{
		Store:          store,
		Recorder:       recorder,
		Source:         source,
		Jobs:           jobs,
		Files:          storage.NewWriter(cfg.DataDir),
		Uploader:       uploader,
		Mirror:         mirror,
		Hub:            hub,
		Constraints:    cfg.Capture.Constraints,
		Transcription:  cfg.Transcription.Settings,
		Display:        cfg.Subtitles,
		ExportFormats:  cfg.ExportFormats(),
		AutoTranscribe: cfg.Transcription.AutoStart,
	}
	// A typed nil would defeat the manager's nil check.
	if summarizer != nil {
		mcfg.Summarizer = summarizer
	}
	manager := session.NewManager(mcfg)

	bus := conference.NewBus()
	bridge := conference.NewBridge(server.HubEngine{Hub: hub}, bus)
	defer bridge.Close()
	detach := manager.Attach(bus)
	defer detach()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("load static files: %w", err)
	}

	deps := server.Deps{
		Hub:        hub,
		Store:      store,
		Live:       manager,
		Events:     bus,
		Conference: bridge,
		Warnings:   func() []string { return warnings },
	}
	if summarizer != nil {
		deps.Presets = summarizer.Presets
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, cfg.Listen, staticFS, deps)
	})
	g.Go(func() error {
		if err := bridge.Wait(gctx); err == nil {
			slog.Info("conference joined", "participants", len(bridge.Participants()))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("classroom-live: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		if err := manager.Close(shutdownCtx); err != nil {
			slog.Warn("close live session", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// captureDevice returns the configured input device and its teardown.
func captureDevice(name string) (capture.Device, func()) {
	if name != "portaudio" {
		slog.Warn("local capture disabled", "device", name)
		return noDevice{}, func() {}
	}
	if err := portaudio.Initialize(); err != nil {
		slog.Warn("portaudio unavailable, local capture disabled", "error", err)
		return noDevice{}, func() {}
	}
	return capture.PortAudioDevice{}, func() { _ = portaudio.Terminate() }
}

// transcription builds the live source for the configured provider. Jobs and
// the mirror are only set for the transcription backend.
func transcription(cfg config.Config) (ingest.Source, ingest.JobController, session.SegmentMirror) {
	switch cfg.Transcription.Provider {
	case config.ProviderDeepgram:
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
		return ingest.DeepgramSource{
			APIKey:     cfg.DeepgramAPIKey,
			Model:      cfg.Transcription.DeepgramModel,
			SampleRate: sampleRate(cfg.Capture.Constraints),
			Channels:   cfg.Capture.Audio.ChannelCount,
		}, nil, nil
	case config.ProviderBackend:
		bc := backend.NewClient(backend.Config{BaseURL: cfg.Transcription.BaseURL, Token: cfg.BackendToken})
		streamURL := cfg.Transcription.StreamURL
		if streamURL == "" {
			streamURL = cfg.Transcription.BaseURL
		}
		return ingest.WebSocketSource{BaseURL: streamURL, Token: cfg.BackendToken}, bc, bc
	}
	return nil, nil, nil
}

func sampleRate(c capture.Constraints) int {
	if c.Audio.SampleRate > 0 {
		return c.Audio.SampleRate
	}
	return 16000
}

// summariesEnabled reports whether the default summary model has a key.
func summariesEnabled(cfg config.Config) bool {
	provider, _, err := llm.ParseModel(cfg.Summarization.Model)
	if err != nil {
		return false
	}
	return cfg.APIKey(provider) != ""
}

// noDevice supports no mime type, so starting a recording reports
// capture.ErrDeviceUnavailable.
type noDevice struct{}

func (noDevice) Supports(string) bool { return false }

func (noDevice) Open(context.Context, capture.Constraints, string) (capture.Stream, error) {
	return nil, capture.ErrDeviceUnavailable
}
