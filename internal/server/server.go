package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sjawhar/classroom-live/internal/conference"
	"github.com/sjawhar/classroom-live/internal/config"
)

const shutdownTimeout = 5 * time.Second

type Deps struct {
	Hub        *Hub
	Store      SessionStore
	Live       LiveView
	Events     EventPublisher
	Conference Commander
	Warnings   func() []string
	Presets    func() map[string]config.Preset
}

func Handler(staticFS fs.FS, d Deps) (http.Handler, error) {
	if d.Hub == nil || d.Store == nil || d.Live == nil {
		return nil, errors.New("server: hub, store and live view are required")
	}
	if d.Conference == nil {
		d.Conference = HubEngine{Hub: d.Hub}
	}
	if d.Events == nil {
		d.Events = discardEvents{}
	}

	mux := http.NewServeMux()

	registerWSRoute(mux, d.Hub)
	registerAPIRoutes(mux, d)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return mux, nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, addr string, staticFS fs.FS, d Deps) error {
	h, err := Handler(staticFS, d)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web UI listening", "url", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.NotFound(w, r)
			return
		}

		if r.URL.Path == "/manifest.json" || r.URL.Path == "/manifest.webmanifest" {
			w.Header().Set("Content-Type", "application/manifest+json")
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/index.html"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}

type discardEvents struct{}

func (discardEvents) Publish(conference.Event) {}
