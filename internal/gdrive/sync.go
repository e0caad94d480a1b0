// Package gdrive mirrors finished lecture files into a Google Drive folder.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sjawhar/classroom-live/internal/subtitle"
)

// Syncer uploads recordings and transcript exports. Uploading the same
// path twice replaces the earlier Drive file.
type Syncer struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return newSyncer(ctx, folderID, option.WithCredentials(config))
}

func newSyncer(ctx context.Context, folderID string, opts ...option.ClientOption) (*Syncer, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

func (s *Syncer) Upload(ctx context.Context, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(localPath)
	mimeType := contentType(name)

	if fileID, ok := s.fileIDs[localPath]; ok {
		_, err = s.service.Files.Update(fileID, &drive.File{MimeType: mimeType}).Media(f).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update %s: %w", name, err)
		}
		return nil
	}

	file, err := s.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{s.folderID},
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create %s: %w", name, err)
	}

	s.fileIDs[localPath] = file.Id
	return nil
}

func contentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if f, err := subtitle.ParseFormat(ext); err == nil {
		mediaType, _, _ := strings.Cut(f.ContentType(), ";")
		return mediaType
	}
	switch ext {
	case "webm":
		return "video/webm"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "mp4":
		return "video/mp4"
	}
	return "application/octet-stream"
}
