package core

import (
	"context"
	"io"
	"time"
)

// Storage folders
const (
	AvatarsDir      = "avatars"
	ApplicationsDir = "applications"
	LessonsDir      = "lessons"
	ExportsDir      = "exports"
	SubmissionsDir  = "submissions"
)

type (
	StoredFile struct {
		Path    string
		Size    int64
		ModTime time.Time
	}

	// FileStorage persists uploaded and generated files under slash-separated relative paths.
	FileStorage interface {
		Save(ctx context.Context, path string, r io.Reader) (StoredFile, error)
		Open(ctx context.Context, path string) (io.ReadCloser, error)
		Delete(ctx context.Context, path string) error
		List(ctx context.Context, dir string) ([]StoredFile, error)
		URL(path string) string
	}
)
