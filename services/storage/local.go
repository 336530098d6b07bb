// Package storagesvc stores files on the local disk.
package storagesvc

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var ErrInvalidPath = errors.New("invalid storage path")

type localStorage struct {
	root    string
	baseURL string
}

var _ core.FileStorage = (*localStorage)(nil)

// NewLocalStorage stores files under root; URL() prefixes paths with baseURL.
func NewLocalStorage(root, baseURL string) (core.FileStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	return &localStorage{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// fullPath rejects paths escaping the storage root.
func (s *localStorage) fullPath(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *localStorage) Save(ctx context.Context, p string, r io.Reader) (core.StoredFile, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return core.StoredFile{}, err
	}
	if err = os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return core.StoredFile{}, errors.Wrap(err, "creating directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return core.StoredFile{}, errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return core.StoredFile{}, errors.Wrap(err, "writing file")
	}
	if err = tmp.Close(); err != nil {
		return core.StoredFile{}, errors.Wrap(err, "closing file")
	}
	if err = os.Rename(tmp.Name(), full); err != nil {
		return core.StoredFile{}, errors.Wrap(err, "moving file")
	}

	info, err := os.Stat(full)
	if err != nil {
		return core.StoredFile{}, errors.Wrap(err, "reading file info")
	}
	return core.StoredFile{Path: toSlash(s.root, full), Size: info.Size(), ModTime: info.ModTime().UTC()}, nil
}

func (s *localStorage) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("file not found")
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

// Delete ignores missing files.
func (s *localStorage) Delete(ctx context.Context, p string) error {
	full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err = os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}

// List returns the regular files directly under dir, oldest first.
func (s *localStorage) List(ctx context.Context, dir string) ([]core.StoredFile, error) {
	full, err := s.fullPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return []core.StoredFile{}, nil
		}
		return nil, errors.Wrap(err, "listing directory")
	}

	files := make([]core.StoredFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.Wrap(err, "reading file info")
		}
		files = append(files, core.StoredFile{
			Path:    toSlash(s.root, filepath.Join(full, entry.Name())),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

func (s *localStorage) URL(p string) string {
	if p == "" {
		return ""
	}
	return s.baseURL + "/" + strings.TrimPrefix(p, "/")
}

func toSlash(root, full string) string {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}
