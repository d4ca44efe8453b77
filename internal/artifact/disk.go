package artifact

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

// DiskStore keeps artifacts on the local filesystem, for development and
// single-node deployments. PublicBaseURL is where Root is served from.
type DiskStore struct {
	Root          string
	PublicBaseURL string
}

func NewDiskStore(root, publicBaseURL string) *DiskStore {
	return &DiskStore{Root: root, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *DiskStore) Put(_ context.Context, data []byte, name, _, folder string) (string, error) {
	const op = "artifact.DiskStore.Put"

	p := JoinPath(folder, name)
	full, err := s.resolve(p)
	if err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}

	// write-then-rename so a partial file is never served
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	return p, nil
}

func (s *DiskStore) PublicURL(p string) string {
	return s.PublicBaseURL + "/" + strings.TrimLeft(p, "/")
}

func (s *DiskStore) List(_ context.Context) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(s.Root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.Root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		out = append(out, Entry{
			Name:        rel,
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(path.Ext(rel)),
			UpdatedAt:   info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, apperr.E(apperr.Internal, "artifact.DiskStore.List", "failed to list artifacts", err)
	}
	return out, nil
}

func (s *DiskStore) Delete(_ context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DiskStore) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", errors.New("empty artifact path")
	}
	return filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
