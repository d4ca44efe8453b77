// Package artifact persists binary artifacts under caller-chosen paths and
// resolves those paths to public URLs.
package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Entry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is last-writer-wins and non-transactional. A failed Put leaves no
// publicly visible object behind.
type Store interface {
	Put(ctx context.Context, data []byte, name, contentType, folder string) (string, error)
	PublicURL(path string) string
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, path string) error
}

// JoinPath prefixes name with folder using exactly one separator.
func JoinPath(folder, name string) string {
	folder = strings.TrimRight(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

type Options struct {
	Backend        string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	DiskDir        string
	PublicBaseURL  string
}

// Open builds the configured backend: "supabase" or "disk".
func Open(o Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(o.Backend)) {
	case "", "supabase":
		if o.SupabaseURL == "" || o.SupabaseKey == "" {
			return nil, fmt.Errorf("supabase storage requires SUPABASE_URL and SUPABASE_KEY")
		}
		return NewSupabaseStore(o.SupabaseURL, o.SupabaseKey, o.SupabaseBucket), nil
	case "disk":
		if o.DiskDir == "" {
			return nil, fmt.Errorf("disk storage requires DISK_STORAGE_DIR")
		}
		return NewDiskStore(o.DiskDir, o.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", o.Backend)
	}
}
