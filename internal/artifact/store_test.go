package artifact

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/deckd/internal/apperr"
)

func TestJoinPath(t *testing.T) {
	require.Equal(t, "a.png", JoinPath("", "a.png"))
	require.Equal(t, "generated/a.png", JoinPath("generated", "a.png"))
	require.Equal(t, "generated/a.png", JoinPath("generated///", "a.png"))
	require.Equal(t, "views/s1/0/a.png", JoinPath("views/s1/0/", "a.png"))
}

func TestSupabaseStore_PutAndPublicURL(t *testing.T) {
	var gotPath, gotCT, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"Key":"images/generated/x.png"}`))
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL+"/", "secret", "images")
	p, err := s.Put(context.Background(), []byte("img"), "x.png", "image/png", "generated/")
	require.NoError(t, err)
	require.Equal(t, "generated/x.png", p)
	require.Equal(t, "/storage/v1/object/images/generated/x.png", gotPath)
	require.Equal(t, "image/png", gotCT)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, []byte("img"), gotBody)

	require.Equal(t, srv.URL+"/storage/v1/object/public/images/generated/x.png", s.PublicURL(p))
}

func TestSupabaseStore_PutFailureIsStoreWriteFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Duplicate"}`, http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewSupabaseStore(srv.URL, "k", "").Put(context.Background(), []byte("x"), "x.png", "", "")
	require.Error(t, err)
	require.Equal(t, apperr.StoreWriteFailed, apperr.KindOf(err))
}

func TestSupabaseStore_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/storage/v1/object/list/images", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, float64(100), req["limit"])
		_, _ = w.Write([]byte(`[{"name":"a.png","updated_at":"2024-01-02T03:04:05Z","metadata":{"size":12,"mimetype":"image/png"}},{"name":"generated","metadata":null}]`))
	}))
	defer srv.Close()

	entries, err := NewSupabaseStore(srv.URL, "k", "images").List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a.png", entries[0].Name)
	require.Equal(t, int64(12), entries[0].Size)
	require.Equal(t, "image/png", entries[0].ContentType)
	require.Equal(t, "generated", entries[1].Name)
}

func TestSupabaseStore_Delete(t *testing.T) {
	var prefixes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		var body struct {
			Prefixes []string `json:"prefixes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prefixes = body.Prefixes
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	require.NoError(t, NewSupabaseStore(srv.URL, "k", "images").Delete(context.Background(), "generated/x.png"))
	require.Equal(t, []string{"generated/x.png"}, prefixes)
}

func TestDiskStore_RoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewDiskStore(root, "http://localhost:8000/files/")
	ctx := context.Background()

	p, err := s.Put(ctx, []byte("abc"), "x.png", "image/png", "uploads/")
	require.NoError(t, err)
	require.Equal(t, "uploads/x.png", p)
	require.Equal(t, "http://localhost:8000/files/uploads/x.png", s.PublicURL(p))

	b, err := os.ReadFile(filepath.Join(root, "uploads", "x.png"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), b)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "uploads/x.png", entries[0].Name)
	require.Equal(t, int64(3), entries[0].Size)

	require.NoError(t, s.Delete(ctx, p))
	require.NoError(t, s.Delete(ctx, p), "deleting a missing artifact is a no-op")

	entries, err = s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDiskStore_PathsStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewDiskStore(root, "http://x")

	p, err := s.Put(context.Background(), []byte("z"), "../../escape.png", "", "")
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "escape.png"))
	require.NoError(t, statErr, "stored at %s", p)
}

func TestDiskStore_ListMissingRoot(t *testing.T) {
	s := NewDiskStore(filepath.Join(t.TempDir(), "nope"), "http://x")
	entries, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open(Options{Backend: "disk", DiskDir: t.TempDir(), PublicBaseURL: "http://x/files"})
	require.NoError(t, err)
	require.IsType(t, &DiskStore{}, s)

	s, err = Open(Options{SupabaseURL: "http://sb", SupabaseKey: "k", SupabaseBucket: "images"})
	require.NoError(t, err)
	require.IsType(t, &SupabaseStore{}, s)

	_, err = Open(Options{Backend: "supabase"})
	require.Error(t, err)

	_, err = Open(Options{Backend: "s3"})
	require.Error(t, err)
}
