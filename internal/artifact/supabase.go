package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

// SupabaseStore talks to the Supabase Storage REST API.
type SupabaseStore struct {
	BaseURL string
	Key     string
	Bucket  string
	Client  *http.Client
}

func NewSupabaseStore(baseURL, key, bucket string) *SupabaseStore {
	if bucket == "" {
		bucket = "images"
	}
	return &SupabaseStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Key:     key,
		Bucket:  bucket,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *SupabaseStore) Put(ctx context.Context, data []byte, name, contentType, folder string) (string, error) {
	const op = "artifact.SupabaseStore.Put"

	if s.Client == nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", errors.New("http client is nil"))
	}
	if contentType == "" {
		contentType = "image/png"
	}
	path := JoinPath(folder, name)

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.BaseURL, url.PathEscape(s.Bucket), escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", apperr.E(apperr.StoreWriteFailed, op, "failed to store artifact", err)
	}
	return path, nil
}

func (s *SupabaseStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.BaseURL, url.PathEscape(s.Bucket), escapePath(path))
}

type supabaseListReq struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	SortBy struct {
		Column string `json:"column"`
		Order  string `json:"order"`
	} `json:"sortBy"`
}

type supabaseObject struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Metadata  *struct {
		Size     int64  `json:"size"`
		Mimetype string `json:"mimetype"`
	} `json:"metadata"`
}

func (s *SupabaseStore) List(ctx context.Context) ([]Entry, error) {
	const op = "artifact.SupabaseStore.List"

	body := supabaseListReq{Limit: 100}
	body.SortBy.Column = "name"
	body.SortBy.Order = "asc"
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/list/%s", s.BaseURL, url.PathEscape(s.Bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to list artifacts", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to list artifacts", err)
	}

	var objects []supabaseObject
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to list artifacts", err)
	}

	out := make([]Entry, 0, len(objects))
	for _, o := range objects {
		e := Entry{Name: o.Name, UpdatedAt: o.UpdatedAt}
		if o.Metadata != nil {
			e.Size = o.Metadata.Size
			e.ContentType = o.Metadata.Mimetype
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, path string) error {
	b, err := json.Marshal(map[string][]string{"prefixes": {path}})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", s.BaseURL, url.PathEscape(s.Bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.Key)
	req.Header.Set("apikey", s.Key)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("supabase storage: status %d: %s", resp.StatusCode, msg)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
