// Package fetch downloads remote image payloads.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultContentType = "image/jpeg"
)

type Payload struct {
	Body        []byte
	ContentType string
}

type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Client:  &http.Client{},
		Timeout: timeout,
	}
}

// Fetch issues a single GET bounded by the fetcher timeout. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Payload, error) {
	const op = "fetch.Fetch"

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "invalid image url", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to fetch image",
			fmt.Errorf("status %d: %s", resp.StatusCode, msg)).
			WithPayload(map[string]any{"status": resp.StatusCode, "body": msg})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to read image", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = DefaultContentType
	}
	return &Payload{Body: body, ContentType: ct}, nil
}

// Extension derives a file extension from a media type: the subtype,
// lower-cased, with parameters dropped. Missing or malformed types yield "jpg",
// and the "jpeg" subtype is spelled "jpg".
func Extension(contentType string) string {
	if contentType == "" {
		return "jpg"
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	i := strings.LastIndex(mediaType, "/")
	if i < 0 {
		return "jpg"
	}
	switch ext := mediaType[i+1:]; ext {
	case "", "jpeg":
		return "jpg"
	default:
		return ext
	}
}
