package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

// ApifyClient runs an Apify actor synchronously and returns its dataset items.
type ApifyClient struct {
	BaseURL string
	Token   string
	ActorID string
	Client  *http.Client
}

func NewApifyClient(baseURL, token, actorID string, timeout time.Duration) *ApifyClient {
	if baseURL == "" {
		baseURL = "https://api.apify.com/v2"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &ApifyClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		ActorID: actorID,
		Client:  &http.Client{Timeout: timeout},
	}
}

type apifyRunInput struct {
	StartURLs []string `json:"startUrls"`
}

func (c *ApifyClient) Scrape(ctx context.Context, listingURL string) ([]Item, error) {
	const op = "scrape.ApifyClient.Scrape"

	if c.Token == "" || c.ActorID == "" {
		return nil, apperr.E(apperr.Internal, op, "apify is not configured", nil)
	}

	body, err := json.Marshal(apifyRunInput{StartURLs: []string{listingURL}})
	if err != nil {
		return nil, apperr.E(apperr.Internal, op, "failed to encode actor input", err)
	}

	// actor ids look like "user/name"; the API expects "user~name"
	actor := url.PathEscape(strings.ReplaceAll(c.ActorID, "/", "~"))
	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.BaseURL, actor, url.QueryEscape(c.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.E(apperr.Internal, op, "failed to build actor request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "scraper request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to read scraper response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.E(apperr.UpstreamUnavailable, op,
			fmt.Sprintf("scraper returned status %d", resp.StatusCode), nil).
			WithPayload(map[string]any{"status": resp.StatusCode, "body": string(raw)})
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "invalid scraper response", err)
	}
	return items, nil
}
