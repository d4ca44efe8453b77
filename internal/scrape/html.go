package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/suPer8Hu/deckd/internal/apperr"
)

// HTMLScraper reads picture URLs straight from the listing page markup. It
// yields one item with a single MEDIA section so ImageURLs applies unchanged.
type HTMLScraper struct {
	Client *http.Client
}

func NewHTMLScraper(timeout time.Duration) *HTMLScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTMLScraper{Client: &http.Client{Timeout: timeout}}
}

func (s *HTMLScraper) Scrape(ctx context.Context, listingURL string) ([]Item, error) {
	const op = "scrape.HTMLScraper.Scrape"

	base, err := url.Parse(listingURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperr.E(apperr.Validation, op, "invalid listing url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, apperr.E(apperr.Internal, op, "failed to build request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deckd)")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "listing request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.E(apperr.UpstreamUnavailable, op,
			fmt.Sprintf("listing returned status %d", resp.StatusCode), nil).
			WithPayload(map[string]any{"status": resp.StatusCode})
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperr.E(apperr.UpstreamUnavailable, op, "failed to parse listing page", err)
	}

	seen := map[string]bool{}
	section := Section{Type: SectionMedia, Media: []Media{}}
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		section.Media = append(section.Media, Media{Type: MediaPicture, FullImageURL: abs})
	}

	doc.Find(`meta[property="og:image"]`).Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("content"); ok {
			add(v)
		}
	})
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("data-src"); ok {
			add(v)
			return
		}
		if v, ok := sel.Attr("src"); ok {
			add(v)
		}
	})

	return []Item{{URL: listingURL, Sections: []Section{section}}}, nil
}
