// Package scrape turns a property listing URL into the listing's picture URLs.
package scrape

import (
	"context"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

const (
	SectionMedia = "MEDIA"
	MediaPicture = "PICTURE"
)

// Item is one result of a scraping run. Only the fields read here are mapped.
type Item struct {
	URL      string    `json:"url,omitempty"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Type  string  `json:"type"`
	Media []Media `json:"media"`
}

type Media struct {
	Type         string `json:"type"`
	FullImageURL string `json:"fullImageUrl,omitempty"`
}

// Scraper runs a scrape for a single listing URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) ([]Item, error)
}

// ImageURLs returns the full-size picture URLs of the first item's first MEDIA
// section, in listing order.
func ImageURLs(items []Item) ([]string, error) {
	const op = "scrape.ImageURLs"

	if len(items) == 0 {
		return nil, apperr.E(apperr.NotFound, op, "no items returned by scraper", nil)
	}
	item := items[0]
	if len(item.Sections) == 0 {
		return nil, apperr.E(apperr.NotFound, op, "no sections found in the scraped item", nil)
	}

	var media *Section
	for i := range item.Sections {
		if item.Sections[i].Type == SectionMedia {
			media = &item.Sections[i]
			break
		}
	}
	if media == nil {
		return nil, apperr.E(apperr.NotFound, op, "no media section found in the scraped item", nil)
	}
	if len(media.Media) == 0 {
		return nil, apperr.E(apperr.NotFound, op, "no media found in the media section", nil)
	}

	urls := make([]string, 0, len(media.Media))
	for _, m := range media.Media {
		if m.Type == MediaPicture && m.FullImageURL != "" {
			urls = append(urls, m.FullImageURL)
		}
	}
	if len(urls) == 0 {
		return nil, apperr.E(apperr.NotFound, op, "no pictures found in the media section", nil)
	}
	return urls, nil
}
