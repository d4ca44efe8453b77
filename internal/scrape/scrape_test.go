package scrape

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/deckd/internal/apperr"
)

func TestImageURLs_MissingPieces(t *testing.T) {
	cases := map[string][]Item{
		"no items":    nil,
		"no sections": {{}},
		"no media section": {{Sections: []Section{
			{Type: "AMENITIES", Media: []Media{{Type: MediaPicture, FullImageURL: "u"}}},
		}}},
		"empty media section": {{Sections: []Section{{Type: SectionMedia}}}},
		"no pictures": {{Sections: []Section{
			{Type: SectionMedia, Media: []Media{{Type: "VIDEO", FullImageURL: "v"}}},
		}}},
	}
	for name, items := range cases {
		_, err := ImageURLs(items)
		require.True(t, apperr.Is(err, apperr.NotFound), "%s: got %v", name, err)
	}
}

func TestImageURLs_PicturesInOrder(t *testing.T) {
	items := []Item{{Sections: []Section{
		{Type: "HEADER"},
		{Type: SectionMedia, Media: []Media{
			{Type: MediaPicture, FullImageURL: "https://img/1.jpg"},
			{Type: "VIDEO", FullImageURL: "https://img/v.mp4"},
			{Type: MediaPicture},
			{Type: MediaPicture, FullImageURL: "https://img/2.jpg"},
		}},
		{Type: SectionMedia, Media: []Media{{Type: MediaPicture, FullImageURL: "https://img/ignored.jpg"}}},
	}}}

	urls, err := ImageURLs(items)
	require.NoError(t, err)
	require.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, urls)
}

func TestApifyClient_RunsActorSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/acts/someone~listing-scraper/run-sync-get-dataset-items", r.URL.Path)
		require.Equal(t, "tok", r.URL.Query().Get("token"))

		var in apifyRunInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, []string{"https://listing/1"}, in.StartURLs)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"sections":[{"type":"MEDIA","media":[{"type":"PICTURE","fullImageUrl":"https://img/a.jpg"}]}]}]`)
	}))
	defer srv.Close()

	c := NewApifyClient(srv.URL, "tok", "someone/listing-scraper", time.Second)
	items, err := c.Scrape(context.Background(), "https://listing/1")
	require.NoError(t, err)

	urls, err := ImageURLs(items)
	require.NoError(t, err)
	require.Equal(t, []string{"https://img/a.jpg"}, urls)
}

func TestApifyClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "actor failed", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewApifyClient(srv.URL, "tok", "actor", time.Second)
	_, err := c.Scrape(context.Background(), "https://listing/1")
	require.True(t, apperr.Is(err, apperr.UpstreamUnavailable), "got %v", err)
}

func TestApifyClient_NotConfigured(t *testing.T) {
	c := NewApifyClient("", "", "", 0)
	_, err := c.Scrape(context.Background(), "https://listing/1")
	require.Error(t, err)
}

func TestHTMLScraper_CollectsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head>
<meta property="og:image" content="https://cdn.example/cover.jpg">
</head><body>
<img src="/photos/1.jpg">
<img data-src="photos/2.jpg" src="data:image/gif;base64,R0lGOD">
<img src="https://cdn.example/cover.jpg">
<img src="data:image/png;base64,AAAA">
</body></html>`)
	}))
	defer srv.Close()

	s := NewHTMLScraper(time.Second)
	items, err := s.Scrape(context.Background(), srv.URL+"/listing/")
	require.NoError(t, err)

	urls, err := ImageURLs(items)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://cdn.example/cover.jpg",
		srv.URL + "/photos/1.jpg",
		srv.URL + "/listing/photos/2.jpg",
	}, urls)
}

func TestHTMLScraper_NoImagesIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body><p>nothing</p></body></html>`)
	}))
	defer srv.Close()

	items, err := NewHTMLScraper(time.Second).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	_, err = ImageURLs(items)
	require.True(t, apperr.Is(err, apperr.NotFound), "got %v", err)
}

func TestHTMLScraper_RejectsRelativeURL(t *testing.T) {
	_, err := NewHTMLScraper(time.Second).Scrape(context.Background(), "/not/absolute")
	require.True(t, apperr.Is(err, apperr.Validation), "got %v", err)
}
