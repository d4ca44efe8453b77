package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/suPer8Hu/deckd/internal/apperr"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/fetch"
	"github.com/suPer8Hu/deckd/internal/scrape"
	"github.com/suPer8Hu/deckd/internal/workspace"
)

// ViewInput is a client supplied view. Image values may be data URIs, http(s)
// URLs or opaque strings.
type ViewInput struct {
	OriginalImage *string
	EditedImages  []string
	ChatHistory   []workspace.ChatEntry
}

type CreateSessionRequest struct {
	PropertyURL string
	Views       []ViewInput
}

type CreatedSession struct {
	SessionID string           `json:"session_id"`
	ViewCount int              `json:"view_count"`
	Views     []workspace.View `json:"views"`
}

type StoredImage struct {
	SourceURL   string `json:"source_url"`
	PublicURL   string `json:"public_url"`
	StoragePath string `json:"storage_path"`
}

// CreateSession seeds a new session. With no views given, the listing is
// scraped and each picture becomes one view.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error) {
	const op = "generation.CreateSession"

	inputs := req.Views
	if len(inputs) == 0 {
		if strings.TrimSpace(req.PropertyURL) == "" {
			return nil, apperr.E(apperr.Validation, op, "property_url is required when no views are given", nil)
		}
		urls, err := s.listingImages(ctx, req.PropertyURL)
		if err != nil {
			return nil, err
		}
		inputs = make([]ViewInput, 0, len(urls))
		for _, u := range urls {
			u := u
			inputs = append(inputs, ViewInput{OriginalImage: &u})
		}
	}

	sess, err := s.repo.CreateSession(ctx)
	if err != nil {
		return nil, err
	}

	seeds := make([]workspace.ViewSeed, 0, len(inputs))
	for idx, in := range inputs {
		folder := fmt.Sprintf("views/%s/%d", sess.ID, idx)

		var original *string
		if in.OriginalImage != nil {
			v, err := s.persistImage(ctx, *in.OriginalImage, folder)
			if err != nil {
				return nil, err
			}
			if v != "" {
				original = &v
			}
		}

		edited := make([]string, 0, len(in.EditedImages))
		for _, img := range in.EditedImages {
			v, err := s.persistImage(ctx, img, folder+"/edited")
			if err != nil {
				return nil, err
			}
			if v == "" {
				v = img
			}
			edited = append(edited, v)
		}

		seeds = append(seeds, workspace.ViewSeed{
			OriginalImage: original,
			EditedImages:  edited,
			ChatHistory:   in.ChatHistory,
		})
	}

	views, err := s.repo.CreateViews(ctx, sess.ID, seeds)
	if err != nil {
		return nil, err
	}
	slog.Info("session created", "session_id", sess.ID, "views", len(views))
	return &CreatedSession{SessionID: sess.ID, ViewCount: len(views), Views: views}, nil
}

// ScrapeListing stores every listing picture without creating a session.
func (s *Service) ScrapeListing(ctx context.Context, listingURL string) ([]StoredImage, error) {
	const op = "generation.ScrapeListing"

	if strings.TrimSpace(listingURL) == "" {
		return nil, apperr.E(apperr.Validation, op, "url is required", nil)
	}
	urls, err := s.listingImages(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	out := make([]StoredImage, 0, len(urls))
	for idx, u := range urls {
		folder := fmt.Sprintf("scraped/%s/%d", uuid.NewString(), idx)
		publicURL, path, err := s.storeRemote(ctx, u, folder)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredImage{SourceURL: u, PublicURL: publicURL, StoragePath: path})
	}
	return out, nil
}

func (s *Service) listingImages(ctx context.Context, listingURL string) ([]string, error) {
	const op = "generation.listingImages"

	if s.scraper == nil {
		return nil, apperr.E(apperr.Internal, op, "no scraper configured", nil)
	}
	items, err := s.scraper.Scrape(ctx, listingURL)
	if err != nil {
		slog.Error("listing scrape failed", "url", listingURL, "error", err)
		return nil, err
	}
	return scrape.ImageURLs(items)
}

// persistImage stores data URIs and remote URLs and returns their public URL.
// Any other non-empty value is returned as is.
func (s *Service) persistImage(ctx context.Context, raw, folder string) (string, error) {
	const op = "generation.persistImage"

	switch {
	case raw == "":
		return "", nil
	case strings.HasPrefix(raw, "data:"):
		data, contentType, err := decodeDataURI(raw)
		if err != nil {
			return "", apperr.E(apperr.Validation, op, "invalid image payload", err)
		}
		path, err := s.store.Put(ctx, data, common.RandomFileName(fetch.Extension(contentType)), contentType, folder)
		if err != nil {
			return "", err
		}
		return s.store.PublicURL(path), nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		publicURL, _, err := s.storeRemote(ctx, raw, folder)
		return publicURL, err
	default:
		return raw, nil
	}
}

// storeRemote fetches url and stores it under folder using the general
// extension derivation.
func (s *Service) storeRemote(ctx context.Context, url, folder string) (publicURL, path string, err error) {
	payload, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", "", err
	}
	name := common.RandomFileName(fetch.Extension(payload.ContentType))
	path, err = s.store.Put(ctx, payload.Body, name, payload.ContentType, folder)
	if err != nil {
		return "", "", err
	}
	return s.store.PublicURL(path), path, nil
}

// decodeDataURI parses "data:<type>[;base64],<payload>".
func decodeDataURI(raw string) ([]byte, string, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("missing data separator")
	}
	params := strings.Split(header, ";")
	contentType := strings.TrimSpace(params[0])
	if !strings.Contains(contentType, "/") {
		return nil, "", fmt.Errorf("missing media type")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, contentType, nil
}
