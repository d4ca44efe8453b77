// Package generation runs image jobs end to end and merges their results into
// workspace views.
package generation

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/suPer8Hu/deckd/internal/ai"
	"github.com/suPer8Hu/deckd/internal/apperr"
	"github.com/suPer8Hu/deckd/internal/artifact"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/fetch"
	"github.com/suPer8Hu/deckd/internal/scrape"
	"github.com/suPer8Hu/deckd/internal/workspace"
)

const (
	FolderGenerated = "generated"
	FolderUploads   = "uploads"

	defaultAspectRatio = "1:1"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Payload, error)
}

// OrphanPublisher hands off artifacts that were stored but never referenced.
type OrphanPublisher interface {
	PublishOrphan(ctx context.Context, storagePath, reason string) error
}

type Service struct {
	repo    *workspace.Repo
	engine  *ai.Engine
	fetcher Fetcher
	store   artifact.Store
	scraper scrape.Scraper
	prompt  *ai.CompositePrompt
	orphans OrphanPublisher
}

type Deps struct {
	Repo    *workspace.Repo
	Engine  *ai.Engine
	Fetcher Fetcher
	Store   artifact.Store
	Scraper scrape.Scraper
	Prompt  *ai.CompositePrompt
	// Orphans may be nil; orphaned artifacts are then only logged.
	Orphans OrphanPublisher
}

func NewService(d Deps) *Service {
	if d.Prompt == nil {
		d.Prompt = ai.DefaultCompositePrompt()
	}
	return &Service{
		repo:    d.Repo,
		engine:  d.Engine,
		fetcher: d.Fetcher,
		store:   d.Store,
		scraper: d.Scraper,
		prompt:  d.Prompt,
		orphans: d.Orphans,
	}
}

type EditRequest struct {
	Prompt      string
	InputImage  string
	InputImage2 string
	AspectRatio string
	ViewID      string
}

type AddAssetRequest struct {
	ViewID    string
	ViewURL   string
	AssetURL  string
	AssetName string
	Prompt    string
}

type Result struct {
	URL          string   `json:"url"`
	OriginalURL  string   `json:"original_url"`
	ViewID       string   `json:"view_id"`
	EditedImages []string `json:"edited_images"`
}

// Edit runs a single or dual image edit and appends the stored result to the view.
func (s *Service) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	const op = "generation.Edit"

	if err := required(op, map[string]string{
		"prompt":      req.Prompt,
		"input_image": req.InputImage,
		"view_id":     req.ViewID,
	}); err != nil {
		return nil, err
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = defaultAspectRatio
	}

	return s.run(ctx, op, req.ViewID, ai.JobRequest{
		Prompt:      req.Prompt,
		InputImage:  req.InputImage,
		InputImage2: req.InputImage2,
		AspectRatio: aspect,
	})
}

// AddAssetToView composites a named asset into the view's current image.
func (s *Service) AddAssetToView(ctx context.Context, req AddAssetRequest) (*Result, error) {
	const op = "generation.AddAssetToView"

	if err := required(op, map[string]string{
		"view_id":    req.ViewID,
		"view_url":   req.ViewURL,
		"asset_url":  req.AssetURL,
		"asset_name": req.AssetName,
		"prompt":     req.Prompt,
	}); err != nil {
		return nil, err
	}

	prompt, err := s.prompt.Render(req.AssetName, req.Prompt)
	if err != nil {
		return nil, apperr.E(apperr.Orchestration, op, "failed to build composite prompt", err)
	}

	return s.run(ctx, op, req.ViewID, ai.JobRequest{
		Prompt:      prompt,
		InputImage:  req.ViewURL,
		InputImage2: req.AssetURL,
	})
}

func (s *Service) run(ctx context.Context, op, viewID string, jr ai.JobRequest) (*Result, error) {
	job, err := s.engine.Run(ctx, jr)
	if err != nil && job.Phase == ai.PhaseSubmitError {
		slog.Error("job submit failed", "op", op, "view_id", viewID, "error", err)
		return nil, apperr.E(apperr.Orchestration, op, "no polling handle", err)
	}
	if err != nil {
		slog.Error("job poll failed", "op", op, "view_id", viewID, "handle", job.Handle,
			"phase", string(job.Phase), "polls", job.Polls, "kind", apperr.KindOf(err).String(), "error", err)
		return nil, boundary(op, err)
	}
	resultURL := job.ResultURL

	payload, err := s.fetcher.Fetch(ctx, resultURL)
	if err != nil {
		slog.Error("result fetch failed", "op", op, "view_id", viewID, "url", resultURL, "error", err)
		return nil, boundary(op, err)
	}

	name := common.RandomFileName(generatedExtension(payload.ContentType))
	path, err := s.store.Put(ctx, payload.Body, name, payload.ContentType, FolderGenerated)
	if err != nil {
		slog.Error("artifact store failed", "op", op, "view_id", viewID, "error", err)
		return nil, boundary(op, err)
	}
	publicURL := s.store.PublicURL(path)

	edited, err := s.repo.AppendEditedImage(ctx, viewID, publicURL)
	if err != nil {
		s.orphan(ctx, op, path, err)
		return nil, boundary(op, err)
	}

	slog.Info("generation completed", "op", op, "view_id", viewID, "polls", job.Polls, "path", path)
	return &Result{
		URL:          publicURL,
		OriginalURL:  resultURL,
		ViewID:       viewID,
		EditedImages: edited,
	}, nil
}

// orphan reports an artifact that was stored but could not be attached to a view.
func (s *Service) orphan(ctx context.Context, op, path string, cause error) {
	slog.Error("artifact orphaned", "op", op, "path", path, "error", cause)
	if s.orphans == nil {
		return
	}
	if err := s.orphans.PublishOrphan(ctx, path, cause.Error()); err != nil {
		slog.Error("orphan publish failed", "op", op, "path", path, "error", err)
	}
}

// generatedExtension classifies job results: jpg for any jpeg type, png
// otherwise. It is not interchangeable with fetch.Extension.
func generatedExtension(contentType string) string {
	if strings.Contains(contentType, "jpeg") {
		return "jpg"
	}
	return "png"
}

func required(op string, fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return apperr.E(apperr.Validation, op, "missing required field: "+strings.Join(missing, ", "), nil)
}

// boundary keeps classified errors as they are and turns anything else into
// an orchestration failure.
func boundary(op string, err error) error {
	if apperr.KindOf(err) != apperr.Internal {
		return err
	}
	return apperr.E(apperr.Orchestration, op, "image generation failed", err)
}
