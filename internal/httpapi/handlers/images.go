package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/generation"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 128
	maxUploadBytes    = 20 << 20
)

type generateReq struct {
	Prompt      string `json:"prompt"`
	InputImage  string `json:"input_image"`
	InputImage2 string `json:"input_image_2"`
	AspectRatio string `json:"aspect_ratio"`
	ViewID      string `json:"view_id"`
}

func (h *Handler) GenerateImage(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidJSON, "invalid json")
		return
	}

	h.idempotent(c, "generate", func(ctx context.Context) (any, error) {
		return h.Gen.Edit(ctx, generation.EditRequest{
			Prompt:      req.Prompt,
			InputImage:  req.InputImage,
			InputImage2: req.InputImage2,
			AspectRatio: req.AspectRatio,
			ViewID:      req.ViewID,
		})
	})
}

type addAssetReq struct {
	ViewID    string `json:"view_id"`
	ViewURL   string `json:"view_url"`
	AssetURL  string `json:"asset_url"`
	AssetName string `json:"asset_name"`
	Prompt    string `json:"prompt"`
}

func (h *Handler) AddAssetToView(c *gin.Context) {
	var req addAssetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidJSON, "invalid json")
		return
	}

	h.idempotent(c, "add-asset", func(ctx context.Context) (any, error) {
		return h.Gen.AddAssetToView(ctx, generation.AddAssetRequest{
			ViewID:    req.ViewID,
			ViewURL:   req.ViewURL,
			AssetURL:  req.AssetURL,
			AssetName: req.AssetName,
			Prompt:    req.Prompt,
		})
	})
}

func (h *Handler) UploadImage(c *gin.Context) {
	up, ok := readUpload(c, "file")
	if !ok {
		return
	}
	out, err := h.Gen.Upload(c.Request.Context(), up)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, out)
}

func (h *Handler) ListImages(c *gin.Context) {
	entries, err := h.Gen.ListArtifacts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, entries)
}

type scrapeReq struct {
	URL string `json:"url"`
}

func (h *Handler) ScrapeListing(c *gin.Context) {
	var req scrapeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidJSON, "invalid json")
		return
	}

	stored, err := h.Gen.ScrapeListing(jobContext(c), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, stored)
}

// idempotent runs fn once per Idempotency-Key when a cache is configured.
// A repeated key replays the stored envelope, or gets 409 while the first
// request is still running.
func (h *Handler) idempotent(c *gin.Context, op string, fn func(ctx context.Context) (any, error)) {
	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if len(key) > maxIdempotencyKey {
		badRequest(c, CodeValidation, "Idempotency-Key too long")
		return
	}
	ctx := jobContext(c)
	useCache := h.Idem != nil && key != ""

	if useCache {
		reserved, body, err := h.Idem.Reserve(ctx, op, key, h.PendingTTL)
		switch {
		case err != nil:
			slog.Warn("idempotency reserve failed", "op", op, "error", err)
			useCache = false
		case body != nil:
			c.Header("Idempotent-Replayed", "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		case !reserved:
			common.Fail(c, http.StatusConflict, CodeConflict, "request with this Idempotency-Key is in progress")
			return
		}
	}

	data, err := fn(ctx)
	if err != nil {
		if useCache {
			h.release(ctx, op, key)
		}
		writeError(c, err)
		return
	}
	if !useCache {
		common.OK(c, data)
		return
	}

	body, err := json.Marshal(gin.H{"code": 0, "message": "ok", "data": data})
	if err != nil {
		h.release(ctx, op, key)
		common.OK(c, data)
		return
	}
	if err := h.Idem.SaveResult(ctx, op, key, body, h.IdemTTL); err != nil {
		slog.Warn("idempotency save failed", "op", op, "error", err)
		h.release(ctx, op, key)
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) release(ctx context.Context, op, key string) {
	if err := h.Idem.Release(ctx, op, key); err != nil {
		slog.Warn("idempotency release failed", "op", op, "error", err)
	}
}

// readUpload reads a multipart file field. It writes the error response itself.
func readUpload(c *gin.Context, field string) (generation.Upload, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		badRequest(c, CodeValidation, field+" is required")
		return generation.Upload{}, false
	}
	if fh.Size > maxUploadBytes {
		badRequest(c, CodeValidation, "file too large")
		return generation.Upload{}, false
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, CodeValidation, "unreadable file")
		return generation.Upload{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		badRequest(c, CodeValidation, "unreadable file")
		return generation.Upload{}, false
	}
	return generation.Upload{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, true
}
