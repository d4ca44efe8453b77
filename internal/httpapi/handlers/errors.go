package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/deckd/internal/apperr"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/httpapi/middleware"
)

// Stable error codes returned in the envelope.
const (
	CodeInvalidJSON         = 10001
	CodeValidation          = 10002
	CodeNotFound            = 40401
	CodeConflict            = 40901
	CodeInternal            = 50001
	CodeStoreWriteFailed    = 50002
	CodePersistence         = 50003
	CodeOrchestration       = 50004
	CodeSubmit              = 50201
	CodeJobFailed           = 50202
	CodeUpstreamUnavailable = 50203
	CodeJobTimedOut         = 50401
)

func statusFor(k apperr.Kind) (httpStatus, code int) {
	switch k {
	case apperr.Validation:
		return http.StatusBadRequest, CodeValidation
	case apperr.NotFound:
		return http.StatusNotFound, CodeNotFound
	case apperr.Conflict:
		return http.StatusConflict, CodeConflict
	case apperr.Submit:
		return http.StatusBadGateway, CodeSubmit
	case apperr.JobFailed:
		return http.StatusBadGateway, CodeJobFailed
	case apperr.JobTimedOut:
		return http.StatusGatewayTimeout, CodeJobTimedOut
	case apperr.UpstreamUnavailable:
		return http.StatusBadGateway, CodeUpstreamUnavailable
	case apperr.StoreWriteFailed:
		return http.StatusInternalServerError, CodeStoreWriteFailed
	case apperr.Persistence:
		return http.StatusInternalServerError, CodePersistence
	case apperr.Orchestration:
		return http.StatusInternalServerError, CodeOrchestration
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError maps err to the envelope. The wrapped cause is logged, never returned.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, code := statusFor(kind)

	attrs := []any{
		"kind", kind.String(),
		"path", c.Request.URL.Path,
		"request_id", c.GetString(middleware.RequestIDKey),
		"error", err,
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		attrs = append(attrs, "op", ae.Op)
		if ae.Payload != nil {
			attrs = append(attrs, "payload", ae.Payload)
		}
	}
	if status >= 500 {
		slog.Error("request failed", attrs...)
	} else {
		slog.Warn("request rejected", attrs...)
	}

	_ = c.Error(err)
	common.Fail(c, status, code, apperr.Message(err))
}

func badRequest(c *gin.Context, code int, msg string) {
	common.Fail(c, http.StatusBadRequest, code, msg)
}
