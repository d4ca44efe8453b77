package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/generation"
	"github.com/suPer8Hu/deckd/internal/workspace"
)

// Idempotency caches finished responses by client supplied key. A key is
// reserved before the work starts so a concurrent retry cannot run it twice.
type Idempotency interface {
	// Reserve claims the key. If it is taken, body is the finished response,
	// or nil while the first request is still running.
	Reserve(ctx context.Context, op, key string, ttl time.Duration) (reserved bool, body []byte, err error)
	Release(ctx context.Context, op, key string) error
	SaveResult(ctx context.Context, op, key string, body []byte, ttl time.Duration) error
}

// DefaultPendingTTL bounds how long a reservation outlives a crashed request.
const DefaultPendingTTL = 10 * time.Minute

type Handler struct {
	Views *workspace.Repo
	Gen   *generation.Service

	// Idem is nil when no cache is configured.
	Idem    Idempotency
	IdemTTL time.Duration
	// PendingTTL is how long a reserved key blocks retries; it should cover
	// one full job.
	PendingTTL time.Duration
}

func NewHandler(views *workspace.Repo, gen *generation.Service, idem Idempotency, idemTTL time.Duration) *Handler {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handler{Views: views, Gen: gen, Idem: idem, IdemTTL: idemTTL, PendingTTL: DefaultPendingTTL}
}

func (h *Handler) Root(c *gin.Context) {
	common.OK(c, gin.H{"message": "Welcome to the Deckd API"})
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// jobContext detaches a request context so a client disconnect does not
// abort an in-flight job; the poll timeout still bounds it.
func jobContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
