package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/httpapi/handlers"
	"github.com/suPer8Hu/deckd/internal/httpapi/middleware"
)

type Options struct {
	CORSOrigins []string
	// FilesDir, when set, is served under /files for the disk artifact backend.
	FilesDir string
}

func NewRouter(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(middleware.Recovery())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/", h.Root)
	r.GET("/ping", h.Ping)
	if opts.FilesDir != "" {
		r.Static("/files", opts.FilesDir)
	}

	api := r.Group("/api/v1")

	images := api.Group("/images")
	images.POST("/generate", h.GenerateImage)
	images.POST("/add-asset-to-view", h.AddAssetToView)
	images.POST("/upload", h.UploadImage)
	images.GET("/images", h.ListImages)
	images.POST("/scrape", h.ScrapeListing)

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.DELETE("/sessions/:session_id", h.DeleteSession)

	views := api.Group("/views/:view_id")
	views.GET("", h.GetView)
	views.DELETE("", h.DeleteView)
	views.POST("/chat", h.AppendChat)
	views.DELETE("/chat/latest", h.RemoveLatestChat)
	views.DELETE("/edited-images/latest", h.RemoveLatestEditedImage)
	views.POST("/assets", h.UploadAsset)
	views.PATCH("/assets/:asset_id", h.UpdateAsset)
	views.DELETE("/assets/:asset_id", h.DeleteAsset)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Idempotent-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
