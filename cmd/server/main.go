package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/deckd/internal/ai"
	"github.com/suPer8Hu/deckd/internal/artifact"
	"github.com/suPer8Hu/deckd/internal/config"
	"github.com/suPer8Hu/deckd/internal/db"
	"github.com/suPer8Hu/deckd/internal/fetch"
	"github.com/suPer8Hu/deckd/internal/generation"
	"github.com/suPer8Hu/deckd/internal/httpapi"
	"github.com/suPer8Hu/deckd/internal/httpapi/handlers"
	"github.com/suPer8Hu/deckd/internal/scrape"
	"github.com/suPer8Hu/deckd/internal/store/rabbitmq"
	"github.com/suPer8Hu/deckd/internal/store/redisstore"
	"github.com/suPer8Hu/deckd/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := workspace.AutoMigrate(gdb); err != nil {
		return err
	}

	repo := workspace.NewRepo(gdb)
	mode, err := workspace.ParseAppendMode(cfg.ViewAppendMode)
	if err != nil {
		return err
	}
	repo.SetAppendMode(mode, cfg.ViewAppendMaxRetries)

	store, err := artifact.Open(artifact.Options{
		Backend:        cfg.StorageBackend,
		SupabaseURL:    cfg.SupabaseURL,
		SupabaseKey:    cfg.SupabaseKey,
		SupabaseBucket: cfg.SupabaseBucket,
		DiskDir:        cfg.DiskStorageDir,
		PublicBaseURL:  cfg.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	// Provider registry (selected by IMAGE_PROVIDER)
	reg := ai.NewRegistry()
	reg.Register("flux", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return ai.NewFluxProvider(cfg.FluxAPIURL, cfg.BFLAPIKey, cfg.SubmitTimeout), nil
	})
	provider, err := reg.Get(ctx, cfg.ImageProvider)
	if err != nil {
		return err
	}
	engine := ai.NewEngine(provider, ai.PollOptions{
		Interval:         cfg.PollInterval,
		Timeout:          cfg.PollTimeout,
		TransportRetries: cfg.PollTransportRetries,
	})

	prompt, err := ai.LoadCompositePrompt(cfg.CompositePromptFile)
	if err != nil {
		return err
	}

	var scraper scrape.Scraper
	switch cfg.Scraper {
	case "", "apify":
		scraper = scrape.NewApifyClient(cfg.ApifyBaseURL, cfg.ApifyToken, cfg.ApifyActorID, cfg.ApifyCallTimeout)
	case "html":
		scraper = scrape.NewHTMLScraper(cfg.FetchTimeout)
	default:
		slog.Warn("unknown scraper, listing ingestion disabled", "scraper", cfg.Scraper)
	}

	deps := generation.Deps{
		Repo:    repo,
		Engine:  engine,
		Fetcher: fetch.New(cfg.FetchTimeout),
		Store:   store,
		Scraper: scraper,
		Prompt:  prompt,
	}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()
		deps.Orphans = pub
	}
	gen := generation.NewService(deps)

	var idem handlers.Idempotency
	if cfg.RedisAddr != "" {
		rds, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rds.Close()
		idem = rds
	}

	gin.SetMode(gin.ReleaseMode)
	opts := httpapi.Options{CORSOrigins: cfg.CORSOrigins}
	if cfg.StorageBackend == "disk" {
		opts.FilesDir = cfg.DiskStorageDir
	}
	// longest a single job request can run: submit, poll, fetch
	jobBudget := cfg.SubmitTimeout + cfg.PollTimeout + cfg.FetchTimeout

	h := handlers.NewHandler(repo, gen, idem, cfg.IdempotencyTTL)
	h.PendingTTL = jobBudget + time.Minute
	router := httpapi.NewRouter(h, opts)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.HTTPAddr, "storage", cfg.StorageBackend,
			"provider", cfg.ImageProvider, "append_mode", string(mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	// in-flight jobs may still be running; allow one full job
	shutdownCtx, cancel := context.WithTimeout(context.Background(), jobBudget+10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
