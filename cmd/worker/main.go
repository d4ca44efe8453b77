package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/deckd/internal/artifact"
	"github.com/suPer8Hu/deckd/internal/config"
	"github.com/suPer8Hu/deckd/internal/store/rabbitmq"
)

const maxAttempts = 3

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.RabbitURL == "" {
		slog.Error("RABBIT_URL is required for the worker")
		os.Exit(1)
	}

	store, err := artifact.Open(artifact.Options{
		Backend:        cfg.StorageBackend,
		SupabaseURL:    cfg.SupabaseURL,
		SupabaseKey:    cfg.SupabaseKey,
		SupabaseBucket: cfg.SupabaseBucket,
		DiskDir:        cfg.DiskStorageDir,
		PublicBaseURL:  cfg.PublicBaseURL,
	})
	if err != nil {
		slog.Error("artifact store", "error", err)
		os.Exit(1)
	}

	// publisher declares main/retry/dlq queues
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		slog.Error("rabbit publisher", "error", err)
		os.Exit(1)
	}
	defer pub.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		slog.Error("rabbit dial", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		slog.Error("rabbit channel", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		slog.Error("qos", "error", err)
		os.Exit(1)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		slog.Error("consume", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, store, pub, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				slog.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

type retryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration, attempt int) error
}

func handleDelivery(ctx context.Context, workerID int, store artifact.Store, pub retryPublisher, d amqp.Delivery) {
	m, err := rabbitmq.DecodeOrphan(d.Body)
	if err != nil {
		slog.Warn("bad orphan message", "worker", workerID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := store.Delete(ctx, m.StoragePath); err != nil {
		attempt := rabbitmq.Attempt(d.Headers) + 1
		slog.Error("orphan delete failed", "worker", workerID, "path", m.StoragePath,
			"attempt", attempt, "cost", time.Since(start), "error", err)

		if attempt < maxAttempts {
			if perr := pub.PublishRetry(ctx, d.Body, rabbitmq.RetryDelay(attempt-1), attempt); perr == nil {
				_ = d.Ack(false)
				return
			}
		}
		// to DLQ
		_ = d.Nack(false, false)
		return
	}

	slog.Info("orphan deleted", "worker", workerID, "path", m.StoragePath,
		"reason", m.Reason, "cost", time.Since(start))
	if err := d.Ack(false); err != nil {
		slog.Error("ack failed", "worker", workerID, "path", m.StoragePath, "error", err)
	}
}
