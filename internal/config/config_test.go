package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("POLL_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.PollTimeout != 180*time.Second {
		t.Fatalf("expected 180s poll timeout, got %s", cfg.PollTimeout)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Fatalf("expected 30s fetch timeout, got %s", cfg.FetchTimeout)
	}
	if cfg.FluxAPIURL != "https://api.bfl.ai/v1/flux-kontext-pro" {
		t.Fatalf("unexpected flux url %q", cfg.FluxAPIURL)
	}
	if cfg.ViewAppendMode != "optimistic" {
		t.Fatalf("unexpected append mode %q", cfg.ViewAppendMode)
	}
}

func TestLoad_ClampsWorkerConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("STORAGE_BACKEND", " Disk ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerConcurrency != 50 {
		t.Fatalf("expected concurrency clamp to 50, got %d", cfg.WorkerConcurrency)
	}
	if cfg.StorageBackend != "disk" {
		t.Fatalf("expected normalized backend, got %q", cfg.StorageBackend)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("POLL_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error for bad duration")
	}
}
