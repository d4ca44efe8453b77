package ai

import (
	"context"
	"encoding/json"
)

// Provider statuses the engine reacts to. Anything else keeps the job polling.
const (
	StatusReady  = "Ready"
	StatusFailed = "Failed"
)

// JobRequest describes one synthesis job: a prompt plus one or two input images.
type JobRequest struct {
	Prompt      string
	InputImage  string
	InputImage2 string
	AspectRatio string
}

// JobStatus is a single poll response.
type JobStatus struct {
	Status    string
	ResultURL string
	Raw       json.RawMessage
}

// Provider is an external image-synthesis service with a submit/poll contract.
type Provider interface {
	// Submit returns the poll handle for the accepted job.
	Submit(ctx context.Context, req JobRequest) (string, error)
	// Check queries the handle once.
	Check(ctx context.Context, handle string) (JobStatus, error)
}
