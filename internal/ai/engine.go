package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suPer8Hu/deckd/internal/apperr"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 180 * time.Second
)

// Phase is the lifecycle state of a job.
//
//	Submitted -> Polling -> Ready | Failed | TimedOut
//	(submit)  -> SubmitError
type Phase string

const (
	PhaseSubmitted   Phase = "submitted"
	PhasePolling     Phase = "polling"
	PhaseReady       Phase = "ready"
	PhaseFailed      Phase = "failed"
	PhaseSubmitError Phase = "submit_error"
	PhaseTimedOut    Phase = "timed_out"
)

// Job is ephemeral; it lives only for the request that submitted it.
type Job struct {
	Handle    string
	Phase     Phase
	ResultURL string
	Polls     int
}

type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// TransportRetries is how many consecutive transport failures are
	// tolerated before the poll aborts. Zero makes the first one fatal.
	TransportRetries int
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.TransportRetries < 0 {
		o.TransportRetries = 0
	}
	return o
}

type Engine struct {
	provider Provider
	opts     PollOptions
	clock    Clock
}

func NewEngine(provider Provider, opts PollOptions) *Engine {
	return &Engine{provider: provider, opts: opts.withDefaults(), clock: realClock{}}
}

// Submit sends the job description and returns a job in the Submitted phase.
func (e *Engine) Submit(ctx context.Context, req JobRequest) (*Job, error) {
	const op = "ai.Engine.Submit"

	handle, err := e.provider.Submit(ctx, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.E(apperr.Submit, op, "failed to submit job", err)
		}
		return &Job{Phase: PhaseSubmitError}, err
	}
	if handle == "" {
		return &Job{Phase: PhaseSubmitError}, apperr.E(apperr.Submit, op, "no polling handle", nil)
	}
	return &Job{Handle: handle, Phase: PhaseSubmitted}, nil
}

// Poll drives a submitted job to a terminal phase and returns the result URL.
// Queries are spaced at least Interval apart and none is issued once Timeout
// has elapsed since the first one. An in-flight query is cut off at Timeout.
func (e *Engine) Poll(ctx context.Context, job *Job) (string, error) {
	const op = "ai.Engine.Poll"

	if job == nil || job.Phase != PhaseSubmitted {
		return "", apperr.E(apperr.Internal, op, "job is not pollable", nil)
	}
	job.Phase = PhasePolling

	pctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	// deadline hit on our own budget, not the caller's
	expired := func() bool {
		return ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded)
	}

	start := e.clock.Now()
	failures := 0
	for e.clock.Now().Sub(start) < e.opts.Timeout {
		st, err := e.provider.Check(pctx, job.Handle)
		job.Polls++
		if err != nil && expired() {
			break
		}
		if err != nil {
			failures++
			if failures > e.opts.TransportRetries {
				job.Phase = PhaseFailed
				return "", apperr.E(apperr.UpstreamUnavailable, op, "job status unavailable", err)
			}
			slog.Warn("job poll transport error, retrying", "poll", job.Polls, "error", err)
		} else {
			failures = 0

			switch st.Status {
			case StatusReady:
				if st.ResultURL == "" {
					job.Phase = PhaseFailed
					return "", apperr.E(apperr.JobFailed, op, "job ready without result", nil).
						WithPayload(string(st.Raw))
				}
				job.Phase = PhaseReady
				job.ResultURL = st.ResultURL
				return st.ResultURL, nil
			case StatusFailed:
				job.Phase = PhaseFailed
				return "", apperr.E(apperr.JobFailed, op, "image generation failed",
					fmt.Errorf("generation failed: %s", st.Raw)).WithPayload(string(st.Raw))
			}
		}

		if err := e.clock.Sleep(pctx, e.opts.Interval); err != nil {
			if expired() {
				break
			}
			job.Phase = PhaseFailed
			return "", apperr.E(apperr.Orchestration, op, "job polling cancelled", err)
		}
	}

	job.Phase = PhaseTimedOut
	return "", apperr.E(apperr.JobTimedOut, op, "image generation timed out",
		fmt.Errorf("no terminal status after %s (%d polls)", e.opts.Timeout, job.Polls))
}

// Run submits and polls in one step. The returned job is never nil; its
// Phase tells a submit failure apart from a poll failure.
func (e *Engine) Run(ctx context.Context, req JobRequest) (*Job, error) {
	job, err := e.Submit(ctx, req)
	if err != nil {
		return job, err
	}
	_, err = e.Poll(ctx, job)
	return job, err
}
