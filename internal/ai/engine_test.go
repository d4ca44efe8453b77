package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/deckd/internal/apperr"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// scriptedProvider replays statuses; once the script is exhausted it keeps
// returning the last entry.
type scriptedProvider struct {
	clock    *fakeClock
	handle   string
	statuses []JobStatus
	errs     []error
	checks   []time.Time
}

func (p *scriptedProvider) Submit(ctx context.Context, req JobRequest) (string, error) {
	return p.handle, nil
}

func (p *scriptedProvider) Check(ctx context.Context, handle string) (JobStatus, error) {
	i := len(p.checks)
	p.checks = append(p.checks, p.clock.Now())
	if i < len(p.errs) && p.errs[i] != nil {
		return JobStatus{}, p.errs[i]
	}
	if i >= len(p.statuses) {
		i = len(p.statuses) - 1
	}
	return p.statuses[i], nil
}

func newTestEngine(p *scriptedProvider, opts PollOptions) *Engine {
	e := NewEngine(p, opts)
	e.clock = p.clock
	return e
}

func submitted(t *testing.T, e *Engine) *Job {
	t.Helper()
	job, err := e.Submit(context.Background(), JobRequest{Prompt: "p", InputImage: "https://img/a.png"})
	require.NoError(t, err)
	require.Equal(t, PhaseSubmitted, job.Phase)
	return job
}

func TestPoll_ReadyAfterPendingStatuses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := &scriptedProvider{
		clock:  clock,
		handle: "https://poll/1",
		statuses: []JobStatus{
			{Status: "Pending"},
			{Status: "Processing"},
			{Status: StatusReady, ResultURL: "https://cdn/sample.jpg"},
		},
	}
	e := newTestEngine(p, PollOptions{Interval: 2 * time.Second, Timeout: 180 * time.Second})
	job := submitted(t, e)

	url, err := e.Poll(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "https://cdn/sample.jpg", url)
	require.Equal(t, PhaseReady, job.Phase)
	require.Equal(t, 3, job.Polls)
	require.Len(t, p.checks, 3)
	for i := 1; i < len(p.checks); i++ {
		require.GreaterOrEqual(t, p.checks[i].Sub(p.checks[i-1]), 2*time.Second)
	}
}

func TestPoll_FailedOnFirstResponseDoesNotSleep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := &scriptedProvider{
		clock:    clock,
		handle:   "h",
		statuses: []JobStatus{{Status: StatusFailed, Raw: []byte(`{"status":"Failed"}`)}},
	}
	e := newTestEngine(p, PollOptions{})
	job := submitted(t, e)

	_, err := e.Poll(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, apperr.JobFailed, apperr.KindOf(err))
	require.Equal(t, PhaseFailed, job.Phase)
	require.Empty(t, clock.sleeps)
	require.Len(t, p.checks, 1)

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	require.Equal(t, `{"status":"Failed"}`, ae.Payload)
}

func TestPoll_TimesOutWithoutPollingPastBoundary(t *testing.T) {
	start := time.Unix(5000, 0)
	clock := &fakeClock{now: start}
	p := &scriptedProvider{clock: clock, handle: "h", statuses: []JobStatus{{Status: "Pending"}}}
	e := newTestEngine(p, PollOptions{Interval: 2 * time.Second, Timeout: 180 * time.Second})
	job := submitted(t, e)

	_, err := e.Poll(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, apperr.JobTimedOut, apperr.KindOf(err))
	require.Equal(t, PhaseTimedOut, job.Phase)
	require.Len(t, p.checks, 90)
	for _, at := range p.checks {
		require.Less(t, at.Sub(start), 180*time.Second)
	}
}

func TestPoll_TimeoutNotMultipleOfInterval(t *testing.T) {
	start := time.Unix(0, 0)
	clock := &fakeClock{now: start}
	p := &scriptedProvider{clock: clock, handle: "h", statuses: []JobStatus{{Status: "Pending"}}}
	e := newTestEngine(p, PollOptions{Interval: 7 * time.Second, Timeout: 20 * time.Second})

	_, err := e.Poll(context.Background(), submitted(t, e))
	require.True(t, apperr.Is(err, apperr.JobTimedOut))
	require.Len(t, p.checks, 3) // t=0, 7, 14
}

func TestPoll_TransportErrorIsFatalByDefault(t *testing.T) {
	clock := &fakeClock{}
	p := &scriptedProvider{
		clock:    clock,
		handle:   "h",
		statuses: []JobStatus{{Status: StatusReady, ResultURL: "u"}},
		errs:     []error{errors.New("connection reset")},
	}
	e := newTestEngine(p, PollOptions{})
	job := submitted(t, e)

	_, err := e.Poll(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, apperr.UpstreamUnavailable, apperr.KindOf(err))
	require.Equal(t, PhaseFailed, job.Phase)
	require.Len(t, p.checks, 1)
}

func TestPoll_TransportRetriesTolerateFailures(t *testing.T) {
	clock := &fakeClock{}
	p := &scriptedProvider{
		clock:    clock,
		handle:   "h",
		statuses: []JobStatus{{}, {Status: StatusReady, ResultURL: "https://cdn/x.png"}},
		errs:     []error{errors.New("timeout")},
	}
	e := newTestEngine(p, PollOptions{TransportRetries: 1})

	url, err := e.Poll(context.Background(), submitted(t, e))
	require.NoError(t, err)
	require.Equal(t, "https://cdn/x.png", url)
	require.Len(t, p.checks, 2)
}

func TestPoll_ReadyWithoutSampleIsJobFailed(t *testing.T) {
	clock := &fakeClock{}
	p := &scriptedProvider{clock: clock, handle: "h", statuses: []JobStatus{{Status: StatusReady}}}
	e := newTestEngine(p, PollOptions{})

	_, err := e.Poll(context.Background(), submitted(t, e))
	require.True(t, apperr.Is(err, apperr.JobFailed))
}

func TestPoll_RejectsUnsubmittedJob(t *testing.T) {
	e := NewEngine(&scriptedProvider{clock: &fakeClock{}}, PollOptions{})
	_, err := e.Poll(context.Background(), &Job{Phase: PhaseSubmitError})
	require.Error(t, err)
}

type handleProvider struct {
	handle string
	err    error
}

func (p handleProvider) Submit(context.Context, JobRequest) (string, error) { return p.handle, p.err }
func (p handleProvider) Check(context.Context, string) (JobStatus, error) {
	return JobStatus{}, errors.New("unexpected check")
}

func TestSubmit_MissingHandleIsSubmitError(t *testing.T) {
	e := NewEngine(handleProvider{}, PollOptions{})
	job, err := e.Submit(context.Background(), JobRequest{Prompt: "p"})
	require.Error(t, err)
	require.Equal(t, apperr.Submit, apperr.KindOf(err))
	require.Equal(t, PhaseSubmitError, job.Phase)
}

func TestSubmit_PlainProviderErrorIsWrapped(t *testing.T) {
	e := NewEngine(handleProvider{err: errors.New("dns")}, PollOptions{})
	_, err := e.Submit(context.Background(), JobRequest{Prompt: "p"})
	require.Equal(t, apperr.Submit, apperr.KindOf(err))
}

func TestRealClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := realClock{}.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

// blockingProvider never answers a status query until its context ends.
type blockingProvider struct{}

func (blockingProvider) Submit(context.Context, JobRequest) (string, error) { return "h", nil }

func (blockingProvider) Check(ctx context.Context, _ string) (JobStatus, error) {
	select {
	case <-ctx.Done():
		return JobStatus{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return JobStatus{Status: "Pending"}, nil
	}
}

func TestPoll_HungStatusQueryIsCutOffAtTimeout(t *testing.T) {
	e := NewEngine(blockingProvider{}, PollOptions{Interval: 10 * time.Millisecond, Timeout: 150 * time.Millisecond})
	job, err := e.Submit(context.Background(), JobRequest{Prompt: "p"})
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Poll(context.Background(), job)
	elapsed := time.Since(start)

	require.True(t, apperr.Is(err, apperr.JobTimedOut), "got %v", err)
	require.Equal(t, PhaseTimedOut, job.Phase)
	require.Equal(t, 1, job.Polls)
	require.Less(t, elapsed, time.Second)
}

func TestPoll_CallerCancellationIsNotTimeout(t *testing.T) {
	e := NewEngine(blockingProvider{}, PollOptions{Interval: 10 * time.Millisecond, Timeout: time.Minute})
	job, err := e.Submit(context.Background(), JobRequest{Prompt: "p"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.Poll(ctx, job)
	require.Error(t, err)
	require.False(t, apperr.Is(err, apperr.JobTimedOut))
	require.Equal(t, PhaseFailed, job.Phase)
}

func TestRun_ReportsPhaseOfFailure(t *testing.T) {
	e := NewEngine(handleProvider{}, PollOptions{})
	job, err := e.Run(context.Background(), JobRequest{Prompt: "p"})
	require.True(t, apperr.Is(err, apperr.Submit))
	require.Equal(t, PhaseSubmitError, job.Phase)

	clock := &fakeClock{}
	p := &scriptedProvider{clock: clock, handle: "h", statuses: []JobStatus{{Status: StatusReady, ResultURL: "https://cdn/r.png"}}}
	job, err = newTestEngine(p, PollOptions{}).Run(context.Background(), JobRequest{Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, PhaseReady, job.Phase)
	require.Equal(t, "https://cdn/r.png", job.ResultURL)
}
