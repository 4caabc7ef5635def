package pipeline

import (
	"context"
	"time"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/httpx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// Scheduler dispatches processing attempts. Ingress hands a document off
// and returns immediately; retry and backoff live behind this interface so
// the HTTP layer never blocks on model calls.
type Scheduler interface {
	Schedule(ctx context.Context, in RunInput) error
}

// Retry pacing for redispatched attempts.
const (
	RetryInitialInterval = 1 * time.Second
	RetryMaximumInterval = 10 * time.Second
)

// Retryable reports whether a failed attempt should be dispatched again.
// Lost claims and exhausted documents are final from the scheduler's view.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch apperr.CodeOf(err) {
	case "document_not_claimable", "processing_exhausted":
		return false
	}
	return true
}

// InlineScheduler runs attempts in-process. It is the fallback when no
// Temporal endpoint is configured: same runner, same retry budget, but
// lost on process restart.
type InlineScheduler struct {
	log    *logger.Logger
	runner *Runner
}

func NewInlineScheduler(log *logger.Logger, runner *Runner) *InlineScheduler {
	return &InlineScheduler{log: log.With("scheduler", "inline"), runner: runner}
}

func (s *InlineScheduler) Schedule(ctx context.Context, in RunInput) error {
	// Detach from the request context; the attempt outlives the response.
	go s.runAttempts(context.Background(), in)
	return nil
}

func (s *InlineScheduler) runAttempts(ctx context.Context, in RunInput) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := s.runner.Run(ctx, in)
		if err == nil {
			return
		}
		if !Retryable(err) {
			s.log.Warn("Attempt not redispatched",
				"document_id", in.DocumentID.String(),
				"attempt", attempt,
				"error", err,
			)
			return
		}
		if attempt == MaxAttempts {
			return
		}
		sleep := httpx.Jitter(httpx.BackoffDuration(RetryInitialInterval, RetryMaximumInterval, attempt))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
	}
}
