package docrun

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

type Activities struct {
	Log    *logger.Logger
	Runner *pipeline.Runner
}

// Process executes one attempt. Errors the scheduler must not redispatch
// (lost claim, exhausted retry budget) come back non-retryable so the
// activity retry policy stops immediately.
func (a *Activities) Process(ctx context.Context, in pipeline.RunInput) error {
	if a == nil || a.Runner == nil {
		return temporal.NewNonRetryableApplicationError("activity not configured", "config", nil)
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	err := a.Runner.Run(ctx, in)
	if err == nil {
		return nil
	}
	if !pipeline.Retryable(err) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("attempt final: %v", err), string(apperr.KindOf(err)), err)
	}
	return err
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
