package temporalworker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/platform/envutil"
	"github.com/haventory/haventory-backend/internal/platform/httpx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/temporalx"
	"github.com/haventory/haventory-backend/internal/temporalx/docrun"
)

// Runner hosts the document-processing worker inside the API process.
type Runner struct {
	log      *logger.Logger
	tc       temporalsdkclient.Client
	pipeline *pipeline.Runner
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, pr *pipeline.Runner) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if pr == nil {
		return nil, fmt.Errorf("temporal worker missing pipeline runner")
	}
	return &Runner{log: log, tc: tc, pipeline: pr}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	cfg := temporalx.LoadConfig()
	r.log.Info("Starting Temporal worker", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	maxWait := envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker(cfg)
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		if maxWait <= 0 || time.Now().After(deadline) {
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying",
			"task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		time.Sleep(httpx.BackoffDuration(250*time.Millisecond, 5*time.Second, attempt))
	}
}

func (r *Runner) newWorker(cfg temporalx.Config) worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &docrun.Activities{Log: r.log, Runner: r.pipeline}
	w.RegisterWorkflowWithOptions(docrun.Workflow, workflow.RegisterOptions{Name: docrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Process, activity.RegisterOptions{Name: docrun.ActivityProcess})
	return w
}
