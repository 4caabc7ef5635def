package docrun

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/haventory/haventory-backend/internal/pipeline"
)

// Workflow runs one document through the pipeline. The whole retry budget
// lives in the activity retry policy; each activity attempt claims the
// document, processes it, and records its own failure, so the workflow
// body stays a single call.
func Workflow(ctx workflow.Context, in pipeline.RunInput) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    pipeline.RetryInitialInterval,
			MaximumInterval:    pipeline.RetryMaximumInterval,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    int32(pipeline.MaxAttempts),
		},
	})
	return workflow.ExecuteActivity(ctx, ActivityProcess, in).Get(ctx, nil)
}
