package temporalx

import (
	"context"
	"errors"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/temporalx/docrun"
)

// Scheduler dispatches document workflows to Temporal. The workflow id is
// derived from the document id, so a duplicate dispatch joins the running
// execution instead of starting a second one.
type Scheduler struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
}

func NewScheduler(log *logger.Logger, tc temporalsdkclient.Client) *Scheduler {
	return &Scheduler{log: log.With("scheduler", "temporal"), tc: tc}
}

func (s *Scheduler) Schedule(ctx context.Context, in pipeline.RunInput) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        docrun.WorkflowIDFor(in.DocumentID.String()),
		TaskQueue: LoadConfig().TaskQueue,
	}
	_, err := s.tc.ExecuteWorkflow(ctx, opts, docrun.WorkflowName, in)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			s.log.Warn("Document workflow already running", "document_id", in.DocumentID.String())
			return nil
		}
		return err
	}
	s.log.Info("Document workflow dispatched", "document_id", in.DocumentID.String())
	return nil
}
