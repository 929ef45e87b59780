package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"ludolens/internal/pipeline"
)

// WorkflowClient is the part of client.Client the launcher needs.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// Launcher hands manual processing to Temporal workers.
type Launcher struct {
	client      WorkflowClient
	taskQueue   string
	maxAttempts int
}

func NewLauncher(c WorkflowClient, taskQueue string, maxAttempts int) *Launcher {
	return &Launcher{client: c, taskQueue: taskQueue, maxAttempts: maxAttempts}
}

func (l *Launcher) Launch(ctx context.Context, manualID string) error {
	_, err := l.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    WorkflowID(manualID),
		TaskQueue:             l.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, ManualProcessName, ManualProcessInput{ManualID: manualID, MaxAttempts: l.maxAttempts})
	if err != nil {
		return fmt.Errorf("start processing workflow: %w", err)
	}
	return nil
}

func (l *Launcher) Progress(ctx context.Context, manualID string) (pipeline.Progress, error) {
	val, err := l.client.QueryWorkflow(ctx, WorkflowID(manualID), "", QueryGetManualProgress)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return pipeline.Progress{}, pipeline.ErrJobNotFound
		}
		return pipeline.Progress{}, fmt.Errorf("query processing workflow: %w", err)
	}
	var p pipeline.Progress
	if err := val.Get(&p); err != nil {
		return pipeline.Progress{}, fmt.Errorf("decode workflow progress: %w", err)
	}
	return p, nil
}
