package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"ludolens/internal/activities"
	"ludolens/internal/pipeline"
)

const QueryGetManualProgress = "GetManualProgress"

// WorkflowID is the id of the processing workflow for a manual.
func WorkflowID(manualID string) string {
	return "manual-" + manualID
}

func ManualProcessWorkflow(ctx workflow.Context, input ManualProcessInput) (string, error) {
	progress := pipeline.Progress{
		ManualID:  input.ManualID,
		State:     pipeline.JobRunning,
		StartedAt: workflow.Now(ctx),
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetManualProgress, func() (pipeline.Progress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	attempts := input.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    int32(attempts),
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)
	in := activities.ManualInput{ManualID: input.ManualID}

	finish := func(state pipeline.JobState) {
		now := workflow.Now(ctx)
		progress.State = state
		progress.FinishedAt = &now
	}
	fail := func(err error) (string, error) {
		progress.Error = failReason(err)
		finish(pipeline.JobFailed)
		logger.Error("manual processing failed", "manual_id", input.ManualID, "step", progress.Step, "error", err)
		if isManualNotFound(err) {
			return ResultFailed, nil
		}
		markCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
		})
		if markErr := workflow.ExecuteActivity(markCtx, activities.MarkFailedName, activities.MarkFailedInput{
			ManualID: input.ManualID,
			Reason:   progress.Error,
		}).Get(ctx, nil); markErr != nil {
			return "", markErr
		}
		return ResultFailed, nil
	}

	progress.Step = pipeline.StepExtract
	var extracted activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, activities.ExtractTextName, in).Get(ctx, &extracted); err != nil {
		return fail(err)
	}

	progress.Step = pipeline.StepChunk
	var chunked activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, activities.ChunkTextName, activities.ChunkTextInput{
		ManualID: input.ManualID,
		Text:     extracted.Text,
	}).Get(ctx, &chunked); err != nil {
		return fail(err)
	}
	progress.Chunks = len(chunked.Chunks)

	progress.Step = pipeline.StepIndex
	if err := workflow.ExecuteActivity(ctx, activities.IndexChunksName, activities.IndexChunksInput{
		ManualID: input.ManualID,
		Chunks:   chunked.Chunks,
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}

	progress.Step = pipeline.StepMarkProcessed
	if err := workflow.ExecuteActivity(ctx, activities.MarkProcessedName, in).Get(ctx, nil); err != nil {
		return fail(err)
	}

	progress.Step = pipeline.StepDeleteBlob
	_ = workflow.ExecuteActivity(ctx, activities.DeleteBlobName, in).Get(ctx, nil)

	progress.Step = ""
	finish(pipeline.JobSucceeded)
	return ResultProcessed, nil
}

func failReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return pipeline.FailReason(errors.New(appErr.Message()))
	}
	return pipeline.FailReason(err)
}

func isManualNotFound(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == activities.ErrTypeManualNotFound
}
