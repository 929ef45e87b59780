package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"ludolens/internal/models"
	"ludolens/internal/pipeline"
	"ludolens/internal/util"
)

// Error types of failures that retrying cannot fix.
const (
	ErrTypeInvalidManual  = "InvalidManual"
	ErrTypeManualNotFound = "ManualNotFound"
)

// Activities exposes each pipeline step to the Temporal worker.
type Activities struct {
	proc *pipeline.Processor
}

func New(proc *pipeline.Processor) *Activities {
	return &Activities{proc: proc}
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ManualInput) (ExtractTextOutput, error) {
	res, err := a.proc.ExtractText(ctx, in.ManualID)
	if err != nil {
		return ExtractTextOutput{}, classify(err)
	}
	return ExtractTextOutput{Text: res.Text, Pages: res.Pages, SkippedPages: res.SkippedPages}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	chunks, err := a.proc.ChunkText(ctx, in.ManualID, in.Text)
	if err != nil {
		return ChunkTextOutput{}, classify(err)
	}
	return ChunkTextOutput{Chunks: chunks}, nil
}

func (a *Activities) IndexChunksActivity(ctx context.Context, in IndexChunksInput) error {
	return a.proc.IndexChunks(ctx, in.ManualID, in.Chunks)
}

func (a *Activities) MarkProcessedActivity(ctx context.Context, in ManualInput) error {
	return classify(a.proc.MarkProcessed(ctx, in.ManualID))
}

func (a *Activities) DeleteBlobActivity(ctx context.Context, in ManualInput) error {
	a.proc.DeleteBlob(ctx, in.ManualID)
	return nil
}

func (a *Activities) MarkFailedActivity(ctx context.Context, in MarkFailedInput) error {
	return a.proc.MarkFailed(ctx, in.ManualID, errors.New(in.Reason))
}

// classify turns permanent pipeline errors into non-retryable application
// errors whose message is the stored fail reason.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrManualNotFound):
		return temporal.NewNonRetryableApplicationError(pipeline.FailReason(err), ErrTypeManualNotFound, err)
	case errors.Is(err, util.ErrInvalidPDF), errors.Is(err, util.ErrNoExtractableText):
		return temporal.NewNonRetryableApplicationError(pipeline.FailReason(err), ErrTypeInvalidManual, err)
	default:
		return err
	}
}
