package activities

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"ludolens/internal/blob"
	"ludolens/internal/chunker"
	"ludolens/internal/logging"
	"ludolens/internal/models"
	"ludolens/internal/pipeline"
)

const manualID = "1c9d3e7a-4b2f-4e8d-9a6c-0f1e2d3c4b5a"

type stubManuals struct {
	missing bool
	failed  map[string]string
}

func (s *stubManuals) MarkProcessed(ctx context.Context, id string) error {
	if s.missing {
		return models.ErrManualNotFound
	}
	return nil
}

func (s *stubManuals) MarkFailed(ctx context.Context, id, reason string) error {
	s.failed[id] = reason
	return nil
}

type stubIndex struct {
	indexed int
	removed bool
}

func (s *stubIndex) Index(ctx context.Context, manualID string, chunks []models.DocumentChunk) error {
	s.indexed += len(chunks)
	return nil
}

func (s *stubIndex) RemoveByManual(ctx context.Context, manualID string) (bool, error) {
	s.removed = true
	return true, nil
}

func newTestActivities(t *testing.T, manuals *stubManuals, data []byte) (*Activities, *stubIndex, *testsuite.TestActivityEnvironment) {
	t.Helper()
	store, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	if data != nil {
		_, err = store.Save(manualID, data)
		require.NoError(t, err)
	}
	idx := &stubIndex{}
	a := New(pipeline.NewProcessor(manuals, store, chunker.New(chunker.WithChunkSize(50), chunker.WithOverlap(10)), idx, logging.Discard()))

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)
	return a, idx, env
}

func requireAppErrorType(t *testing.T, err error, want string) {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected application error, got %v", err)
	require.Equal(t, want, appErr.Type())
	require.True(t, appErr.NonRetryable())
}

func TestExtractTextActivity_InvalidPDFIsNonRetryable(t *testing.T) {
	a, _, env := newTestActivities(t, &stubManuals{failed: map[string]string{}}, []byte("plain text, not a pdf"))

	_, err := env.ExecuteActivity(a.ExtractTextActivity, ManualInput{ManualID: manualID})
	require.Error(t, err)
	requireAppErrorType(t, err, ErrTypeInvalidManual)
}

func TestChunkTextActivity(t *testing.T) {
	a, _, env := newTestActivities(t, &stubManuals{failed: map[string]string{}}, nil)

	val, err := env.ExecuteActivity(a.ChunkTextActivity, ChunkTextInput{
		ManualID: manualID,
		Text:     "Players take turns clockwise.\n\nOn your turn roll both dice and collect resources.",
	})
	require.NoError(t, err)
	var out ChunkTextOutput
	require.NoError(t, val.Get(&out))
	require.NotEmpty(t, out.Chunks)
	require.Equal(t, chunker.ChunkID(manualID, 0), out.Chunks[0].ID)
}

func TestChunkTextActivity_EmptyText(t *testing.T) {
	a, _, env := newTestActivities(t, &stubManuals{failed: map[string]string{}}, nil)

	_, err := env.ExecuteActivity(a.ChunkTextActivity, ChunkTextInput{ManualID: manualID, Text: "   "})
	require.Error(t, err)
	requireAppErrorType(t, err, ErrTypeInvalidManual)
}

func TestMarkProcessedActivity_DeletedManual(t *testing.T) {
	a, idx, env := newTestActivities(t, &stubManuals{missing: true, failed: map[string]string{}}, []byte("%PDF-1.4"))

	_, err := env.ExecuteActivity(a.MarkProcessedActivity, ManualInput{ManualID: manualID})
	require.Error(t, err)
	requireAppErrorType(t, err, ErrTypeManualNotFound)
	require.True(t, idx.removed)
}

func TestMarkFailedActivity(t *testing.T) {
	manuals := &stubManuals{failed: map[string]string{}}
	a, _, env := newTestActivities(t, manuals, nil)

	_, err := env.ExecuteActivity(a.MarkFailedActivity, MarkFailedInput{ManualID: manualID, Reason: "embedding quota exceeded"})
	require.NoError(t, err)
	require.Equal(t, "embedding quota exceeded", manuals.failed[manualID])
}

func TestDeleteBlobActivity_MissingFileIsFine(t *testing.T) {
	a, _, env := newTestActivities(t, &stubManuals{failed: map[string]string{}}, nil)
	_, err := env.ExecuteActivity(a.DeleteBlobActivity, ManualInput{ManualID: manualID})
	require.NoError(t, err)
}

func TestExtractTextActivity_ReturnsText(t *testing.T) {
	data, err := os.ReadFile("../pipeline/testdata/rules.pdf")
	require.NoError(t, err)
	a, _, env := newTestActivities(t, &stubManuals{failed: map[string]string{}}, data)

	val, err := env.ExecuteActivity(a.ExtractTextActivity, ManualInput{ManualID: manualID})
	require.NoError(t, err)
	var out ExtractTextOutput
	require.NoError(t, val.Get(&out))
	require.Equal(t, 2, out.Pages)
	require.Empty(t, out.SkippedPages)
	require.NotEmpty(t, out.Text)
}
