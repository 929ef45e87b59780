package assistant

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludolens/internal/logging"
	"ludolens/internal/models"
	"ludolens/internal/providers"
	"ludolens/internal/storage"
)

const manualID = "0f4b1f5e-7a43-4a55-9d6e-3b1a9f0c2e11"

type stubRetriever struct {
	results []models.SearchResult
	err     error
	queries []string
	topK    int
}

func (s *stubRetriever) Search(ctx context.Context, id, query string, topK int) ([]models.SearchResult, error) {
	s.queries = append(s.queries, query)
	s.topK = topK
	return s.results, s.err
}

type recordingLLM struct {
	reqs []providers.GenerateRequest
	seq  iter.Seq2[string, error]
	err  error
}

func (r *recordingLLM) GenerateStream(ctx context.Context, req providers.GenerateRequest) (iter.Seq2[string, error], providers.ProviderInfo, error) {
	r.reqs = append(r.reqs, req)
	info := providers.ProviderInfo{Name: "stub", Model: "stub-1"}
	if r.err != nil {
		return nil, info, r.err
	}
	if r.seq != nil {
		return r.seq, info, nil
	}
	return providers.FromText("Roll both dice."), info, nil
}

type memRecorder struct {
	rows []storage.LLMCallRecord
}

func (m *memRecorder) Insert(ctx context.Context, rec storage.LLMCallRecord) error {
	m.rows = append(m.rows, rec)
	return nil
}

func excerpts() []models.SearchResult {
	return []models.SearchResult{
		{ID: manualID + "-chunk-0", Content: "Each player rolls two dice at the start of the turn.", Metadata: models.ChunkMetadata{ManualID: manualID}},
		{ID: manualID + "-chunk-1", Content: "A seven moves the robber.", Metadata: models.ChunkMetadata{ManualID: manualID, ChunkIndex: 1}},
	}
}

func TestAnswerWithText(t *testing.T) {
	ret := &stubRetriever{results: excerpts()}
	rec := &memRecorder{}
	a := New(ret, providers.NewMockProvider(8), rec, Options{}, logging.Discard())

	ctx := logging.WithRequestID(context.Background(), "req-1")
	ans, err := a.AnswerWithText(ctx, manualID, "  What happens on a seven? ")
	require.NoError(t, err)

	assert.Equal(t, []string{"What happens on a seven?"}, ret.queries)
	assert.Equal(t, 3, ret.topK)
	assert.Contains(t, ans.Text, "Mock answer.")
	assert.Contains(t, ans.Text, "Each player rolls two dice")
	assert.Len(t, ans.Sources, 2)
	assert.Equal(t, "mock", ans.Provider.Name)

	require.Len(t, rec.rows, 1)
	row := rec.rows[0]
	assert.Equal(t, opAnswerText, row.Operation)
	assert.Equal(t, manualID, row.ManualID)
	assert.Equal(t, "req-1", row.RequestID)
	assert.Equal(t, "ok", row.Status)
	assert.Equal(t, 2, row.SourceCount)
}

func TestAnswerWithText_PromptCarriesExcerpts(t *testing.T) {
	llm := &recordingLLM{}
	a := New(&stubRetriever{results: excerpts()}, llm, nil, Options{Language: "English", Temperature: 0.5}, logging.Discard())

	_, err := a.AnswerWithText(context.Background(), manualID, "How many dice?")
	require.NoError(t, err)

	require.Len(t, llm.reqs, 1)
	req := llm.reqs[0]
	assert.Equal(t, "How many dice?", req.Prompt)
	assert.Nil(t, req.Image)
	assert.InDelta(t, 0.5, req.Temperature, 1e-6)
	assert.Contains(t, req.System, "answer in English")
	assert.Contains(t, req.System, "[Excerpt 1]\nEach player rolls two dice at the start of the turn.\n\n[Excerpt 2]\nA seven moves the robber.")
}

func TestAnswerWithText_EmptyQuestion(t *testing.T) {
	ret := &stubRetriever{}
	a := New(ret, providers.NewMockProvider(8), nil, Options{}, logging.Discard())

	_, err := a.AnswerWithText(context.Background(), manualID, "   ")
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.Empty(t, ret.queries)
}

func TestAnswerWithText_RetrievalFailure(t *testing.T) {
	llm := &recordingLLM{}
	a := New(&stubRetriever{err: errors.New("embedding quota exceeded")}, llm, nil, Options{}, logging.Discard())

	_, err := a.AnswerWithText(context.Background(), manualID, "q")
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, llm.reqs)
}

func TestAnswerWithText_GenerationFailureIsAudited(t *testing.T) {
	rec := &memRecorder{}
	llm := &recordingLLM{err: errors.New("429 rate limited")}
	a := New(&stubRetriever{results: excerpts()}, llm, rec, Options{}, logging.Discard())

	_, err := a.AnswerWithText(context.Background(), manualID, "q")
	require.ErrorIs(t, err, ErrQueryFailed)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, "error", rec.rows[0].Status)
	assert.Equal(t, string(providers.ErrorRate), rec.rows[0].ErrorType)
}

func TestAnswerWithText_NoExcerptsStillAnswers(t *testing.T) {
	llm := &recordingLLM{}
	a := New(&stubRetriever{}, llm, nil, Options{}, logging.Discard())

	ans, err := a.AnswerWithText(context.Background(), manualID, "Is there a rule for trading?")
	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, "Roll both dice.", ans.Text)
}

func TestStreamText(t *testing.T) {
	rec := &memRecorder{}
	a := New(&stubRetriever{results: excerpts()}, providers.NewMockProvider(8), rec, Options{}, logging.Discard())

	s, err := a.StreamText(context.Background(), manualID, "Robber?")
	require.NoError(t, err)
	assert.Len(t, s.Sources, 2)
	assert.Empty(t, rec.rows, "recorded only after the stream is consumed")

	var frags []string
	for f, err := range s.Fragments {
		require.NoError(t, err)
		frags = append(frags, f)
	}
	assert.Greater(t, len(frags), 1)
	assert.Equal(t, "Mock", frags[0])

	require.Len(t, rec.rows, 1)
	assert.Equal(t, opStreamText, rec.rows[0].Operation)
	assert.Equal(t, "ok", rec.rows[0].Status)
}

func TestStreamText_MidStreamError(t *testing.T) {
	rec := &memRecorder{}
	boom := errors.New("connection reset")
	llm := &recordingLLM{seq: func(yield func(string, error) bool) {
		if !yield("Partial", nil) {
			return
		}
		yield("", boom)
	}}
	a := New(&stubRetriever{results: excerpts()}, llm, rec, Options{}, logging.Discard())

	s, err := a.StreamText(context.Background(), manualID, "q")
	require.NoError(t, err)

	var got []string
	var streamErr error
	for f, err := range s.Fragments {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, f)
	}
	assert.Equal(t, []string{"Partial"}, got)
	require.ErrorIs(t, streamErr, ErrQueryFailed)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, "error", rec.rows[0].Status)
}

func TestStreamText_AbandonedIsRecordedAsCancelled(t *testing.T) {
	rec := &memRecorder{}
	a := New(&stubRetriever{results: excerpts()}, providers.NewMockProvider(8), rec, Options{}, logging.Discard())

	s, err := a.StreamText(context.Background(), manualID, "Robber?")
	require.NoError(t, err)
	for _, err := range s.Fragments {
		require.NoError(t, err)
		break
	}

	require.Len(t, rec.rows, 1)
	assert.Equal(t, "cancelled", rec.rows[0].Status)
	assert.Empty(t, rec.rows[0].ErrorType)
}

func TestAnswerWithImage_DefaultQuestion(t *testing.T) {
	ret := &stubRetriever{results: excerpts()}
	llm := &recordingLLM{}
	rec := &memRecorder{}
	a := New(ret, llm, rec, Options{}, logging.Discard())

	img := providers.Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	ans, err := a.AnswerWithImage(context.Background(), manualID, img, "")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultImageQuestion}, ret.queries)
	require.Len(t, llm.reqs, 1)
	req := llm.reqs[0]
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/jpeg", req.Image.MIMEType)
	assert.Equal(t, imageOnlyPrompt, req.Prompt)
	assert.Contains(t, req.System, "photo of the game table")
	assert.Contains(t, req.System, "Brazilian Portuguese")
	assert.Equal(t, "Roll both dice.", ans.Text)
	assert.Len(t, ans.Sources, 2)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, opAnswerImage, rec.rows[0].Operation)
}

func TestAnswerWithImage_WithQuestion(t *testing.T) {
	ret := &stubRetriever{results: excerpts()}
	llm := &recordingLLM{}
	a := New(ret, llm, nil, Options{}, logging.Discard())

	_, err := a.AnswerWithImage(context.Background(), manualID, providers.Image{MIMEType: "image/png", Data: []byte("png")}, "Can I move the robber here?")
	require.NoError(t, err)

	assert.Equal(t, []string{"Can I move the robber here?"}, ret.queries)
	assert.Equal(t, "Can I move the robber here?\n\n"+imageAttachedNote, llm.reqs[0].Prompt)
}

func TestAnswerWithImage_StreamFailure(t *testing.T) {
	rec := &memRecorder{}
	llm := &recordingLLM{seq: func(yield func(string, error) bool) {
		yield("", errors.New("service unavailable"))
	}}
	a := New(&stubRetriever{results: excerpts()}, llm, rec, Options{}, logging.Discard())

	_, err := a.AnswerWithImage(context.Background(), manualID, providers.Image{MIMEType: "image/png", Data: []byte("png")}, "q")
	require.ErrorIs(t, err, ErrQueryFailed)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, string(providers.ErrorTransient), rec.rows[0].ErrorType)
}
