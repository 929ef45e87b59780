// Package assistant answers rule questions about one manual by retrieving its
// closest excerpts and streaming a grounded answer from the language model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"ludolens/internal/logging"
	"ludolens/internal/models"
	"ludolens/internal/providers"
	"ludolens/internal/storage"
)

var ErrQueryFailed = errors.New("failed to process query")

const (
	opAnswerImage = "answer_image"
	opAnswerText  = "answer_text"
	opStreamText  = "stream_text"
)

type Retriever interface {
	Search(ctx context.Context, manualID, query string, topK int) ([]models.SearchResult, error)
}

// CallRecorder persists one audit row per generation call.
type CallRecorder interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

type Options struct {
	TopK        int
	Language    string
	Temperature float32
}

type Answer struct {
	Text     string
	Sources  []models.SearchResult
	Provider providers.ProviderInfo
}

// Stream is an answer that has not been generated yet. Fragments must be
// consumed once.
type Stream struct {
	Fragments iter.Seq2[string, error]
	Sources   []models.SearchResult
	Provider  providers.ProviderInfo
}

type Assistant struct {
	retriever Retriever
	llm       providers.LLMProvider
	recorder  CallRecorder
	opts      Options
	log       *slog.Logger
}

func New(retriever Retriever, llm providers.LLMProvider, recorder CallRecorder, opts Options, log *slog.Logger) *Assistant {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = "Brazilian Portuguese"
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{
		retriever: retriever,
		llm:       llm,
		recorder:  recorder,
		opts:      opts,
		log:       log.With("component", "assistant"),
	}
}

// AnswerWithImage answers about a photo of the table. An empty question is
// replaced by DefaultImageQuestion for retrieval.
func (a *Assistant) AnswerWithImage(ctx context.Context, manualID string, image providers.Image, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	asked := question != ""
	if !asked {
		question = DefaultImageQuestion
	}
	sources, err := a.retrieve(ctx, manualID, question)
	if err != nil {
		return Answer{}, err
	}
	return a.complete(ctx, manualID, opAnswerImage, sources, providers.GenerateRequest{
		Operation:   opAnswerImage,
		System:      imageSystemPrompt(sources, a.opts.Language),
		Prompt:      imageUserPrompt(question, asked),
		Image:       &image,
		Temperature: a.opts.Temperature,
	})
}

func (a *Assistant) AnswerWithText(ctx context.Context, manualID, question string) (Answer, error) {
	stream, err := a.streamText(ctx, opAnswerText, manualID, question)
	if err != nil {
		return Answer{}, err
	}
	text, err := providers.Collect(stream.Fragments)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: stream.Sources, Provider: stream.Provider}, nil
}

// StreamText starts a text answer and returns its fragments lazily.
func (a *Assistant) StreamText(ctx context.Context, manualID, question string) (Stream, error) {
	return a.streamText(ctx, opStreamText, manualID, question)
}

func (a *Assistant) streamText(ctx context.Context, op, manualID, question string) (Stream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Stream{}, fmt.Errorf("%w: question is required", ErrQueryFailed)
	}
	sources, err := a.retrieve(ctx, manualID, question)
	if err != nil {
		return Stream{}, err
	}
	started := time.Now()
	seq, info, err := a.llm.GenerateStream(ctx, providers.GenerateRequest{
		Operation:   op,
		System:      textSystemPrompt(sources, a.opts.Language),
		Prompt:      question,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		a.record(ctx, manualID, op, info, started, len(sources), err)
		return Stream{}, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return Stream{
		Fragments: a.audited(ctx, manualID, op, info, started, len(sources), seq),
		Sources:   sources,
		Provider:  info,
	}, nil
}

func (a *Assistant) retrieve(ctx context.Context, manualID, query string) ([]models.SearchResult, error) {
	sources, err := a.retriever.Search(ctx, manualID, query, a.opts.TopK)
	if err != nil {
		a.log.Error("retrieve excerpts", "manual_id", manualID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return sources, nil
}

func (a *Assistant) complete(ctx context.Context, manualID, op string, sources []models.SearchResult, req providers.GenerateRequest) (Answer, error) {
	started := time.Now()
	seq, info, err := a.llm.GenerateStream(ctx, req)
	if err == nil {
		var text string
		text, err = providers.Collect(seq)
		if err == nil {
			a.record(ctx, manualID, op, info, started, len(sources), nil)
			a.log.Info("answer generated", "manual_id", manualID, "operation", op, "provider", info.Name, "answer_len", len(text))
			return Answer{Text: text, Sources: sources, Provider: info}, nil
		}
	}
	a.record(ctx, manualID, op, info, started, len(sources), err)
	a.log.Error("generate answer", "manual_id", manualID, "operation", op, "error", err)
	return Answer{}, fmt.Errorf("%w: %v", ErrQueryFailed, err)
}

// Statuses stored in llm_calls.
const (
	statusOK        = "ok"
	statusError     = "error"
	statusCancelled = "cancelled"
)

// errStreamAbandoned marks a stream the consumer stopped reading.
var errStreamAbandoned = errors.New("stream abandoned by consumer")

// audited passes fragments through and records the call once the stream ends.
func (a *Assistant) audited(ctx context.Context, manualID, op string, info providers.ProviderInfo, started time.Time, sources int, seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var streamErr error
		defer func() {
			a.record(ctx, manualID, op, info, started, sources, streamErr)
		}()
		for frag, err := range seq {
			if err != nil {
				streamErr = err
				yield("", fmt.Errorf("%w: %v", ErrQueryFailed, err))
				return
			}
			if !yield(frag, nil) {
				streamErr = errStreamAbandoned
				return
			}
		}
	}
}

func (a *Assistant) record(ctx context.Context, manualID, op string, info providers.ProviderInfo, started time.Time, sources int, callErr error) {
	if a.recorder == nil {
		return
	}
	rec := storage.LLMCallRecord{
		Operation:    op,
		ManualID:     manualID,
		ProviderName: info.Name,
		Model:        info.Model,
		RequestID:    logging.RequestID(ctx),
		Status:       statusOK,
		LatencyMS:    time.Since(started).Milliseconds(),
		SourceCount:  sources,
	}
	if rec.ProviderName == "" {
		rec.ProviderName = "unknown"
	}
	switch {
	case errors.Is(callErr, errStreamAbandoned):
		rec.Status = statusCancelled
	case callErr != nil:
		rec.Status = statusError
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	if err := a.recorder.Insert(context.WithoutCancel(ctx), rec); err != nil {
		a.log.Warn("record llm call", "operation", op, "error", err)
	}
}
