package providers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const geminiEmbedBatchLimit = 100

var tracer = otel.Tracer("ludolens/providers")

type GeminiOptions struct {
	APIKey      string
	KeyAlias    string
	Model       string
	EmbedModel  string
	RPM         int
	Temperature float32
	Logger      *slog.Logger
}

// GeminiProvider serves both embeddings and streamed multimodal generation.
// Calls pass through a rate limiter and a circuit breaker.
type GeminiProvider struct {
	client      *genai.Client
	alias       string
	model       string
	embedModel  string
	temperature float32
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	log         *slog.Logger
}

func NewGeminiProvider(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	key := resolveGeminiKey(opts.KeyAlias, opts.APIKey)
	if key == "" {
		return nil, fmt.Errorf("gemini key missing for alias %q", opts.KeyAlias)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gemini")
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash-exp"
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = "text-embedding-004"
	}
	if opts.RPM <= 0 {
		opts.RPM = 60
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.2
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	burst := opts.RPM / 10
	if burst < 1 {
		burst = 1
	}
	return &GeminiProvider{
		client:      client,
		alias:       opts.KeyAlias,
		model:       opts.Model,
		embedModel:  opts.EmbedModel,
		temperature: opts.Temperature,
		breaker:     breaker,
		limiter:     rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), burst),
		log:         log,
	}, nil
}

func (g *GeminiProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiProvider) info(model string) ProviderInfo {
	return ProviderInfo{Name: "gemini", Model: model, Key: g.alias}
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := g.info(g.embedModel)
	ctx, span := tracer.Start(ctx, "gemini.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.embedModel),
		attribute.Int("gemini.inputs", len(req.Inputs)),
		attribute.String("gemini.purpose", string(req.Purpose)),
	)
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}

	em := g.client.EmbeddingModel(g.embedModel)
	if req.Purpose == EmbedQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	} else {
		em.TaskType = genai.TaskTypeRetrievalDocument
	}

	out := make([][]float32, 0, len(req.Inputs))
	for start := 0; start < len(req.Inputs); start += geminiEmbedBatchLimit {
		end := min(start+geminiEmbedBatchLimit, len(req.Inputs))
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, info, err
		}
		res, err := g.breaker.Execute(func() (interface{}, error) {
			batch := em.NewBatch()
			for _, text := range req.Inputs[start:end] {
				batch.AddContent(genai.Text(text))
			}
			return em.BatchEmbedContents(ctx, batch)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embed failed")
			return nil, info, fmt.Errorf("gemini embed: %w", err)
		}
		resp := res.(*genai.BatchEmbedContentsResponse)
		if len(resp.Embeddings) != end-start {
			return nil, info, fmt.Errorf("gemini embed: expected %d embeddings, got %d", end-start, len(resp.Embeddings))
		}
		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, info, fmt.Errorf("gemini embed: empty embedding returned")
			}
			out = append(out, matchDimension(e.Values, req.Dimension))
		}
	}
	return out, info, nil
}

type geminiOpened struct {
	it    *genai.GenerateContentResponseIterator
	first *genai.GenerateContentResponse
}

func (g *GeminiProvider) GenerateStream(ctx context.Context, req GenerateRequest) (iter.Seq2[string, error], ProviderInfo, error) {
	info := g.info(g.model)
	ctx, span := tracer.Start(ctx, "gemini.generate_stream")
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.String("gemini.operation", req.Operation),
		attribute.Bool("gemini.has_image", req.Image != nil),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		endSpan(span, err)
		return nil, info, err
	}

	model := g.client.GenerativeModel(g.model)
	temp := g.temperature
	if req.Temperature > 0 {
		temp = req.Temperature
	}
	model.SetTemperature(temp)
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
	}

	// The breaker judges the call by whether the first chunk arrives.
	res, err := g.breaker.Execute(func() (interface{}, error) {
		it := model.GenerateContentStream(ctx, parts...)
		first, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return geminiOpened{it: it}, nil
		}
		if err != nil {
			return nil, err
		}
		return geminiOpened{it: it, first: first}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		endSpan(span, err)
		return nil, info, fmt.Errorf("gemini generate: %w", err)
	}
	opened := res.(geminiOpened)

	return tracedStream(span, func(yield func(string, error) bool) {
		if opened.first == nil {
			return
		}
		if text := responseText(opened.first); text != "" {
			if !yield(text, nil) {
				return
			}
		}
		for {
			resp, err := opened.it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				g.log.Warn("gemini stream interrupted", "error", err)
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}), info, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
	}
	span.End()
}

// tracedStream keeps span open until seq is drained, abandoned or fails.
func tracedStream(span trace.Span, seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var (
			fragments int
			streamErr error
		)
		defer func() {
			span.SetAttributes(attribute.Int("gemini.fragments", fragments))
			endSpan(span, streamErr)
		}()
		for frag, err := range seq {
			if err != nil {
				streamErr = err
			} else {
				fragments++
			}
			if !yield(frag, err) {
				return
			}
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String()
}

func resolveGeminiKey(alias, fallback string) string {
	if alias != "" {
		if v := os.Getenv("LUDOLENS_GEMINI_KEY_" + strings.ToUpper(sanitizeEnvToken(alias))); v != "" {
			return v
		}
	}
	return fallback
}
