package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"ludolens/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager owns the configured providers. Generation fails over across the LLM
// list; embeddings always come from the first embedding provider because
// vectors from different models are not comparable.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
	closers        []io.Closer
	log            *slog.Logger
}

func NewManager(ctx context.Context, cfg config.Config, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{log: log.With("component", "providers")}
	built := map[string]any{}
	build := func(ref ProviderRef) (any, error) {
		if p, ok := built[ref.Raw]; ok {
			return p, nil
		}
		p, err := buildProvider(ctx, ref, cfg, m.log)
		if err != nil {
			return nil, err
		}
		if c, ok := p.(io.Closer); ok {
			m.closers = append(m.closers, c)
		}
		built[ref.Raw] = p
		return p, nil
	}

	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := build(ref)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			_ = m.Close()
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := build(ref)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			_ = m.Close()
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	if len(m.embedProviders) > 1 {
		m.log.Warn("only the first embedding provider is used", "provider", m.embedProviders[0].Ref.Raw)
	}
	return m, nil
}

// NewStaticManager wraps already constructed providers.
func NewStaticManager(embed EmbeddingProvider, llms ...LLMProvider) *Manager {
	m := &Manager{log: slog.Default()}
	m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "static", Name: "static"}, Provider: embed}}
	for i, p := range llms {
		name := fmt.Sprintf("static%d", i)
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ProviderRef{Raw: name, Name: name}, Provider: p})
	}
	return m
}

func (m *Manager) Embedder() EmbeddingProvider {
	return m.embedProviders[0].Provider
}

func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	return m.Embedder().Embed(ctx, req)
}

func (m *Manager) LLMRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.llmProviders))
	for _, p := range m.llmProviders {
		out = append(out, p.Ref)
	}
	return out
}

func (m *Manager) EmbedRef() ProviderRef {
	return m.embedProviders[0].Ref
}

// GenerateStream tries the LLM providers in preferred order. A provider that
// fails before producing its first fragment is skipped; once output has
// started, later errors surface through the stream.
func (m *Manager) GenerateStream(ctx context.Context, req GenerateRequest) (iter.Seq2[string, error], ProviderInfo, error) {
	var (
		lastErr  error
		lastInfo ProviderInfo
	)
	for _, idx := range m.PreferredLLMOrder() {
		named := m.llmProviders[idx]
		seq, info, err := named.Provider.GenerateStream(ctx, req)
		if err == nil {
			seq, err = primeStream(seq)
		}
		if err == nil {
			return seq, info, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, info, ctxErr
		}
		lastErr, lastInfo = err, info
		kind := ClassifyError(err)
		m.log.Warn("llm provider failed, trying next",
			"provider", named.Ref.Raw,
			"operation", req.Operation,
			"error_type", string(kind),
			"retryable", kind.Retryable(),
			"error", err,
		)
	}
	if lastErr == nil {
		lastErr = errors.New("no llm providers configured")
	}
	return nil, lastInfo, lastErr
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func (m *Manager) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	m.closers = nil
	return errors.Join(errs...)
}

func buildProvider(ctx context.Context, ref ProviderRef, cfg config.Config, log *slog.Logger) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "gemini":
		return NewGeminiProvider(ctx, GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			KeyAlias:   ref.KeyAlias,
			Model:      cfg.GeminiModel,
			EmbedModel: cfg.GeminiEmbedModel,
			RPM:        cfg.GeminiRPM,
			Logger:     log,
		})
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
