package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
	// Ollama accepts larger batches, but a single slow request then blocks a
	// whole manual page range.
	ollamaBatchSize = 32
)

var ollamaModelAliases = map[string]string{
	"nomic": "nomic-embed-text",
	"bge":   "bge-small-en-v1.5",
	"mxbai": "mxbai-embed-large",
}

// OllamaEmbeddingProvider embeds manual chunks through a local Ollama server
// so indexing works without a cloud key.
type OllamaEmbeddingProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func NewOllamaEmbeddingProvider(alias string) *OllamaEmbeddingProvider {
	baseURL := strings.TrimSpace(os.Getenv("LUDOLENS_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaEmbeddingProvider{
		alias:   alias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   resolveOllamaEmbedModel(alias),
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("ollama: no embedding inputs")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for start := 0; start < len(req.Inputs); start += ollamaBatchSize {
		end := min(start+ollamaBatchSize, len(req.Inputs))
		vecs, err := o.embedBatch(ctx, req.Inputs[start:end])
		if err != nil {
			return nil, info, err
		}
		for _, v := range vecs {
			out = append(out, matchDimension(v, req.Dimension))
		}
	}
	return out, info, nil
}

func (o *OllamaEmbeddingProvider) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: inputs})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama embed read: %w", err)
	}

	var parsed ollamaEmbedResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode >= 400 {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("ollama embed %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode ollama embed response: %w", decodeErr)
	}
	if len(parsed.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(inputs))
	}
	for i, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding at %d", i)
		}
	}
	return parsed.Embeddings, nil
}

// resolveOllamaEmbedModel maps a key alias to a model. Lookup order:
// LUDOLENS_OLLAMA_EMBED_MODEL_<ALIAS>, a short alias, a literal model name,
// then LUDOLENS_OLLAMA_EMBED_MODEL.
func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("LUDOLENS_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
		if m, ok := ollamaModelAliases[strings.ToLower(alias)]; ok {
			return m
		}
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("LUDOLENS_OLLAMA_EMBED_MODEL")); v != "" {
		return v
	}
	return defaultOllamaModel
}

var envTokenReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

func sanitizeEnvToken(s string) string {
	return envTokenReplacer.Replace(strings.ToUpper(s))
}

// matchDimension truncates or zero-pads v so every stored vector fits the
// pgvector column width.
func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
