package providers

import (
	"context"
	"iter"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// Image is an inline picture sent with a generation request.
type Image struct {
	MIMEType string
	Data     []byte
}

type GenerateRequest struct {
	Operation   string
	System      string
	Prompt      string
	Image       *Image
	Temperature float32
}

type EmbedPurpose string

const (
	EmbedDocument EmbedPurpose = "document"
	EmbedQuery    EmbedPurpose = "query"
)

type EmbedRequest struct {
	Operation string
	Purpose   EmbedPurpose
	Inputs    []string
	Dimension int
}

// LLMProvider streams an answer as text fragments. Errors raised while the
// stream is being consumed are yielded as the second value.
type LLMProvider interface {
	GenerateStream(ctx context.Context, req GenerateRequest) (iter.Seq2[string, error], ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}
