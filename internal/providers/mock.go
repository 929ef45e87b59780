package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"strings"
)

// MockProvider is deterministic and needs no network. Embeddings are derived
// from a hash of the input; answers quote the start of the grounding prompt.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(_ context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) GenerateStream(ctx context.Context, req GenerateRequest) (iter.Seq2[string, error], ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	text := "Mock answer."
	if req.Image != nil {
		text = "Mock answer based on the attached table image."
	}
	words := strings.Fields(text + " " + firstExcerpt(req.System))
	return func(yield func(string, error) bool) {
		for i, w := range words {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if i > 0 {
				w = " " + w
			}
			if !yield(w, nil) {
				return
			}
		}
	}, info, nil
}

func firstExcerpt(system string) string {
	idx := strings.Index(system, "[Excerpt 1]")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(system[idx+len("[Excerpt 1]"):])
	if end := strings.Index(rest, "\n\n"); end >= 0 {
		rest = rest[:end]
	}
	runes := []rune(rest)
	if len(runes) > 160 {
		runes = runes[:160]
	}
	return string(runes)
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (math.Sqrt(float64(sum)) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
