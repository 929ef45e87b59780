package providers

import (
	"net/http"
	"strings"
	"time"
)

// NewGroqProvider returns a chat provider for Groq's OpenAI-compatible API.
// Groq has no embeddings endpoint, so it is only valid in the LLM list.
func NewGroqProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:    "groq",
		keyName: keyName,
		apiKey:  resolveKey("GROQ", keyName, "GROQ_API_KEY"),
		baseURL: strings.TrimRight(envOr("LUDOLENS_GROQ_BASE_URL", "https://api.groq.com/openai/v1"), "/"),
		model:   envOr("LUDOLENS_GROQ_MODEL", "llama-3.1-8b-instant"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}
