package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("Gemini | groq:key1, groq:key2|mock")
	assert.Equal(t, []ProviderRef{
		{Raw: "gemini", Name: "gemini"},
		{Raw: "groq:key1", Name: "groq", KeyAlias: "key1"},
		{Raw: "groq:key2", Name: "groq", KeyAlias: "key2"},
		{Raw: "mock", Name: "mock"},
	}, refs)
}

func TestParseProviderList_DedupesAndDefaults(t *testing.T) {
	assert.Equal(t, []ProviderRef{{Raw: "gemini", Name: "gemini"}}, ParseProviderList("gemini|GEMINI,gemini"))
	assert.Equal(t, []ProviderRef{{Raw: "mock", Name: "mock"}}, ParseProviderList(" | ,"))
	assert.Equal(t, []ProviderRef{{Raw: "mock", Name: "mock"}}, ParseProviderList(""))
}
