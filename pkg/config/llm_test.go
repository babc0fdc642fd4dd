package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMProviderTypeIsValid(t *testing.T) {
	assert.True(t, LLMProviderTypeAnthropic.IsValid())
	assert.True(t, LLMProviderTypeOpenAI.IsValid())
	assert.False(t, LLMProviderType("bedrock").IsValid())
	assert.False(t, LLMProviderType("").IsValid())
}

func TestLLMProviderRegistryGet(t *testing.T) {
	registry := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"anthropic": {Type: LLMProviderTypeAnthropic, Model: "claude-sonnet-4-5", APIKeyEnv: "ANTHROPIC_API_KEY"},
	})

	got, err := registry.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)

	_, err = registry.Get("missing")
	require.ErrorIs(t, err, ErrLLMProviderNotFound)
}

func TestLLMProviderRegistryGetAllIsDefensiveCopy(t *testing.T) {
	registry := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"anthropic": {Type: LLMProviderTypeAnthropic, Model: "claude-sonnet-4-5", APIKeyEnv: "ANTHROPIC_API_KEY"},
	})

	all := registry.GetAll()
	delete(all, "anthropic")

	assert.Equal(t, 1, registry.Len())
}

func TestLLMProviderRegistryLen(t *testing.T) {
	registry := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"anthropic": {Type: LLMProviderTypeAnthropic, Model: "claude-sonnet-4-5", APIKeyEnv: "ANTHROPIC_API_KEY"},
		"openai":    {Type: LLMProviderTypeOpenAI, Model: "gpt-4o", APIKeyEnv: "OPENAI_API_KEY"},
	})

	assert.Equal(t, 2, registry.Len())
}
