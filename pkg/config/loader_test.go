package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeFailsWithNoCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Initialize(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestInitializeSucceedsWithAnthropicKeyOnly(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Defaults.LLMProvider)
	assert.Equal(t, DefaultOrchestratorMaxTurns, cfg.Defaults.OrchestratorMaxTurns)
	assert.Equal(t, DefaultIterationCeiling, cfg.Defaults.IterationCeiling)

	provider, err := cfg.GetLLMProvider("anthropic")
	require.NoError(t, err)
	assert.Equal(t, LLMProviderTypeAnthropic, provider.Type)
}

func TestInitializePrefersAnthropicWhenBothKeysPresent(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-proj-test")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Defaults.LLMProvider)
}

func TestInitializeAppliesModelEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ANTHROPIC_MODEL", "claude-opus-4")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	provider, err := cfg.GetLLMProvider("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4", provider.Model)
}

func TestInitializeAppliesOrchestratorEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ORCHESTRATOR_MAX_TURNS", "42")
	t.Setenv("PIPELINE_ITERATION_CEILING", "3")
	t.Setenv("CODING_AGENT_BIN", "/usr/local/bin/my-agent")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Defaults.OrchestratorMaxTurns)
	assert.Equal(t, 3, cfg.Defaults.IterationCeiling)
	assert.Equal(t, "/usr/local/bin/my-agent", cfg.Defaults.CodingAgentBin)
}

func TestInitializeIgnoresInvalidOrchestratorEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ORCHESTRATOR_MAX_TURNS", "not-a-number")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultOrchestratorMaxTurns, cfg.Defaults.OrchestratorMaxTurns)
}

func TestInitializeLoadsYAMLFileOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("CUSTOM_MODEL", "claude-haiku-4")

	dir := t.TempDir()
	yamlContent := `
llm_providers:
  anthropic:
    model: {{.CUSTOM_MODEL}}
defaults:
  iteration_ceiling: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(yamlContent), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	provider, err := cfg.GetLLMProvider("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4", provider.Model)
	assert.Equal(t, 7, cfg.Defaults.IterationCeiling)
}

func TestInitializeMissingYAMLFileIsNotAnError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	_, err := Initialize(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("not: [valid: yaml"), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestConfigStatsReportsProviderCount(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Stats().LLMProviders)
}

func TestConfigDirReturnsConfiguredPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ConfigDir())
}
