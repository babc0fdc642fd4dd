package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// autopipeYAMLConfig mirrors tarsy.yaml's role, scoped down to the two
// sections this module actually has: the LLM provider table and the
// system-wide Defaults. The file itself is optional — every field can be
// supplied purely through environment variables instead.
type autopipeYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
	Defaults     *Defaults                    `yaml:"defaults"`
}

// configFileName is the single optional YAML file this package reads,
// following tarsy's convention of one well-known filename per configDir.
const configFileName = "autopipe.yaml"

// builtinProviders seeds the registry with the two vendors this module
// talks to directly, so a deployment with no autopipe.yaml at all still
// gets a usable provider table driven entirely by env vars.
func builtinProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		"anthropic": {
			Type:      LLMProviderTypeAnthropic,
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		"openai": {
			Type:      LLMProviderTypeOpenAI,
			Model:     "gpt-4o",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load the optional autopipe.yaml from configDir, expanding env vars
//  2. Merge built-in provider table with user-defined entries
//  3. Apply env-var overrides for model names and the orchestrator defaults
//  4. Resolve remaining defaults
//  5. Validate (including the fatal no-credentials rule)
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully", "llm_providers", stats.LLMProviders)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	fileCfg, err := loader.loadYAMLFile()
	if err != nil {
		return nil, NewLoadError(configFileName, err)
	}

	providers := builtinProviders()
	for name, override := range fileCfg.LLMProviders {
		if err := mergo.Merge(&override, providers[name]); err != nil {
			return nil, fmt.Errorf("failed to merge llm provider %q: %w", name, err)
		}
		providers[name] = override
	}
	applyLLMProviderEnvOverrides(providers)

	registryInput := make(map[string]*LLMProviderConfig, len(providers))
	for name := range providers {
		p := providers[name]
		registryInput[name] = &p
	}

	defaults := fileCfg.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	resolveDefaults(defaults)

	return &Config{
		configDir:           configDir,
		Defaults:            defaults,
		LLMProviderRegistry: NewLLMProviderRegistry(registryInput),
	}, nil
}

// applyLLMProviderEnvOverrides applies ANTHROPIC_MODEL/OPENAI_MODEL on top
// of whatever the YAML file (or built-in defaults) set, per spec.md §10.
func applyLLMProviderEnvOverrides(providers map[string]LLMProviderConfig) {
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		if p, ok := providers["anthropic"]; ok {
			p.Model = v
			providers["anthropic"] = p
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		if p, ok := providers["openai"]; ok {
			p.Model = v
			providers["openai"] = p
		}
	}
}

// resolveDefaults fills in zero-valued Defaults fields from environment
// variables, then from the package's built-in fallback constants, mirroring
// tarsy's layered built-in -> YAML -> validated resolution order.
func resolveDefaults(d *Defaults) {
	if d.LLMProvider == "" {
		d.LLMProvider = resolveDefaultProvider()
	}
	if v := os.Getenv("ORCHESTRATOR_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.OrchestratorMaxTurns = n
		} else {
			slog.Warn("invalid ORCHESTRATOR_MAX_TURNS, ignoring", "value", v)
		}
	}
	if d.OrchestratorMaxTurns == 0 {
		d.OrchestratorMaxTurns = DefaultOrchestratorMaxTurns
	}

	if v := os.Getenv("PIPELINE_ITERATION_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.IterationCeiling = n
		} else {
			slog.Warn("invalid PIPELINE_ITERATION_CEILING, ignoring", "value", v)
		}
	}
	if d.IterationCeiling == 0 {
		d.IterationCeiling = DefaultIterationCeiling
	}

	if d.CodingAgentBin == "" {
		d.CodingAgentBin = os.Getenv("CODING_AGENT_BIN")
	}
}

// resolveDefaultProvider picks anthropic or openai based on which
// credential is actually present, preferring Anthropic when both are set
// (matching the teacher's Anthropic-first provider ordering).
func resolveDefaultProvider() string {
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return string(LLMProviderTypeAnthropic)
	case os.Getenv("OPENAI_API_KEY") != "":
		return string(LLMProviderTypeOpenAI)
	default:
		return string(LLMProviderTypeAnthropic)
	}
}

// validate performs comprehensive validation on loaded configuration,
// including the fatal-startup no-credentials rule from spec.md §10.
func validate(cfg *Config) error {
	if os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
		return ErrNoCredentials
	}

	for name, p := range cfg.LLMProviderRegistry.GetAll() {
		if !p.Type.IsValid() {
			return NewValidationError(fmt.Sprintf("llm_providers.%s.type", name), fmt.Errorf("unknown provider type %q", p.Type))
		}
		if p.Model == "" {
			return NewValidationError(fmt.Sprintf("llm_providers.%s.model", name), fmt.Errorf("model must not be empty"))
		}
	}

	if cfg.Defaults.OrchestratorMaxTurns < 1 {
		return NewValidationError("defaults.orchestrator_max_turns", fmt.Errorf("must be at least 1"))
	}
	if cfg.Defaults.IterationCeiling < 1 {
		return NewValidationError("defaults.iteration_ceiling", fmt.Errorf("must be at least 1"))
	}

	return nil
}

type configLoader struct {
	configDir string
}

// loadYAMLFile reads configFileName from configDir, expanding env vars
// before parsing. A missing file is not an error — every setting has an
// env-var or built-in fallback.
func (l *configLoader) loadYAMLFile() (*autopipeYAMLConfig, error) {
	cfg := &autopipeYAMLConfig{
		LLMProviders: make(map[string]LLMProviderConfig),
	}

	path := filepath.Join(l.configDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if cfg.LLMProviders == nil {
		cfg.LLMProviders = make(map[string]LLMProviderConfig)
	}

	return cfg, nil
}
