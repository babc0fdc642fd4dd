package config

// Config is the umbrella configuration object Initialize returns: the
// resolved Defaults plus the LLM provider table, following tarsy's
// Config-as-registry-bundle shape but scoped down to what this module's
// ambient stack actually needs.
type Config struct {
	configDir string

	Defaults            *Defaults
	LLMProviderRegistry *LLMProviderRegistry
}

// ConfigDir returns the configuration directory path Initialize was called
// with.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetLLMProvider retrieves an LLM provider configuration by name. A
// convenience wrapper over LLMProviderRegistry.Get, mirroring tarsy's
// Config accessor methods.
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// Stats summarizes the loaded configuration for a health-check endpoint.
type Stats struct {
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{LLMProviders: c.LLMProviderRegistry.Len()}
}
