package config

import (
	"github.com/spf13/viper"
)

// Default server address for the HTTP API
const DefaultServerAddr = ":8787"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "jira-tool.db")

	// Server defaults
	v.SetDefault("server.addr", DefaultServerAddr)

	// AI provider defaults
	v.SetDefault("ai.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("ai.temperature", 0.2)            // Deterministic
	v.SetDefault("ai.max_tokens", 4000)
	v.SetDefault("ai.timeout_seconds", 120)

	// Jira defaults
	v.SetDefault("jira.base_url", "")
	v.SetDefault("jira.email", "")
	v.SetDefault("jira.requests_per_second", 5)

	// Plan store defaults
	v.SetDefault("plans.dir", "plans")
}

// BindSensitiveEnvVars binds API credentials to environment variables so they
// never need to appear in a config file
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("ai.api_key", "JIRATOOL_AI_API_KEY")
	v.BindEnv("jira.api_token", "JIRATOOL_JIRA_API_TOKEN")
}
