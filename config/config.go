// Package config loads jira-tool configuration via Viper.
//
// Configuration sources, in precedence order: environment variables
// (JIRATOOL_ prefix), a project jira-tool.toml discovered by walking up the
// directory tree, and built-in defaults. Sensitive values (API tokens) are
// only ever read from the environment.
package config

// Config represents the jira-tool configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	AI       AIConfig       `mapstructure:"ai"`
	Jira     JiraConfig     `mapstructure:"jira"`
	Plans    PlansConfig    `mapstructure:"plans"`
}

// DatabaseConfig configures the SQLite execution tracker store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// AIConfig configures the LLM provider used to interpret revision requests
// and draft breakdown plans
type AIConfig struct {
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"` // env only: JIRATOOL_AI_API_KEY
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// JiraConfig configures the ticket-tracking REST client
type JiraConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	Email             string `mapstructure:"email"`
	APIToken          string `mapstructure:"api_token"` // env only: JIRATOOL_JIRA_API_TOKEN
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
}

// PlansConfig configures the file-backed plan document store
type PlansConfig struct {
	Dir string `mapstructure:"dir"`
}
