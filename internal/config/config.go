// Package config holds the agent configuration, loaded from a YAML file
// with environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all outreach agent configuration.
type Config struct {
	Name     string `yaml:"name"`
	DataDir  string `yaml:"data_dir"` // knowledge base, pidfile, status snapshot
	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	LLM   LLMConfig   `yaml:"llm"`
	SMTP  SMTPConfig  `yaml:"smtp"`
	Web   WebConfig   `yaml:"web"`
	Agent AgentConfig `yaml:"agent"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// SMTPConfig configures the outbound mail transport.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// WebConfig configures page fetching and prospect search.
type WebConfig struct {
	FetchTimeout  string `yaml:"fetch_timeout"`
	SearchTimeout string `yaml:"search_timeout"`
	MaxResults    int    `yaml:"max_results"`
	UseBrowser    bool   `yaml:"use_browser"` // render JS-heavy pages with a headless browser
}

// AgentConfig configures the scheduler cycles and send caps.
type AgentConfig struct {
	ProspectingInterval string `yaml:"prospecting_interval"`
	EmailingInterval    string `yaml:"emailing_interval"`
	BackupInterval      string `yaml:"backup_interval"`
	MaxEmailsPerCycle   int    `yaml:"max_emails_per_cycle"`
	MaxEmailsPerDay     int    `yaml:"max_emails_per_day"`
	MaxQueriesPerCycle  int    `yaml:"max_queries_per_cycle"`
	SendDelay           string `yaml:"send_delay"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".prospector")
	return &Config{
		Name:     "prospector",
		DataDir:  dataDir,
		LogDir:   filepath.Join(dataDir, "logs"),
		LogLevel: "info",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "60s",
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Web: WebConfig{
			FetchTimeout:  "15s",
			SearchTimeout: "30s",
			MaxResults:    10,
		},
		Agent: AgentConfig{
			ProspectingInterval: "30m",
			EmailingInterval:    "45m",
			BackupInterval:      "10m",
			MaxEmailsPerCycle:   5,
			MaxEmailsPerDay:     50,
			MaxQueriesPerCycle:  3,
			SendDelay:           "5s",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults if
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys are
// checked in priority order; the last one found wins, matching the
// provider it belongs to.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.SMTP.From = v
	}

	if v := os.Getenv("PROSPECTOR_DATA_DIR"); v != "" {
		c.DataDir = v
		c.LogDir = filepath.Join(v, "logs")
	}
}

// KnowledgeBasePath returns the location of the knowledge base document.
func (c *Config) KnowledgeBasePath() string {
	return filepath.Join(c.DataDir, "knowledge-base.json")
}

// StatusFilePath returns the location of the status snapshot the agent
// refreshes after every cycle, read by the status/monitor subcommands.
func (c *Config) StatusFilePath() string {
	return filepath.Join(c.DataDir, "status.json")
}

// PIDFilePath returns the location of the agent pidfile.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.DataDir, "agent.pid")
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LLMTimeout returns the LLM call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// FetchTimeout returns the page fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.Web.FetchTimeout, 15*time.Second)
}

// SearchTimeout returns the search timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return parseDuration(c.Web.SearchTimeout, 30*time.Second)
}

// ProspectingInterval returns the discovery cycle period.
func (c *Config) ProspectingInterval() time.Duration {
	return parseDuration(c.Agent.ProspectingInterval, 30*time.Minute)
}

// EmailingInterval returns the email cycle period.
func (c *Config) EmailingInterval() time.Duration {
	return parseDuration(c.Agent.EmailingInterval, 45*time.Minute)
}

// BackupInterval returns the knowledge base flush period.
func (c *Config) BackupInterval() time.Duration {
	return parseDuration(c.Agent.BackupInterval, 10*time.Minute)
}

// SendDelay returns the fixed delay between email sends.
func (c *Config) SendDelay() time.Duration {
	return parseDuration(c.Agent.SendDelay, 5*time.Second)
}
