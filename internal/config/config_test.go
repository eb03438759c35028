package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"PROSPECTOR_DATA_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 5, cfg.Agent.MaxEmailsPerCycle)
	assert.Equal(t, 50, cfg.Agent.MaxEmailsPerDay)
	assert.Equal(t, 30*time.Minute, cfg.ProspectingInterval())
	assert.Equal(t, 45*time.Minute, cfg.EmailingInterval())
	assert.Equal(t, 10*time.Minute, cfg.BackupInterval())
	assert.Equal(t, 5*time.Second, cfg.SendDelay())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Agent, cfg.Agent)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
llm:
  provider: openai
  model: gpt-4o-mini
agent:
  prospecting_interval: 5m
  max_emails_per_day: 12
smtp:
  host: smtp.example.com
  from: agent@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 5*time.Minute, cfg.ProspectingInterval())
	assert.Equal(t, 12, cfg.Agent.MaxEmailsPerDay)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	// Untouched values keep their defaults.
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 5, cfg.Agent.MaxEmailsPerCycle)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not: closed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_FROM", "me@example.com")

	dataDir := t.TempDir()
	t.Setenv("PROSPECTOR_DATA_DIR", dataDir)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gm-key", cfg.LLM.APIKey)
	assert.Equal(t, "mail.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "knowledge-base.json"), cfg.KnowledgeBasePath())
	assert.Equal(t, filepath.Join(dataDir, "status.json"), cfg.StatusFilePath())
	assert.Equal(t, filepath.Join(dataDir, "agent.pid"), cfg.PIDFilePath())
}

func TestLoad_ProviderKeyPriority(t *testing.T) {
	clearEnv(t)
	// Gemini wins when several keys are present.
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("GEMINI_API_KEY", "gm-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gm-key", cfg.LLM.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.SMTP.Host = "smtp.example.com"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", loaded.SMTP.Host)
}

func TestParseDuration_InvalidFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.SendDelay = "not-a-duration"
	assert.Equal(t, 5*time.Second, cfg.SendDelay())
	cfg.Agent.SendDelay = "-3s"
	assert.Equal(t, 5*time.Second, cfg.SendDelay())
}
