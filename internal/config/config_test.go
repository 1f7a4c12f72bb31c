package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadCreatesSettingsFromTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectchat", "connectchat.yml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	require.Equal(t, path, cfg.SettingsPath)
	require.Equal(t, defaultAddr, cfg.Addr)
	require.Equal(t, DefaultChatModel, cfg.Model)
	require.Empty(t, cfg.API)
	require.Equal(t, 5, cfg.MaxSteps)
	require.True(t, cfg.SendReasoning)
	require.True(t, cfg.Smoothing)
	require.Equal(t, defaultSystem, cfg.System)
	require.InDelta(t, -1.0, cfg.Temperature, 0)
	require.Equal(t, int64(-1), cfg.TopK)
	require.Equal(t, 15*time.Second, cfg.MCPTimeout)
	require.Equal(t, DefaultChatModels(), cfg.ChatModels)
	require.Equal(t, filepath.Join(filepath.Dir(path), "history"), cfg.CachePath)
	require.DirExists(t, cfg.CachePath)

	names := make([]string, 0, len(cfg.APIs))
	for _, api := range cfg.APIs {
		names = append(names, api.Name)
	}
	require.Equal(t, []string{"anthropic", "openai", "google", "openrouter", "ollama"}, names)
	require.Contains(t, cfg.APIs[0].Models, DefaultChatModel)
	require.Equal(t, 1024, cfg.APIs[2].Models["gemini-2.5-flash"].ThinkingBudget)
}

func TestLoadKeepsExistingSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectchat.yml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9999\"\nmax-steps: 0\nsend-reasoning: false\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 5, cfg.MaxSteps)
	require.False(t, cfg.SendReasoning)
	require.True(t, cfg.Smoothing)
	require.Empty(t, cfg.APIs)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectchat.yml")
	t.Setenv("CONNECTCHAT_MAX_STEPS", "9")
	t.Setenv("CONNECTCHAT_MODEL", "gpt-4.1")
	t.Setenv("CONNECTCHAT_MCP_DISABLE", "a,b")
	t.Setenv("CONNECTCHAT_NO_CACHE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.MaxSteps)
	require.Equal(t, "gpt-4.1", cfg.Model)
	require.Equal(t, []string{"a", "b"}, cfg.MCPDisable)
	require.True(t, cfg.NoCache)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectchat.yml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [broken"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "yaml")
}

func TestAPIsKeepOrder(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("apis:\n  zeta:\n    base-url: z\n  alpha:\n    base-url: a\n"), &cfg))
	require.Len(t, cfg.APIs, 2)
	require.Equal(t, "zeta", cfg.APIs[0].Name)
	require.Equal(t, "alpha", cfg.APIs[1].Name)
	require.Equal(t, "a", cfg.APIs[1].BaseURL)
}

func TestChatModel(t *testing.T) {
	cfg := Default()
	m, ok := cfg.ChatModel("gpt-4.1")
	require.True(t, ok)
	require.Equal(t, "GPT-4.1", m.Name)

	_, ok = cfg.ChatModel("nope")
	require.False(t, ok)
}
