package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("LMSTUDIO_URL sets base URL and defaults provider", func(t *testing.T) {
		t.Setenv("LMSTUDIO_URL", "http://workstation:1234/v1")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		require.Equal(t, "http://workstation:1234/v1", cfg.LLM.BaseURL)
		require.Equal(t, "lmstudio", cfg.LLM.Provider)
	})

	t.Run("LMSTUDIO_URL does not clobber explicit provider", func(t *testing.T) {
		t.Setenv("LMSTUDIO_URL", "http://workstation:1234/v1")

		cfg := &Config{}
		cfg.LLM.Provider = "anthropic"
		cfg.applyEnvOverrides()

		require.Equal(t, "anthropic", cfg.LLM.Provider)
	})

	t.Run("ANTHROPIC_API_KEY applies only to anthropic provider", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-env")

		cfg := &Config{}
		cfg.LLM.Provider = "lmstudio"
		cfg.applyEnvOverrides()
		require.Empty(t, cfg.LLM.APIKey)

		cfg.LLM.Provider = "anthropic"
		cfg.applyEnvOverrides()
		require.Equal(t, "sk-env", cfg.LLM.APIKey)
	})

	t.Run("GEMINI_API_KEY applies only to gemini provider", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gm-env")

		cfg := &Config{}
		cfg.LLM.Provider = "gemini"
		cfg.applyEnvOverrides()

		require.Equal(t, "gm-env", cfg.LLM.APIKey)
	})
}

func TestEnvOverrides_IntegrationsAndPaths(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	t.Setenv("AMPLITUDE_API_KEY", "amp-key")
	t.Setenv("AMPLITUDE_SECRET_KEY", "amp-secret")
	t.Setenv("VIGIL_DB", "/tmp/env.db")
	t.Setenv("VIGIL_ROOT", "/srv/project")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	require.Equal(t, "ghp_env", cfg.Integrations.GitHub.Token)
	require.Equal(t, "amp-key", cfg.Integrations.Amplitude.APIKey)
	require.Equal(t, "amp-secret", cfg.Integrations.Amplitude.SecretKey)
	require.Equal(t, "/tmp/env.db", cfg.Store.DatabasePath)
	require.Equal(t, "/srv/project", cfg.Daemon.Root)
}
