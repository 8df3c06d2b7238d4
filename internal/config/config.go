package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all vigil configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Daemon loop configuration
	Daemon DaemonConfig `yaml:"daemon"`

	// Filesystem watcher configuration
	Watch WatchConfig `yaml:"watch"`

	// Git watcher configuration
	Git GitConfig `yaml:"git"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Action template configuration
	Actions ActionsConfig `yaml:"actions"`

	// Execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Storage
	Store StoreConfig `yaml:"store"`

	// External service pollers
	Integrations IntegrationsConfig `yaml:"integrations"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DaemonConfig configures the OIDA loop.
type DaemonConfig struct {
	// Root is the directory the daemon observes.
	Root string `yaml:"root"`

	// WorkspaceSize bounds the in-memory ring of recent events.
	WorkspaceSize int `yaml:"workspace_size"`

	// HeartbeatInterval is the cron spec for the self-observation heartbeat.
	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	// SettleWindow is how long a path must be quiet before its events flush.
	SettleWindow string `yaml:"settle_window"`

	// IgnorePatterns are globs excluded from observation, in addition to
	// the built-in defaults (.git/, node_modules/, editor temp files).
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// GitConfig configures the git watcher.
type GitConfig struct {
	// PollInterval is how often git status/log is sampled.
	PollInterval string `yaml:"poll_interval"`

	// LogDepth is how many commits to inspect on each poll.
	LogDepth int `yaml:"log_depth"`
}

// LLMConfig configures the reasoning backend.
type LLMConfig struct {
	// Provider selects the API backend: lmstudio, anthropic, gemini.
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ActionsConfig configures action templates.
type ActionsConfig struct {
	// File is an optional YAML file of extra action templates,
	// merged over the built-in table.
	File string `yaml:"file"`

	// DefaultCooldown applies to templates that do not set their own.
	DefaultCooldown string `yaml:"default_cooldown"`

	// ConfidenceFloor short-circuits evaluation below this value.
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// ExecutionConfig configures the tactile layer.
type ExecutionConfig struct {
	// Agent is the external coding-agent CLI: claude or codex.
	Agent string `yaml:"agent"`

	// AgentModel overrides the agent's default model.
	AgentModel string `yaml:"agent_model"`

	// DefaultTimeout for subprocess commands.
	DefaultTimeout string `yaml:"default_timeout"`

	// AgentTimeout for agent delegations (these run long).
	AgentTimeout string `yaml:"agent_timeout"`

	// WorkingDirectory commands run in. Empty means the observed root.
	WorkingDirectory string `yaml:"working_directory"`

	// AllowedEnvVars are environment variables passed to subprocesses.
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// StoreConfig configures the SQLite audit log.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// IntegrationsConfig configures external API pollers.
type IntegrationsConfig struct {
	GitHub    GitHubIntegration    `yaml:"github"`
	Amplitude AmplitudeIntegration `yaml:"amplitude"`
}

// GitHubIntegration configures the GitHub notification poller.
type GitHubIntegration struct {
	Enabled      bool     `yaml:"enabled"`
	Token        string   `yaml:"token"`
	Repos        []string `yaml:"repos"` // owner/name
	PollInterval string   `yaml:"poll_interval"`
}

// AmplitudeIntegration configures the Amplitude metrics poller.
type AmplitudeIntegration struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	SecretKey    string `yaml:"secret_key"`
	BaseURL      string `yaml:"base_url"`
	EventType    string `yaml:"event_type"`
	PollInterval string `yaml:"poll_interval"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vigil",
		Version: "0.3.0",

		Daemon: DaemonConfig{
			Root:              ".",
			WorkspaceSize:     256,
			HeartbeatInterval: "@every 10m",
		},

		Watch: WatchConfig{
			SettleWindow: "500ms",
		},

		Git: GitConfig{
			PollInterval: "30s",
			LogDepth:     20,
		},

		LLM: LLMConfig{
			Provider: "lmstudio",
			BaseURL:  "http://localhost:1234/v1",
			Model:    "qwen2.5-coder-14b-instruct",
			Timeout:  "120s",
		},

		Actions: ActionsConfig{
			DefaultCooldown: "10m",
			ConfidenceFloor: 0.5,
		},

		Execution: ExecutionConfig{
			Agent:          "claude",
			DefaultTimeout: "30s",
			AgentTimeout:   "300s",
			AllowedEnvVars: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL"},
		},

		Store: StoreConfig{
			DatabasePath: ".vigil/vigil.db",
		},

		Integrations: IntegrationsConfig{
			GitHub: GitHubIntegration{
				Enabled:      false,
				PollInterval: "@every 15m",
			},
			Amplitude: AmplitudeIntegration{
				Enabled:      false,
				BaseURL:      "https://amplitude.com/api/2",
				PollInterval: "@every 30m",
			},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
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

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("LMSTUDIO_URL"); url != "" {
		c.LLM.BaseURL = url
		if c.LLM.Provider == "" {
			c.LLM.Provider = "lmstudio"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.Integrations.GitHub.Token = token
	}
	if key := os.Getenv("AMPLITUDE_API_KEY"); key != "" {
		c.Integrations.Amplitude.APIKey = key
	}
	if key := os.Getenv("AMPLITUDE_SECRET_KEY"); key != "" {
		c.Integrations.Amplitude.SecretKey = key
	}

	if path := os.Getenv("VIGIL_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if root := os.Getenv("VIGIL_ROOT"); root != "" {
		c.Daemon.Root = root
	}
}

// parseDuration returns the parsed duration or the fallback.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetSettleWindow returns the watcher settle window as a duration.
func (c *Config) GetSettleWindow() time.Duration {
	return parseDuration(c.Watch.SettleWindow, 500*time.Millisecond)
}

// GetGitPollInterval returns the git poll interval as a duration.
func (c *Config) GetGitPollInterval() time.Duration {
	return parseDuration(c.Git.PollInterval, 30*time.Second)
}

// GetExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	return parseDuration(c.Execution.DefaultTimeout, 30*time.Second)
}

// GetAgentTimeout returns the agent delegation timeout as a duration.
func (c *Config) GetAgentTimeout() time.Duration {
	return parseDuration(c.Execution.AgentTimeout, 300*time.Second)
}

// GetDefaultCooldown returns the default action cooldown as a duration.
func (c *Config) GetDefaultCooldown() time.Duration {
	return parseDuration(c.Actions.DefaultCooldown, 10*time.Minute)
}

// GetWorkingDirectory returns the directory subprocesses run in.
// An unset working_directory resolves to the observed root, so commands
// act on the tree the daemon watches rather than the process cwd.
func (c *Config) GetWorkingDirectory() string {
	if c.Execution.WorkingDirectory != "" {
		return c.Execution.WorkingDirectory
	}
	if c.Daemon.Root != "" {
		return c.Daemon.Root
	}
	return "."
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"lmstudio", "anthropic", "gemini"}

// ValidAgents lists all supported coding-agent CLIs.
var ValidAgents = []string{"claude", "codex", ""}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	// lmstudio talks to a local server and needs no key; the rest do.
	if c.LLM.Provider != "lmstudio" && c.LLM.APIKey == "" {
		return fmt.Errorf("%s provider requires an API key (set ANTHROPIC_API_KEY or GEMINI_API_KEY)", c.LLM.Provider)
	}

	validAgent := false
	for _, a := range ValidAgents {
		if c.Execution.Agent == a {
			validAgent = true
			break
		}
	}
	if !validAgent {
		return fmt.Errorf("invalid agent: %s (valid: claude, codex)", c.Execution.Agent)
	}

	if c.Daemon.WorkspaceSize <= 0 {
		return fmt.Errorf("daemon workspace_size must be positive")
	}

	if c.Integrations.GitHub.Enabled && c.Integrations.GitHub.Token == "" {
		return fmt.Errorf("github integration enabled but no token configured (set GITHUB_TOKEN)")
	}
	if c.Integrations.Amplitude.Enabled && (c.Integrations.Amplitude.APIKey == "" || c.Integrations.Amplitude.SecretKey == "") {
		return fmt.Errorf("amplitude integration enabled but api/secret key pair missing")
	}

	return nil
}

// DefaultConfigPath returns the default path to vigil.yaml in the workspace.
func DefaultConfigPath(root string) string {
	return filepath.Join(root, ".vigil", "vigil.yaml")
}
