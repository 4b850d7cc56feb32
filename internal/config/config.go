// Package config handles configuration loading for the swarm scheduler.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/swarmroute/swarmroute/internal/healer"
	"github.com/swarmroute/swarmroute/internal/swarm"
)

// Config holds all configuration for a swarm run.
type Config struct {
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Healer    HealerConfig    `mapstructure:"healer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	State     StateConfig     `mapstructure:"state"`
}

// SwarmConfig holds scheduling loop settings.
type SwarmConfig struct {
	// MaxConcurrentTasks bounds tasks in flight at once.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// PollInterval is the initial delay between idle scheduling cycles.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MaxIdleInterval caps the idle delay growth.
	MaxIdleInterval time.Duration `mapstructure:"max_idle_interval"`
	// AutoRetryEnabled requeues recoverable failures.
	AutoRetryEnabled bool `mapstructure:"auto_retry_enabled"`
	// MaxRetries is the default per-task retry cap.
	MaxRetries int `mapstructure:"max_retries"`
	// StrictDependencies makes unknown dependency IDs a load-time error.
	StrictDependencies bool `mapstructure:"strict_dependencies"`
}

// HealerConfig holds failure recovery settings.
type HealerConfig struct {
	// CircuitResetAfter is the cooldown before an opened circuit allows a
	// probe. Zero keeps opened circuits open for the rest of the run.
	CircuitResetAfter time.Duration `mapstructure:"circuit_reset_after"`
	// WaitInitial is the first wait-and-retry delay for transient failures.
	WaitInitial time.Duration `mapstructure:"wait_initial"`
	// WaitMax caps the wait-and-retry delay growth.
	WaitMax time.Duration `mapstructure:"wait_max"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	// DebugLog is the debug log file path. Empty disables file logging.
	DebugLog string `mapstructure:"debug_log"`
}

// WorkflowsConfig holds workflow definition settings.
type WorkflowsConfig struct {
	// Dir is the directory holding workflow YAML files.
	Dir string `mapstructure:"dir"`
	// Watch reloads workflow definitions when files change.
	Watch bool `mapstructure:"watch"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `mapstructure:"path"`
}

// Load loads configuration with the following precedence (highest first):
// 1. Environment variables (SWARMROUTE_*)
// 2. Project config (.swarmroute.yaml in current directory or a parent)
// 3. User config (~/.config/swarmroute/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SWARMROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("swarm.max_concurrent_tasks", cfg.Swarm.MaxConcurrentTasks)
	v.Set("swarm.task_timeout", cfg.Swarm.TaskTimeout.String())
	v.Set("swarm.poll_interval", cfg.Swarm.PollInterval.String())
	v.Set("swarm.max_idle_interval", cfg.Swarm.MaxIdleInterval.String())
	v.Set("swarm.auto_retry_enabled", cfg.Swarm.AutoRetryEnabled)
	v.Set("swarm.max_retries", cfg.Swarm.MaxRetries)
	v.Set("swarm.strict_dependencies", cfg.Swarm.StrictDependencies)
	v.Set("healer.circuit_reset_after", cfg.Healer.CircuitResetAfter.String())
	v.Set("healer.wait_initial", cfg.Healer.WaitInitial.String())
	v.Set("healer.wait_max", cfg.Healer.WaitMax.String())
	v.Set("logging.debug_log", cfg.Logging.DebugLog)
	v.Set("workflows.dir", cfg.Workflows.Dir)
	v.Set("workflows.watch", cfg.Workflows.Watch)
	v.Set("state.path", cfg.State.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// SwarmOptions converts the configuration into orchestrator options.
func (c *Config) SwarmOptions() []swarm.Option {
	return []swarm.Option{
		swarm.WithMaxConcurrent(c.Swarm.MaxConcurrentTasks),
		swarm.WithTaskTimeout(c.Swarm.TaskTimeout),
		swarm.WithPollInterval(c.Swarm.PollInterval),
		swarm.WithMaxIdleInterval(c.Swarm.MaxIdleInterval),
		swarm.WithAutoRetry(c.Swarm.AutoRetryEnabled, c.Swarm.MaxRetries),
		swarm.WithStrictDependencies(c.Swarm.StrictDependencies),
	}
}

// HealerOptions converts the configuration into self-healer options.
func (c *Config) HealerOptions() []healer.Option {
	opts := []healer.Option{
		healer.WithWaitBackoff(c.Healer.WaitInitial, c.Healer.WaitMax),
	}
	if c.Healer.CircuitResetAfter > 0 {
		opts = append(opts, healer.WithResetAfter(c.Healer.CircuitResetAfter))
	}
	return opts
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("swarm.max_concurrent_tasks", 3)
	v.SetDefault("swarm.task_timeout", "10m")
	v.SetDefault("swarm.poll_interval", "100ms")
	v.SetDefault("swarm.max_idle_interval", "5s")
	v.SetDefault("swarm.auto_retry_enabled", true)
	v.SetDefault("swarm.max_retries", 3)
	v.SetDefault("swarm.strict_dependencies", false)

	v.SetDefault("healer.circuit_reset_after", "0s")
	v.SetDefault("healer.wait_initial", "500ms")
	v.SetDefault("healer.wait_max", "30s")

	v.SetDefault("logging.debug_log", "")

	v.SetDefault("workflows.dir", "workflows")
	v.SetDefault("workflows.watch", false)

	v.SetDefault("state.path", "")
}

// getUserConfigDir returns the XDG config directory.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "swarmroute")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "swarmroute")
	}
	return filepath.Join(home, ".config", "swarmroute")
}

// findProjectConfig searches for .swarmroute.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".swarmroute.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Swarm: SwarmConfig{
			MaxConcurrentTasks: 3,
			TaskTimeout:        10 * time.Minute,
			PollInterval:       100 * time.Millisecond,
			MaxIdleInterval:    5 * time.Second,
			AutoRetryEnabled:   true,
			MaxRetries:         3,
		},
		Healer: HealerConfig{
			CircuitResetAfter: 0,
			WaitInitial:       500 * time.Millisecond,
			WaitMax:           30 * time.Second,
		},
		Workflows: WorkflowsConfig{
			Dir: "workflows",
		},
	}
}
