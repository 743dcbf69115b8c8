package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".rainbow"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("RAINBOW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("RAINBOW_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
// A corrupt config file is a startup error, never silently ignored.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s is corrupt: %w", path, err)
		}
	}

	if err := envconfig.Process("RAINBOW", cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero values that must never be zero at runtime.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Assistant.Name == "" {
		cfg.Assistant.Name = def.Assistant.Name
	}
	if cfg.Assistant.DefaultLanguage == "" {
		cfg.Assistant.DefaultLanguage = def.Assistant.DefaultLanguage
	}
	if cfg.Conversation.SummarizationThreshold <= 0 {
		cfg.Conversation.SummarizationThreshold = def.Conversation.SummarizationThreshold
	}
	if cfg.Conversation.SummaryKeepTail <= 0 {
		cfg.Conversation.SummaryKeepTail = def.Conversation.SummaryKeepTail
	}
	if cfg.Knowledge.FailureThreshold <= 0 {
		cfg.Knowledge.FailureThreshold = def.Knowledge.FailureThreshold
	}
	if cfg.Knowledge.AlertThrottle <= 0 {
		cfg.Knowledge.AlertThrottle = def.Knowledge.AlertThrottle
	}
	if cfg.Router.RepeatEscalateAfter <= 0 {
		cfg.Router.RepeatEscalateAfter = def.Router.RepeatEscalateAfter
	}
	if cfg.Router.NegativeEscalateAfter <= 0 {
		cfg.Router.NegativeEscalateAfter = def.Router.NegativeEscalateAfter
	}
	if cfg.Router.SentimentCooldown <= 0 {
		cfg.Router.SentimentCooldown = def.Router.SentimentCooldown
	}
	if cfg.Router.RequestDeadline <= 0 {
		cfg.Router.RequestDeadline = def.Router.RequestDeadline
	}
	if cfg.Router.ProviderCallDeadline <= 0 {
		cfg.Router.ProviderCallDeadline = def.Router.ProviderCallDeadline
	}
	if cfg.Router.ClassifyContextMessages <= 0 {
		cfg.Router.ClassifyContextMessages = def.Router.ClassifyContextMessages
	}
	if cfg.Workflow.IdleTimeout <= 0 {
		cfg.Workflow.IdleTimeout = def.Workflow.IdleTimeout
	}
	if cfg.Scheduler.TickInterval < 10*time.Second || cfg.Scheduler.TickInterval > time.Minute {
		cfg.Scheduler.TickInterval = def.Scheduler.TickInterval
	}
	if cfg.Scheduler.MaxRetries <= 0 {
		cfg.Scheduler.MaxRetries = def.Scheduler.MaxRetries
	}
	if cfg.Scheduler.CheckoutHour <= 0 || cfg.Scheduler.CheckoutHour > 23 {
		cfg.Scheduler.CheckoutHour = def.Scheduler.CheckoutHour
	}
	if cfg.Gateway.Addr == "" {
		cfg.Gateway.Addr = def.Gateway.Addr
	}
	if cfg.Paths.Workspace == "" {
		home, _ := os.UserHomeDir()
		cfg.Paths.Workspace = filepath.Join(home, ConfigDir)
	}
	if cfg.Paths.DatabasePath == "" {
		cfg.Paths.DatabasePath = filepath.Join(cfg.Paths.Workspace, "rainbow.db")
	}
	if cfg.Paths.ConfigDir == "" {
		cfg.Paths.ConfigDir = filepath.Join(cfg.Paths.Workspace, "config")
	}
	if cfg.Paths.KnowledgeDir == "" {
		cfg.Paths.KnowledgeDir = filepath.Join(cfg.Paths.Workspace, "knowledge")
	}
}

// Save writes the configuration to the default path atomically.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}
