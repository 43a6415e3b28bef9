// Package config handles Weaver configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/weaver/config.yaml, /etc/weaver/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "weaver", "config.yaml"))
	}

	paths = append(paths, "/etc/weaver/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Weaver configuration.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Story     StoryConfig     `yaml:"story"`
	Attention AttentionConfig `yaml:"attention"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text or json
}

// DiscordConfig defines the Discord connection settings.
type DiscordConfig struct {
	// Token is the bot token. Supports $ENV_VAR expansion.
	Token string `yaml:"token"`
	// CommandPrefix precedes every command (default "!").
	CommandPrefix string `yaml:"command_prefix"`
}

// GeminiConfig defines the generative backend settings.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Supports $ENV_VAR expansion.
	APIKey string `yaml:"api_key"`
	// Model is the generation model identifier (default gemini-2.0-flash).
	Model string `yaml:"model"`
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string `yaml:"base_url"`
}

// StoryConfig tunes the story engine.
type StoryConfig struct {
	// UserTurnEvery forces a user-written continuation every Nth round
	// (default 3).
	UserTurnEvery int `yaml:"user_turn_every"`
}

// AttentionConfig tunes the background praise and idle jobs.
type AttentionConfig struct {
	// PraiseMinSeconds and PraiseMaxSeconds bound the praise interval.
	// One interval is drawn per job start.
	PraiseMinSeconds int `yaml:"praise_min_seconds"`
	PraiseMaxSeconds int `yaml:"praise_max_seconds"`
	// IdleCheckSeconds is how often the idle job wakes up.
	IdleCheckSeconds int `yaml:"idle_check_seconds"`
	// IdleAfterSeconds is how long a channel must be quiet before an
	// idle nudge fires.
	IdleAfterSeconds int `yaml:"idle_after_seconds"`
}

// Configured reports whether a Discord token is present.
func (c DiscordConfig) Configured() bool { return c.Token != "" }

// Configured reports whether a Gemini API key is present.
func (c GeminiConfig) Configured() bool { return c.APIKey != "" }

// PraiseRange returns the praise interval bounds as durations.
func (c AttentionConfig) PraiseRange() (min, max time.Duration) {
	return time.Duration(c.PraiseMinSeconds) * time.Second,
		time.Duration(c.PraiseMaxSeconds) * time.Second
}

// IdleCheck returns the idle job tick interval.
func (c AttentionConfig) IdleCheck() time.Duration {
	return time.Duration(c.IdleCheckSeconds) * time.Second
}

// IdleAfter returns the quiet-time threshold for idle nudges.
func (c AttentionConfig) IdleAfter() time.Duration {
	return time.Duration(c.IdleAfterSeconds) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			CommandPrefix: "!",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Story: StoryConfig{
			UserTurnEvery: 3,
		},
		Attention: AttentionConfig{
			PraiseMinSeconds: 600,
			PraiseMaxSeconds: 1800,
			IdleCheckSeconds: 300,
			IdleAfterSeconds: 3600,
		},
	}
}

// applyDefaults fills zero-valued fields that Unmarshal may have cleared
// when the user supplied a partial section.
func (c *Config) applyDefaults() {
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "!"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Story.UserTurnEvery <= 0 {
		c.Story.UserTurnEvery = 3
	}
	def := Default().Attention
	if c.Attention.PraiseMinSeconds <= 0 {
		c.Attention.PraiseMinSeconds = def.PraiseMinSeconds
	}
	if c.Attention.PraiseMaxSeconds <= 0 {
		c.Attention.PraiseMaxSeconds = def.PraiseMaxSeconds
	}
	if c.Attention.IdleCheckSeconds <= 0 {
		c.Attention.IdleCheckSeconds = def.IdleCheckSeconds
	}
	if c.Attention.IdleAfterSeconds <= 0 {
		c.Attention.IdleAfterSeconds = def.IdleAfterSeconds
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Attention.PraiseMaxSeconds < c.Attention.PraiseMinSeconds {
		return fmt.Errorf("attention.praise_max_seconds (%d) is less than praise_min_seconds (%d)",
			c.Attention.PraiseMaxSeconds, c.Attention.PraiseMinSeconds)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}
