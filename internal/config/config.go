package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/weeks"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "ACTIVEROLE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "activerole.db"
	defaultLogLevel          = "info"
	defaultTimezone          = "UTC"
	defaultThreshold         = 10
	defaultTokenTTLMinutes   = 60
	defaultCallTimeout       = 10 * time.Second
	defaultWorkers           = 4
	defaultRequestsPerSecond = 5.0
	defaultQueueSize         = 1024
)

// AppConfig captures runtime configuration for the bot and its admin API.
type AppConfig struct {
	DiscordToken         string
	DiscordApplicationID string
	DatabasePath         string
	LogLevel             string
	HTTPAddress          string
	DefaultTimezone      string
	DefaultThreshold     int
	AdminUserID          string
	SigningSecret        string
	TokenTTL             time.Duration
	CallTimeout          time.Duration
	Workers              int
	RequestsPerSecond    float64
	SummaryEnabled       bool
	EventQueueSize       int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("activity.default_timezone", defaultTimezone)
	configViper.SetDefault("activity.default_threshold", defaultThreshold)
	configViper.SetDefault("admin.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("evaluation.call_timeout", defaultCallTimeout)
	configViper.SetDefault("evaluation.workers", defaultWorkers)
	configViper.SetDefault("evaluation.requests_per_second", defaultRequestsPerSecond)
	configViper.SetDefault("evaluation.summary_enabled", true)
	configViper.SetDefault("events.queue_size", defaultQueueSize)
}

// Load parses runtime configuration from viper. The Discord token is only required by commands
// that connect to the gateway, see RequireDiscord.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DiscordToken:         configViper.GetString("discord.token"),
		DiscordApplicationID: configViper.GetString("discord.application_id"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		HTTPAddress:          configViper.GetString("http.address"),
		DefaultTimezone:      strings.TrimSpace(configViper.GetString("activity.default_timezone")),
		DefaultThreshold:     configViper.GetInt("activity.default_threshold"),
		AdminUserID:          strings.TrimSpace(configViper.GetString("admin.user_id")),
		SigningSecret:        configViper.GetString("admin.signing_secret"),
		TokenTTL:             time.Duration(configViper.GetInt("admin.token_ttl_minutes")) * time.Minute,
		CallTimeout:          configViper.GetDuration("evaluation.call_timeout"),
		Workers:              configViper.GetInt("evaluation.workers"),
		RequestsPerSecond:    configViper.GetFloat64("evaluation.requests_per_second"),
		SummaryEnabled:       configViper.GetBool("evaluation.summary_enabled"),
		EventQueueSize:       configViper.GetInt("events.queue_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// AdminAPIEnabled reports whether the admin HTTP API can authenticate callers.
func (c AppConfig) AdminAPIEnabled() bool {
	return c.AdminUserID != "" && strings.TrimSpace(c.SigningSecret) != ""
}

// RequireDiscord checks the settings needed to connect to Discord.
func (c AppConfig) RequireDiscord() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return fmt.Errorf("discord.token is required")
	}
	return nil
}

// RequireApplicationID checks the settings needed to register slash commands.
func (c AppConfig) RequireApplicationID() error {
	if err := c.RequireDiscord(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DiscordApplicationID) == "" {
		return fmt.Errorf("discord.application_id is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := weeks.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("activity.default_timezone: %w", err)
	}
	if c.DefaultThreshold < 1 {
		return fmt.Errorf("activity.default_threshold must be at least 1")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("admin.token_ttl_minutes must be positive")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("evaluation.call_timeout must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("evaluation.workers must be at least 1")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("evaluation.requests_per_second must not be negative")
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("events.queue_size must be at least 1")
	}
	if c.AdminUserID != "" && strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required when admin.user_id is set")
	}
	return nil
}
