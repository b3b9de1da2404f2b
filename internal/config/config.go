package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/italolelis/musicarr/internal/stringutil"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	LogLevel           string `envconfig:"LOG_LEVEL" default:"INFO"`
	RequireCredentials bool   `envconfig:"REQUIRE_CREDENTIALS" default:"false"`
	DiscordWebhookURL  string `envconfig:"DISCORD_WEBHOOK_URL"`

	Qobuz Qobuz

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"musicarr"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:5002"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// Qobuz holds the QOBUZ_* variables. Pointer fields stay nil when the variable is unset.
type Qobuz struct {
	Username *string
	Password *string

	Directory    string `default:"/app/downloads/qobuz"`
	FolderFormat string
	TrackFormat  string
	Quality      int

	AppID       string        `split_words:"true"`
	Secrets     []string
	MaxParallel int           `split_words:"true" default:"2"`
	RateLimit   float64       `split_words:"true" default:"5"`
	Timeout     time.Duration `default:"30s"`
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// Enabled reports whether both credentials are present and non-empty.
func (q Qobuz) Enabled() bool {
	return !stringutil.IsNoneOrEmpty(q.Username) && !stringutil.IsNoneOrEmpty(q.Password)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
