package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	Extractor     string `envconfig:"EXTRACTOR" default:"ytdlp"`
	DownloadDir   string `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://127.0.0.1:5000"`

	YtdlpBinaryPath string   `envconfig:"YTDLP_BINARY_PATH" default:"yt-dlp"`
	YtdlpExtraArgs  []string `envconfig:"YTDLP_EXTRA_ARGS"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:5000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
		AllowedOrigins  []string      `split_words:"true" default:"*"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"media_fetcher"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	return &cfg, nil
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
