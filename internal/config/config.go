package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")

type Config struct {
	Addr      string        `env:"STUDIO_ADDR" envDefault:"127.0.0.1:8080"`
	DBPath    string        `env:"STUDIO_DB_PATH"`
	JWTSecret string        `env:"STUDIO_JWT_SECRET" envDefault:"dev-change-me"`
	AccessTTL time.Duration `env:"STUDIO_ACCESS_TTL" envDefault:"24h"`

	GeminiAPIKey        string `env:"GEMINI_API_KEY"`
	GeminiBaseURL       string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiOpenAIBaseURL string `env:"GEMINI_OPENAI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai"`

	VideoPollInterval time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"10s"`
	// 0 waits for the video job indefinitely.
	VideoPollTimeout time.Duration `env:"VIDEO_POLL_TIMEOUT" envDefault:"0s"`
	EditVideoDelay   time.Duration `env:"EDIT_VIDEO_DELAY" envDefault:"1s"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	CORSOrigins []string `env:"STUDIO_CORS_ORIGINS" envSeparator:","`

	Log LogConfig
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

// Load reads the environment, after loading envFile when it exists.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.VideoPollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be positive, got %s", c.VideoPollInterval)
	}
	if c.VideoPollTimeout < 0 {
		return fmt.Errorf("VIDEO_POLL_TIMEOUT must not be negative, got %s", c.VideoPollTimeout)
	}
	return nil
}
