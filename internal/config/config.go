// Package config provides process configuration for the booth commands.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fpang/funny-booth/internal/chat"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	TextModel        string
	ImageModel       string
	SessionTTL       time.Duration
	GenerateTimeout  time.Duration
	MetricsNamespace string
}

// Load reads configuration from environment variables.
// Callers load an optional .env file first (godotenv) so it feeds in here.
func Load() (*Config, error) {
	sessionTTL, err := getEnvDuration("BOOTH_SESSION_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	generateTimeout, err := getEnvDuration("BOOTH_GENERATE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		TextModel:        getEnv("GEMINI_TEXT_MODEL", chat.DefaultTextModel),
		ImageModel:       getEnv("GEMINI_IMAGE_MODEL", chat.DefaultImageModel),
		SessionTTL:       sessionTTL,
		GenerateTimeout:  generateTimeout,
		MetricsNamespace: getEnv("BOOTH_METRICS_NAMESPACE", "FunnyBooth"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.TextModel == "" {
		return fmt.Errorf("GEMINI_TEXT_MODEL cannot be empty")
	}
	if c.ImageModel == "" {
		return fmt.Errorf("GEMINI_IMAGE_MODEL cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("BOOTH_SESSION_TTL must be > 0")
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("BOOTH_GENERATE_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
