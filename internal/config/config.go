package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the tutoring service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	GeneratorMode    string
	GeminiAPIKey     string
	GeminiModel      string
	GeneratorHTTPURL string
	ModelTimeout     time.Duration

	ContextTurns int

	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	UploadTimeout   time.Duration
	MaxAudioBytes   int64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "lingotutor"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		GeneratorMode:    envOrDefault("GENERATOR_MODE", "auto"),
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:      envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeneratorHTTPURL: stringsTrimSpace("GENERATOR_HTTP_URL"),
		ModelTimeout:     30 * time.Second,
		ContextTurns:     5,
		S3Endpoint:       stringsTrimSpace("S3_ENDPOINT"),
		S3Region:         envOrDefault("S3_REGION", "us-east-1"),
		S3Bucket:         envOrDefault("S3_BUCKET", "lingotutor-audio"),
		S3AccessKey:      stringsTrimSpace("S3_ACCESS_KEY"),
		S3SecretKey:      stringsTrimSpace("S3_SECRET_KEY"),
		S3PublicBaseURL:  stringsTrimSpace("S3_PUBLIC_BASE_URL"),
		UploadTimeout:    20 * time.Second,
		MaxAudioBytes:    10 << 20,
		ShutdownTimeout:  15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelTimeout, err = durationFromEnv("MODEL_TIMEOUT", cfg.ModelTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadTimeout, err = durationFromEnv("UPLOAD_TIMEOUT", cfg.UploadTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextTurns, err = intFromEnv("CONTEXT_TURNS", cfg.ContextTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	maxAudio, err := intFromEnv("MAX_AUDIO_BYTES", int(cfg.MaxAudioBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAudioBytes = int64(maxAudio)

	if cfg.ContextTurns <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_TURNS must be positive")
	}
	if cfg.ModelTimeout < time.Second {
		return Config{}, fmt.Errorf("MODEL_TIMEOUT must be at least 1s")
	}
	if cfg.UploadTimeout < time.Second {
		return Config{}, fmt.Errorf("UPLOAD_TIMEOUT must be at least 1s")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_AUDIO_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
