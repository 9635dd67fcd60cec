package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the PanelSim server.
type Config struct {
	Port      int
	Version   string
	GenAI     GenAIConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

type GenAIConfig struct {
	// APIKey authenticates against the Gemini API. Empty disables
	// generation; runs fail fast instead of hanging.
	APIKey string
	// OrganizerModel handles casting, pitch, research, and analysis;
	// WorkerModel handles the high-volume per-persona calls.
	OrganizerModel string
	WorkerModel    string
	// MinInterval is the global spacing between outbound API calls.
	MinInterval time.Duration
	// Concurrency bounds simultaneous persona pipelines.
	Concurrency int
}

type StorageConfig struct {
	// Path is the SQLite database file. Empty keeps history in memory.
	Path string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PANELSIM_PORT", 8080),
		Version: envStr("PANELSIM_VERSION", "0.2.0"),
		GenAI: GenAIConfig{
			APIKey:         envStr("GEMINI_API_KEY", ""),
			OrganizerModel: envStr("PANELSIM_ORGANIZER_MODEL", "gemini-2.5-flash"),
			WorkerModel:    envStr("PANELSIM_WORKER_MODEL", "gemini-2.0-flash"),
			MinInterval:    envDuration("PANELSIM_MIN_INTERVAL", 1500*time.Millisecond),
			Concurrency:    envInt("PANELSIM_CONCURRENCY", 3),
		},
		Storage: StorageConfig{
			Path: envStr("PANELSIM_DB_PATH", "panelsim.db"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "panelsim"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
