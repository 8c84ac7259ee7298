package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by BACKEND.
const (
	BackendHosted    = "hosted"
	BackendNodeGraph = "nodegraph"
)

// Database drivers accepted by DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MaxInFlightCap bounds concurrent jobs against any single backend.
const MaxInFlightCap = 3

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseDriver string
	DatabaseURL    string
	StoragePath    string
	StorageBaseURL string

	Backend       string
	FalKey        string
	FalBaseURL    string
	FalTextModel  string
	FalRefModel   string
	FalVideoModel string

	NodeGraphHost     string
	NodeGraphSessions int
	NodeGraphManifest string

	AngleCatalogPath  string
	HostedMaxInFlight int
	JobTimeout        time.Duration
	FanoutInterval    time.Duration
	FetchTimeout      time.Duration
	FetchMaxBytes     int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8000"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    getEnv("DATABASE_URL", "cinema_studio.db"),
		StoragePath:    getEnv("STORAGE_PATH", "./media"),
		StorageBaseURL: os.Getenv("STORAGE_BASE_URL"),

		Backend:       strings.ToLower(getEnv("BACKEND", BackendHosted)),
		FalKey:        os.Getenv("FAL_KEY"),
		FalBaseURL:    getEnv("FAL_BASE_URL", "https://fal.run"),
		FalTextModel:  getEnv("FAL_TEXT_MODEL", "fal-ai/flux/dev"),
		FalRefModel:   getEnv("FAL_REFERENCE_MODEL", "fal-ai/flux-pulid"),
		FalVideoModel: getEnv("FAL_VIDEO_MODEL", "fal-ai/kling-video/v1.6/standard/image-to-video"),

		NodeGraphHost:     getEnv("NODEGRAPH_HOST", "127.0.0.1:8188"),
		NodeGraphSessions: getEnvInt("NODEGRAPH_SESSIONS", 1),
		NodeGraphManifest: os.Getenv("NODEGRAPH_TEMPLATE_MANIFEST"),

		AngleCatalogPath:  os.Getenv("ANGLE_CATALOG_PATH"),
		HostedMaxInFlight: getEnvInt("HOSTED_MAX_IN_FLIGHT", MaxInFlightCap),
		JobTimeout:        time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 300)),
		FanoutInterval:    time.Millisecond * time.Duration(getEnvInt("FANOUT_INTERVAL_MS", 0)),
		FetchTimeout:      time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)),
		FetchMaxBytes:     int64(getEnvInt("FETCH_MAX_BYTES", 32<<20)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = "http://localhost:" + cfg.Port
	}
	cfg.StorageBaseURL = strings.TrimRight(cfg.StorageBaseURL, "/")

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("DATABASE_DRIVER %q is not supported", cfg.DatabaseDriver)
	}

	switch cfg.Backend {
	case BackendHosted:
		if cfg.FalKey == "" {
			return nil, fmt.Errorf("FAL_KEY is required for the hosted backend")
		}
	case BackendNodeGraph:
		if cfg.NodeGraphSessions < 1 {
			cfg.NodeGraphSessions = 1
		}
	default:
		return nil, fmt.Errorf("BACKEND %q is not supported", cfg.Backend)
	}

	if cfg.HostedMaxInFlight < 1 {
		cfg.HostedMaxInFlight = 1
	}
	if cfg.HostedMaxInFlight > MaxInFlightCap {
		cfg.HostedMaxInFlight = MaxInFlightCap
	}
	if cfg.JobTimeout <= 0 {
		return nil, fmt.Errorf("JOB_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// GeneratedDir is where backend artifacts are written.
func (c *Config) GeneratedDir() string {
	return strings.TrimRight(c.StoragePath, "/") + "/generated"
}

// UploadsDir is where user uploads and fetched references are written.
func (c *Config) UploadsDir() string {
	return strings.TrimRight(c.StoragePath, "/") + "/uploads"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
