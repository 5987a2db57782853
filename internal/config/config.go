package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation or parse failure from Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config captures runtime configuration sourced from environment variables
// and an optional defense file.
type Config struct {
	Environment  string `validate:"required"`
	HTTPPort     string `validate:"required,numeric"`
	DatabasePath string `validate:"required"`
	LogDir       string `validate:"required"`
	Debug        bool
	Security     SecurityConfig
}

// SecurityConfig configures the request defense layer.
type SecurityConfig struct {
	ThreatMode            string                   `yaml:"threat_mode" validate:"oneof=disabled monitor block"`
	MaxBodyBytes          int64                    `yaml:"max_body_bytes" validate:"gte=0"`
	FailedAuthThreshold   int                      `yaml:"failed_auth_threshold" validate:"gte=1"`
	SuspiciousIPThreshold int                      `yaml:"suspicious_ip_threshold" validate:"gte=1"`
	MaxRecords            int                      `yaml:"max_records" validate:"gte=1"`
	RecordTTL             time.Duration            `yaml:"record_ttl" validate:"gte=0"`
	MaxReasons            int                      `yaml:"max_reasons" validate:"gte=1"`
	SweepInterval         time.Duration            `yaml:"sweep_interval" validate:"gte=1s"`
	LegacyHeaders         bool                     `yaml:"legacy_headers"`
	SinkBuffer            int                      `yaml:"sink_buffer" validate:"gte=1"`
	EventRetention        time.Duration            `yaml:"event_retention" validate:"gte=0"`
	NotifyURL             string                   `yaml:"notify_url"`
	NotifyEvery           time.Duration            `yaml:"notify_every" validate:"gte=0"`
	JWTSecret             string                   `yaml:"-"`
	Profiles              map[string]ProfileConfig `yaml:"profiles" validate:"omitempty,dive"`
	Routes                []RouteConfig            `yaml:"routes" validate:"omitempty,dive"`
}

// ProfileConfig overrides the window and budget of a named limiter profile.
type ProfileConfig struct {
	Window time.Duration `yaml:"window" validate:"gte=1s"`
	Max    int           `yaml:"max" validate:"gte=1"`
}

// RouteConfig binds a path prefix to a profile name.
type RouteConfig struct {
	Prefix  string `yaml:"prefix" validate:"required,startswith=/"`
	Profile string `yaml:"profile" validate:"required"`
}

// DefaultRoutes is the binding used when the defense file names none.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Prefix: "/api/v1/auth", Profile: "strict"},
		{Prefix: "/api/v1/bookings", Profile: "standard"},
		{Prefix: "/api/v1/public", Profile: "loose"},
		{Prefix: "/api/v1/partners", Profile: "api"},
	}
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("WAYFARER_ENV", "development"),
		HTTPPort:     getEnv("WAYFARER_HTTP_PORT", "8080"),
		DatabasePath: getEnv("WAYFARER_DB_PATH", filepath.Join("data", "wayfarer.db")),
		LogDir:       getEnv("WAYFARER_LOG_DIR", filepath.Join("data", "logs")),
		Security: SecurityConfig{
			ThreatMode:            getEnv("WAYFARER_THREAT_MODE", "monitor"),
			MaxBodyBytes:          64 << 10,
			FailedAuthThreshold:   5,
			SuspiciousIPThreshold: 10,
			MaxRecords:            10000,
			RecordTTL:             24 * time.Hour,
			MaxReasons:            20,
			SweepInterval:         time.Minute,
			SinkBuffer:            1024,
			EventRetention:        30 * 24 * time.Hour,
			NotifyURL:             getEnv("WAYFARER_NOTIFY_URL", ""),
			NotifyEvery:           time.Minute,
			JWTSecret:             getEnv("WAYFARER_JWT_SECRET", ""),
		},
	}

	var err error
	if cfg.Debug, err = getEnvBool("WAYFARER_DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.Security.LegacyHeaders, err = getEnvBool("WAYFARER_LEGACY_RATELIMIT_HEADERS", false); err != nil {
		return Config{}, err
	}
	if cfg.Security.FailedAuthThreshold, err = getEnvInt("WAYFARER_FAILED_AUTH_THRESHOLD", cfg.Security.FailedAuthThreshold); err != nil {
		return Config{}, err
	}
	if cfg.Security.SuspiciousIPThreshold, err = getEnvInt("WAYFARER_SUSPICIOUS_IP_THRESHOLD", cfg.Security.SuspiciousIPThreshold); err != nil {
		return Config{}, err
	}

	if path := os.Getenv("WAYFARER_DEFENSE_FILE"); path != "" {
		if err := loadDefenseFile(path, &cfg.Security); err != nil {
			return Config{}, err
		}
	}
	if len(cfg.Security.Routes) == 0 {
		cfg.Security.Routes = DefaultRoutes()
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure log directory: %w", err)
	}

	return cfg, nil
}

// loadDefenseFile overlays the YAML file at path onto sec. Keys absent from
// the file keep their current values.
func loadDefenseFile(path string, sec *SecurityConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read defense file: %w", err)
	}
	if err := yaml.Unmarshal(raw, sec); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints on cfg.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return b, nil
}
