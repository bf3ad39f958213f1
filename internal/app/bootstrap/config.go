package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the portal access
// service. It merges file defaults and environment overrides to support
// both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	BcryptCost int

	TokenTTL           time.Duration
	SessionTTL         time.Duration
	SessionAbsoluteTTL time.Duration
	LockoutDuration    time.Duration
	FailedThreshold    int

	MonitorInterval  time.Duration
	WarningThreshold time.Duration
	ActivityWindow   time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	MaxDBConns int32
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Session struct {
		TTLMinutes             int `yaml:"ttl_minutes"`
		AbsoluteTTLHours       int `yaml:"absolute_ttl_hours"`
		MonitorIntervalSeconds int `yaml:"monitor_interval_seconds"`
		WarningSeconds         int `yaml:"warning_seconds"`
		ActivityWindowSeconds  int `yaml:"activity_window_seconds"`
	} `yaml:"session"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:         "Portal-Access-Service",
		HTTPPort:          8080,
		GRPCPort:          9090,
		JWTKeyID:          "portal-access-key-1",
		AllowEphemeralJWT: true,
		BcryptCost:        12,
		TokenTTL:          time.Hour,
		// Portal sessions are short: idle healthcare workstations must
		// not stay signed in.
		SessionTTL:         30 * time.Minute,
		SessionAbsoluteTTL: 12 * time.Hour,
		LockoutDuration:    30 * time.Minute,
		FailedThreshold:    5,
		MonitorInterval:    15 * time.Second,
		WarningThreshold:   2 * time.Minute,
		ActivityWindow:     5 * time.Minute,
		MaxDBConns:         20,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Session.TTLMinutes > 0 {
			cfg.SessionTTL = time.Duration(f.Session.TTLMinutes) * time.Minute
		}
		if f.Session.AbsoluteTTLHours > 0 {
			cfg.SessionAbsoluteTTL = time.Duration(f.Session.AbsoluteTTLHours) * time.Hour
		}
		if f.Session.MonitorIntervalSeconds > 0 {
			cfg.MonitorInterval = time.Duration(f.Session.MonitorIntervalSeconds) * time.Second
		}
		if f.Session.WarningSeconds > 0 {
			cfg.WarningThreshold = time.Duration(f.Session.WarningSeconds) * time.Second
		}
		if f.Session.ActivityWindowSeconds > 0 {
			cfg.ActivityWindow = time.Duration(f.Session.ActivityWindowSeconds) * time.Second
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.BootstrapAdminEmail = envOrDefault("BOOTSTRAP_ADMIN_EMAIL", cfg.BootstrapAdminEmail)
	cfg.BootstrapAdminPassword = envOrDefault("BOOTSTRAP_ADMIN_PASSWORD", cfg.BootstrapAdminPassword)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_MINUTES", int(cfg.TokenTTL.Minutes()))) * time.Minute
	cfg.SessionTTL = time.Duration(envInt("SESSION_EXPIRY_MINUTES", int(cfg.SessionTTL.Minutes()))) * time.Minute
	cfg.SessionAbsoluteTTL = time.Duration(envInt("SESSION_ABSOLUTE_HOURS", int(cfg.SessionAbsoluteTTL.Hours()))) * time.Hour
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.MonitorInterval = time.Duration(envInt("MONITOR_INTERVAL_SECONDS", int(cfg.MonitorInterval.Seconds()))) * time.Second
	cfg.WarningThreshold = time.Duration(envInt("SESSION_WARNING_SECONDS", int(cfg.WarningThreshold.Seconds()))) * time.Second
	cfg.ActivityWindow = time.Duration(envInt("ACTIVITY_WINDOW_SECONDS", int(cfg.ActivityWindow.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
