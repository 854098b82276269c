package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigEnvKey names the env var pointing at an optional YAML config file.
const ConfigEnvKey = "INVTRACK_CONFIG"

// Config contains all runtime configuration.
//
// Values come from defaults, then an optional YAML file, then INVTRACK_*
// environment variables. The environment always wins.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`
	DBSchema    string `yaml:"db_schema"`
	// DBAutoMigrate applies the schema on startup.
	DBAutoMigrate bool `yaml:"db_auto_migrate"`

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool `yaml:"readiness_require_db"`

	// Security policy:
	// If true, INVTRACK_TOKEN_HMAC_KEY must be set (>= 32 bytes) and share
	// tokens are hashed with HMAC-SHA256. The key itself is env-only.
	RequireTokenHMAC bool `yaml:"require_token_hmac"`
	// AdminKeyHash is the Argon2id hash of the operator key. Empty disables admin routes.
	AdminKeyHash string `yaml:"admin_key_hash"`

	ArtifactDir  string        `yaml:"artifact_dir"`
	FontPath     string        `yaml:"font_path"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
	SuffixSource string        `yaml:"suffix_source"`

	ShareMaxTTL time.Duration `yaml:"share_max_ttl"`
	TokenBytes  int           `yaml:"token_bytes"`

	TrustProxy        bool          `yaml:"trust_proxy"`
	MaxBodyBytes      int           `yaml:"max_body_bytes"`
	ResolveFailMax    int           `yaml:"resolve_fail_max"`
	ResolveFailWindow time.Duration `yaml:"resolve_fail_window"`
	CodeCacheMaxAge   time.Duration `yaml:"code_cache_max_age"`

	FeedAllowedOrigins []string `yaml:"feed_allowed_origins"`
	FeedOriginRequired bool     `yaml:"feed_origin_required"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns: 10,
		DBSchema:   "invtrack",

		ArtifactDir:  "./data/artifacts",
		StoreTimeout: 5 * time.Second,
		SuffixSource: "counter",

		ShareMaxTTL: 90 * 24 * time.Hour,
		TokenBytes:  48,

		MaxBodyBytes:      1 << 20,
		ResolveFailMax:    30,
		ResolveFailWindow: 5 * time.Minute,
		CodeCacheMaxAge:   5 * time.Minute,

		FeedAllowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
	}
}

// LoadConfig builds Config from defaults, the YAML file at path (or
// INVTRACK_CONFIG when path is empty), and the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	env := newEnvOverlay()

	if path == "" {
		env.str(ConfigEnvKey, &path)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env *envOverlay) error {
	env.str("INVTRACK_HTTP_ADDR", &c.HTTPAddr)
	env.str("INVTRACK_LOG_LEVEL", &c.LogLevel)
	env.str("INVTRACK_LOG_FORMAT", &c.LogFormat)

	env.duration("INVTRACK_HTTP_READ_HEADER_TIMEOUT", &c.ReadHeaderTimeout)
	env.duration("INVTRACK_HTTP_READ_TIMEOUT", &c.ReadTimeout)
	env.duration("INVTRACK_HTTP_WRITE_TIMEOUT", &c.WriteTimeout)
	env.duration("INVTRACK_HTTP_IDLE_TIMEOUT", &c.IdleTimeout)
	env.duration("INVTRACK_HTTP_SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	env.integer("INVTRACK_HTTP_MAX_HEADER_BYTES", &c.MaxHeaderBytes, 1)

	env.str("INVTRACK_DATABASE_URL", &c.DatabaseURL)
	env.conns("INVTRACK_DB_MAX_CONNS", &c.DBMaxConns)
	env.conns("INVTRACK_DB_MIN_CONNS", &c.DBMinConns)
	env.str("INVTRACK_DB_SCHEMA", &c.DBSchema)
	env.boolean("INVTRACK_DB_AUTO_MIGRATE", &c.DBAutoMigrate)

	env.boolean("INVTRACK_READINESS_REQUIRE_DB", &c.ReadinessRequireDB)

	env.boolean("INVTRACK_REQUIRE_TOKEN_HMAC", &c.RequireTokenHMAC)
	env.str("INVTRACK_ADMIN_KEY_HASH", &c.AdminKeyHash)

	env.str("INVTRACK_ARTIFACT_DIR", &c.ArtifactDir)
	env.str("INVTRACK_FONT_PATH", &c.FontPath)
	env.duration("INVTRACK_STORE_TIMEOUT", &c.StoreTimeout)
	env.str("INVTRACK_SUFFIX_SOURCE", &c.SuffixSource)

	env.duration("INVTRACK_SHARE_MAX_TTL", &c.ShareMaxTTL)
	env.integer("INVTRACK_TOKEN_BYTES", &c.TokenBytes, 1)

	env.boolean("INVTRACK_TRUST_PROXY", &c.TrustProxy)
	env.integer("INVTRACK_MAX_BODY_BYTES", &c.MaxBodyBytes, 1)
	// Zero disables the redemption throttle.
	env.integer("INVTRACK_RESOLVE_FAIL_MAX", &c.ResolveFailMax, 0)
	env.duration("INVTRACK_RESOLVE_FAIL_WINDOW", &c.ResolveFailWindow)
	env.duration("INVTRACK_CODE_CACHE_MAX_AGE", &c.CodeCacheMaxAge)

	env.list("INVTRACK_FEED_ALLOWED_ORIGINS", &c.FeedAllowedOrigins)
	env.boolean("INVTRACK_FEED_ORIGIN_REQUIRED", &c.FeedOriginRequired)

	return env.err()
}
