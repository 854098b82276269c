package app

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "invtrack.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(ConfigEnvKey, "")
	t.Setenv("INVTRACK_HTTP_ADDR", "")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("defaults changed by empty environment:\n got %+v\nwant %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := writeConfigFile(t, `
http_addr: "127.0.0.1:9000"
log_format: pretty
share_max_ttl: 720h
resolve_fail_max: 5
feed_allowed_origins:
  - https://ops.example.com
db_auto_migrate: true
`)
	t.Setenv(ConfigEnvKey, "")
	t.Setenv("INVTRACK_HTTP_ADDR", "127.0.0.1:9100")
	t.Setenv("INVTRACK_RESOLVE_FAIL_WINDOW", "90s")
	t.Setenv("INVTRACK_FEED_ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9100" {
		t.Fatalf("env must win over file: HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogFormat != "pretty" {
		t.Fatalf("LogFormat=%q want pretty", cfg.LogFormat)
	}
	if cfg.ShareMaxTTL != 720*time.Hour {
		t.Fatalf("ShareMaxTTL=%v want 720h", cfg.ShareMaxTTL)
	}
	if cfg.ResolveFailMax != 5 || cfg.ResolveFailWindow != 90*time.Second {
		t.Fatalf("resolve throttle: max=%d window=%v", cfg.ResolveFailMax, cfg.ResolveFailWindow)
	}
	if !reflect.DeepEqual(cfg.FeedAllowedOrigins, []string{"https://ops.example.com"}) {
		t.Fatalf("FeedAllowedOrigins=%v", cfg.FeedAllowedOrigins)
	}
	if !cfg.DBAutoMigrate {
		t.Fatalf("DBAutoMigrate not read from file")
	}
	if cfg.ReadTimeout != DefaultConfig().ReadTimeout {
		t.Fatalf("unset keys must keep defaults: ReadTimeout=%v", cfg.ReadTimeout)
	}
}

func TestLoadConfig_PathFromEnv(t *testing.T) {
	path := writeConfigFile(t, "token_bytes: 64\n")
	t.Setenv(ConfigEnvKey, path)
	t.Setenv("INVTRACK_TOKEN_BYTES", "")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TokenBytes != 64 {
		t.Fatalf("TokenBytes=%d want 64", cfg.TokenBytes)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv(ConfigEnvKey, "")

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("missing file: err=%v", err)
	}

	bad := writeConfigFile(t, "http_addr: [unterminated\n")
	if _, err := LoadConfig(bad); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("bad yaml: err=%v", err)
	}
}

func TestLoadConfig_MalformedEnvFails(t *testing.T) {
	t.Setenv(ConfigEnvKey, "")
	t.Setenv("INVTRACK_TOKEN_BYTES", "-3")
	t.Setenv("INVTRACK_RESOLVE_FAIL_WINDOW", "soon")
	t.Setenv("INVTRACK_TRUST_PROXY", "maybe")

	_, err := LoadConfig("")
	if err == nil {
		t.Fatalf("expected malformed environment to fail")
	}
	for _, key := range []string{"INVTRACK_TOKEN_BYTES", "INVTRACK_RESOLVE_FAIL_WINDOW", "INVTRACK_TRUST_PROXY"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error must name %s: %v", key, err)
		}
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Parallel()

	vars := map[string]string{
		"LIST":  " a, ,b ",
		"ZERO":  "0",
		"CONNS": "4",
		"BLANK": "   ",
	}
	env := &envOverlay{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}

	list := []string{"keep"}
	env.list("LIST", &list)
	if !reflect.DeepEqual(list, []string{"a", "b"}) {
		t.Fatalf("list=%v", list)
	}

	n := 30
	env.integer("ZERO", &n, 0)
	if n != 0 {
		t.Fatalf("integer with min 0: got %d", n)
	}

	var conns int32
	env.conns("CONNS", &conns)
	if conns != 4 {
		t.Fatalf("conns=%d want 4", conns)
	}

	s := "default"
	env.str("BLANK", &s)
	env.str("MISSING", &s)
	if s != "default" {
		t.Fatalf("blank or missing must keep the default: %q", s)
	}

	if err := env.err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.integer("ZERO", &n, 1)
	if err := env.err(); err == nil || !strings.Contains(err.Error(), "ZERO") {
		t.Fatalf("expected error naming ZERO, got %v", err)
	}
}

func TestDBPoolConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://invtrack@localhost:5432/invtrack"
	cfg.DBMaxConns = 8
	cfg.DBMinConns = 2

	pcfg, err := dbPoolConfig(cfg)
	if err != nil {
		t.Fatalf("dbPoolConfig: %v", err)
	}
	if pcfg.MaxConns != 8 || pcfg.MinConns != 2 {
		t.Fatalf("conns: max=%d min=%d", pcfg.MaxConns, pcfg.MinConns)
	}
	if got := pcfg.ConnConfig.RuntimeParams["application_name"]; got != "invtrack" {
		t.Fatalf("application_name=%q", got)
	}

	cfg.DatabaseURL += "?application_name=ops"
	if pcfg, err = dbPoolConfig(cfg); err != nil || pcfg.ConnConfig.RuntimeParams["application_name"] != "ops" {
		t.Fatalf("explicit application_name must win: %v", err)
	}

	cfg.DBMinConns = 20
	if _, err := dbPoolConfig(cfg); err == nil {
		t.Fatalf("expected min > max to fail")
	}
}
