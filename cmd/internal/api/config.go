package api

import "time"

// Config controls HTTP API behavior.
type Config struct {
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	MaxBodyBytes int64

	// Failed redemptions (unknown token) per client IP before 429.
	ResolveFailMax    int
	ResolveFailWindow time.Duration

	// CodeCacheMaxAge is the Cache-Control max-age for code images.
	CodeCacheMaxAge time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		ResolveFailMax:    30,
		ResolveFailWindow: 5 * time.Minute,
		CodeCacheMaxAge:   5 * time.Minute,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.ResolveFailWindow <= 0 {
		c.ResolveFailWindow = def.ResolveFailWindow
	}
	if c.CodeCacheMaxAge < 0 {
		c.CodeCacheMaxAge = 0
	}
	return c
}
