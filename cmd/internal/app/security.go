package app

import (
	"errors"
	"fmt"
	"log/slog"

	"invtrack/cmd/security/adminkey"
	"invtrack/cmd/security/token"
)

// Security holds the credentials derived from configuration at startup.
type Security struct {
	// Hasher hashes share tokens. SHA-256 mode unless an HMAC key is set.
	Hasher token.Hasher
	// Admin verifies the operator key. Nil disables the admin surface.
	Admin *adminkey.Verifier
}

// ValidateSecurityConfig enforces invtrack's security policy at startup.
func ValidateSecurityConfig(cfg Config) error {
	_, err := LoadSecurity(cfg, nil)
	return err
}

// LoadSecurity builds the token hasher and admin verifier, failing fast on
// misconfiguration rather than falling back to weaker settings.
func LoadSecurity(cfg Config, log *slog.Logger) (Security, error) {
	if log == nil {
		log = slog.Default()
	}

	var sec Security

	key, err := token.HMACKeyFromEnv(token.MinHMACKeyBytes)
	switch {
	case err == nil:
		sec.Hasher = token.NewHasher(key)
	case errors.Is(err, token.ErrHMACKeyMissing):
		if cfg.RequireTokenHMAC {
			return Security{}, fmt.Errorf("security policy: INVTRACK_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
		}
		log.Warn("security.token_hmac.disabled", "hasher", "sha256")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		// A configured but weak key is rejected even when HMAC is optional.
		return Security{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, token.MinHMACKeyBytes)
	default:
		return Security{}, err
	}

	if cfg.RequireTokenHMAC && !sec.Hasher.Keyed() {
		return Security{}, errors.New("security policy: INVTRACK_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	if cfg.AdminKeyHash == "" {
		log.Warn("security.admin.disabled", "reason", "INVTRACK_ADMIN_KEY_HASH not set")
		return sec, nil
	}

	akCfg, err := adminkey.FromEnv()
	if err != nil {
		return Security{}, fmt.Errorf("security policy: %w", err)
	}
	v, err := adminkey.NewVerifier(akCfg, cfg.AdminKeyHash)
	if err != nil {
		return Security{}, fmt.Errorf("security policy: INVTRACK_ADMIN_KEY_HASH: %w", err)
	}
	sec.Admin = v
	return sec, nil
}
