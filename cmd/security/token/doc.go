// Package token mints and hashes opaque share tokens.
//
// Tokens are random bytes encoded with base64url (no padding). Only a hash is
// stored:
//   - SHA-256(token) when no HMAC key is configured (dev).
//   - HMAC-SHA256(token, key) when INVTRACK_TOKEN_HMAC_KEY is set.
//
// Both produce a stable 64-char hex string suitable for a unique index.
package token
