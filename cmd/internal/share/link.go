// Package share issues, resolves and revokes public share links over groups of
// assets.
//
// A link is an opaque capability token. Only its hash is stored, so the plain
// token is visible exactly once: in the value returned by Issue. A link is
// Active until it is revoked (explicit, one-way) or its expiry passes (derived
// at resolve time). Links are never deleted.
package share

import (
	"net/mail"
	"strings"
	"time"

	"invtrack/cmd/errkind"
)

// Scope selects which asset groups a link exposes.
type Scope string

const (
	ScopeSingle   Scope = "single"
	ScopeMultiple Scope = "multiple"
	ScopeAll      Scope = "all"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSingle:
		return ScopeSingle, true
	case ScopeMultiple:
		return ScopeMultiple, true
	case ScopeAll:
		return ScopeAll, true
	default:
		return "", false
	}
}

// AccessMode selects who may redeem a link.
type AccessMode string

const (
	AccessAnyone         AccessMode = "anyone"
	AccessEmailAllowlist AccessMode = "email_allowlist"
)

// ParseAccessMode validates an access mode string. "emails" is accepted as an
// alias of email_allowlist.
func ParseAccessMode(s string) (AccessMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(AccessAnyone):
		return AccessAnyone, true
	case string(AccessEmailAllowlist), "emails":
		return AccessEmailAllowlist, true
	default:
		return "", false
	}
}

// State is the lifecycle state of a link at a point in time.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// Link is one share link.
type Link struct {
	ID string `json:"id"`
	// Token is the plain capability. Populated only on values returned by Issue.
	Token         string     `json:"token,omitempty"`
	TokenHash     string     `json:"-"`
	Scope         Scope      `json:"scope"`
	Targets       []string   `json:"targets"`
	AccessMode    AccessMode `json:"access_mode"`
	AllowedEmails []string   `json:"allowed_emails,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StateAt derives the lifecycle state at now. Revocation wins over expiry.
func (l Link) StateAt(now time.Time) State {
	if l.RevokedAt != nil {
		return StateRevoked
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return StateExpired
	}
	return StateActive
}

// Allows reports whether email may redeem the link.
func (l Link) Allows(email string) bool {
	if l.AccessMode != AccessEmailAllowlist {
		return true
	}
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}
	for _, e := range l.AllowedEmails {
		if e == email {
			return true
		}
	}
	return false
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeEmails validates, lower-cases and deduplicates addresses, keeping
// first-seen order.
func normalizeEmails(op string, in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		e := NormalizeEmail(raw)
		if e == "" {
			continue
		}
		addr, err := mail.ParseAddress(e)
		if err != nil || addr.Address != e {
			return nil, errkind.Invalid(op, "invalid email address")
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}

// SplitEmails splits a comma, semicolon or whitespace separated list.
func SplitEmails(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
}
