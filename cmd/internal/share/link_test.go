package share

import (
	"testing"
	"time"
)

func TestParseScopeAndAccessMode(t *testing.T) {
	t.Parallel()

	if s, ok := ParseScope(" Multiple "); !ok || s != ScopeMultiple {
		t.Fatalf("ParseScope: %q %v", s, ok)
	}
	if _, ok := ParseScope("team"); ok {
		t.Fatalf("ParseScope(team) should fail")
	}
	if m, ok := ParseAccessMode(""); !ok || m != AccessAnyone {
		t.Fatalf("ParseAccessMode(empty): %q %v", m, ok)
	}
	if m, ok := ParseAccessMode("emails"); !ok || m != AccessEmailAllowlist {
		t.Fatalf("ParseAccessMode(emails): %q %v", m, ok)
	}
	if _, ok := ParseAccessMode("password"); ok {
		t.Fatalf("ParseAccessMode(password) should fail")
	}
}

func TestStateAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name string
		link Link
		want State
	}{
		{"no expiry", Link{}, StateActive},
		{"future expiry", Link{ExpiresAt: &future}, StateActive},
		{"expiry equals now", Link{ExpiresAt: &now}, StateExpired},
		{"past expiry", Link{ExpiresAt: &past}, StateExpired},
		{"revoked", Link{RevokedAt: &past}, StateRevoked},
		{"revoked and expired", Link{RevokedAt: &past, ExpiresAt: &past}, StateRevoked},
	}
	for _, tc := range cases {
		if got := tc.link.StateAt(now); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestSplitEmails(t *testing.T) {
	t.Parallel()

	got := SplitEmails("a@x.com, b@x.com;c@x.com\n d@x.com")
	if len(got) != 4 || got[3] != "d@x.com" {
		t.Fatalf("SplitEmails: %v", got)
	}
}
