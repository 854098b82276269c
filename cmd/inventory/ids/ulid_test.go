package ids

import (
	"testing"
	"time"
)

func TestNewULID(t *testing.T) {
	t.Parallel()

	a, err := NewULID(time.Time{})
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	if len(a) != 26 || !Valid(a) {
		t.Fatalf("invalid ulid %q", a)
	}

	earlier, _ := NewULID(time.Now().Add(-time.Hour))
	if !(earlier < a) {
		t.Fatalf("expected %q < %q", earlier, a)
	}
	if Valid("not-a-ulid") {
		t.Fatalf("expected invalid")
	}
}
