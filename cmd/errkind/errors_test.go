package errkind

import (
	"context"
	"errors"
	"testing"
)

func TestStorage_WrapsUnclassified(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := Storage("inventory.Create", cause)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestStorage_KeepsClassified(t *testing.T) {
	t.Parallel()

	in := ConflictError{Op: "inventory.Create", Field: "identifier"}
	err := Storage("inventory.Create", in)
	if errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("conflict must not become storage_unavailable: %v", err)
	}
	if !IsConflict(err, "identifier") {
		t.Fatalf("expected identifier conflict, got %v", err)
	}
	if IsConflict(err, "token") {
		t.Fatalf("field filter should not match token")
	}
}

func TestStorage_Nil(t *testing.T) {
	t.Parallel()
	if err := Storage("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestStorage_ContextDeadline(t *testing.T) {
	t.Parallel()

	err := Storage("share.Resolve", context.DeadlineExceeded)
	if !IsStorageUnavailable(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected classification: %v", err)
	}
}

func TestOpError_Message(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   OpError
		want string
	}{
		{in: OpError{Op: "share.Issue", Kind: ErrInvalidScope}, want: "share.Issue: invalid_scope"},
		{in: OpError{Op: "share.Issue", Kind: ErrValidationFailed, Msg: "no emails"}, want: "share.Issue: validation_failed: no emails"},
	}
	for _, tc := range cases {
		if got := tc.in.Error(); got != tc.want {
			t.Fatalf("Error()=%q want=%q", got, tc.want)
		}
	}
}
