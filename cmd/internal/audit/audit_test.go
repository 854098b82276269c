package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"invtrack/cmd/errkind"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []AccessAttempt
}

func (p *recordingPublisher) PublishAccess(a AccessAttempt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, a)
}

type failingStore struct{ InMemoryStore }

func (*failingStore) Append(context.Context, AccessAttempt) error {
	return errors.New("disk full")
}

func mustNewLog(t *testing.T, store Store, opts ...Option) *Log {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	l, err := NewLog(store, opts...)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	return l
}

func TestRecord_DerivesSuccessAndNormalizes(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	l := mustNewLog(t, NewInMemoryStore(), WithPublisher(pub), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	a, err := l.Record(ctx, RecordInput{
		ShareLinkID: "link-1",
		Email:       "  Viewer@Example.COM ",
		ClientIP:    "203.0.113.9",
		UserAgent:   "curl/8.0",
		Outcome:     OutcomeAllowed,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !a.Success || a.Outcome != OutcomeAllowed {
		t.Fatalf("success: got %v/%s", a.Success, a.Outcome)
	}
	if a.SuppliedEmail != "viewer@example.com" {
		t.Fatalf("email: got %q", a.SuppliedEmail)
	}
	if !a.CreatedAt.Equal(now) || a.ID == "" {
		t.Fatalf("meta: %+v", a)
	}

	f, err := l.Record(ctx, RecordInput{ShareLinkID: "link-1", Outcome: OutcomeForbidden})
	if err != nil {
		t.Fatalf("record forbidden: %v", err)
	}
	if f.Success {
		t.Fatalf("forbidden attempt must not be successful")
	}

	if len(pub.got) != 2 || pub.got[0].ID != a.ID {
		t.Fatalf("publisher: got %d events", len(pub.got))
	}
}

func TestRecord_Validation(t *testing.T) {
	t.Parallel()

	l := mustNewLog(t, NewInMemoryStore())
	for _, in := range []RecordInput{
		{ShareLinkID: "", Outcome: OutcomeAllowed},
		{ShareLinkID: "link-1", Outcome: "maybe"},
	} {
		if _, err := l.Record(context.Background(), in); !errors.Is(err, errkind.ErrValidationFailed) {
			t.Fatalf("Record(%+v): expected validation error, got %v", in, err)
		}
	}
}

func TestRecord_StoreFailureSurfaces(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	l := mustNewLog(t, &failingStore{}, WithPublisher(pub))

	_, err := l.Record(context.Background(), RecordInput{ShareLinkID: "link-1", Outcome: OutcomeGone})
	if !errkind.IsStorageUnavailable(err) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if len(pub.got) != 0 {
		t.Fatalf("failed writes must not be published")
	}
}

func TestRecord_TruncatesUserAgent(t *testing.T) {
	t.Parallel()

	l := mustNewLog(t, NewInMemoryStore())
	a, err := l.Record(context.Background(), RecordInput{
		ShareLinkID: "link-1",
		UserAgent:   strings.Repeat("é", 400),
		Outcome:     OutcomeAllowed,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(a.UserAgent) > maxUserAgentLen {
		t.Fatalf("user agent not truncated: %d bytes", len(a.UserAgent))
	}
	if !strings.HasPrefix(strings.Repeat("é", 400), a.UserAgent) {
		t.Fatalf("truncation split a rune")
	}
}

func TestListing_NewestFirstAndCounts(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	l := mustNewLog(t, store)
	ctx := context.Background()

	for i, link := range []string{"a", "b", "a", "a"} {
		outcome := OutcomeAllowed
		if i%2 == 1 {
			outcome = OutcomeForbidden
		}
		if _, err := l.Record(ctx, RecordInput{ShareLinkID: link, Outcome: outcome}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	recent, err := l.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 4 || recent[0].ShareLinkID != "a" || recent[2].ShareLinkID != "b" {
		t.Fatalf("recent order: %+v", recent)
	}

	two, _ := l.ListRecent(ctx, 2)
	if len(two) != 2 {
		t.Fatalf("limit: got %d", len(two))
	}

	byA, err := l.ListByLink(ctx, "a", 10)
	if err != nil || len(byA) != 3 {
		t.Fatalf("by link: %d %v", len(byA), err)
	}
	n, err := l.CountByLink(ctx, "a")
	if err != nil || n != 3 {
		t.Fatalf("count: %d %v", n, err)
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	cases := map[int]int{-1: DefaultLimit, 0: DefaultLimit, 10: 10, MaxLimit: MaxLimit, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Fatalf("ClampLimit(%d): got %d want %d", in, got, want)
		}
	}
}
