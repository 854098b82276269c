package audit

import (
	"context"
	"testing"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/dbtest"
)

// Integration tests are opt-in and require INVTRACK_DATABASE_URL.

func TestPostgresStore_AppendAndList(t *testing.T) {
	t.Parallel()

	pool := dbtest.OpenPool(t)
	schema := dbtest.NewSchema(t, pool)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	links := pgIdent(schema, "share_links")
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+links+` (id, token_hash, scope, access_mode, created_by) VALUES ($1, $2, 'all', 'anyone', 'ops')`,
		"01HZZZZZZZZZZZZZZZZZZZZZZZ", "hash-1",
	); err != nil {
		t.Fatalf("seed link: %v", err)
	}

	l := mustNewLog(t, s)
	for _, o := range []Outcome{OutcomeAllowed, OutcomeForbidden, OutcomeGone} {
		if _, err := l.Record(ctx, RecordInput{
			ShareLinkID: "01HZZZZZZZZZZZZZZZZZZZZZZZ",
			Email:       "a@example.com",
			ClientIP:    "198.51.100.4",
			Outcome:     o,
		}); err != nil {
			t.Fatalf("record %s: %v", o, err)
		}
	}

	recent, err := l.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 3 || recent[0].Outcome != OutcomeGone || recent[2].Outcome != OutcomeAllowed {
		t.Fatalf("order: %+v", recent)
	}
	if !recent[2].Success || recent[0].Success {
		t.Fatalf("success flags wrong: %+v", recent)
	}

	n, err := l.CountByLink(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	if err != nil || n != 3 {
		t.Fatalf("count: %d %v", n, err)
	}

	_, err = l.Record(ctx, RecordInput{ShareLinkID: "01HYYYYYYYYYYYYYYYYYYYYYYY", Outcome: OutcomeAllowed})
	if !errkind.IsStorageUnavailable(err) {
		t.Fatalf("expected storage unavailable for unknown link, got %v", err)
	}
}
