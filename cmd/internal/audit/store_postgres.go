package audit

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"invtrack/cmd/errkind"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit rows in PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "invtrack").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return errkind.Invalid("audit.WithSchema", "invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "invtrack"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errkind.Invalid("audit.NewPostgresStore", "nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

const accessColumns = `id, share_link_id, supplied_email, client_ip, user_agent, success, outcome, created_at`

// Append inserts a.
func (s *PostgresStore) Append(ctx context.Context, a AccessAttempt) error {
	const op = "audit.Append"

	accesses := pgIdent(s.schema, "share_accesses")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+accesses+` (`+accessColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID,
		a.ShareLinkID,
		nilIfEmpty(a.SuppliedEmail),
		nilIfEmpty(a.ClientIP),
		nilIfEmpty(a.UserAgent),
		a.Success,
		string(a.Outcome),
		a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "share link"}
		}
		return errkind.Storage(op, err)
	}
	return nil
}

// ListRecent returns up to limit rows, newest first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]AccessAttempt, error) {
	accesses := pgIdent(s.schema, "share_accesses")
	return s.query(ctx, "audit.ListRecent",
		`SELECT `+accessColumns+` FROM `+accesses+` ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

// ListByLink returns up to limit rows for linkID, newest first.
func (s *PostgresStore) ListByLink(ctx context.Context, linkID string, limit int) ([]AccessAttempt, error) {
	accesses := pgIdent(s.schema, "share_accesses")
	return s.query(ctx, "audit.ListByLink",
		`SELECT `+accessColumns+` FROM `+accesses+`
		  WHERE share_link_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, linkID, limit)
}

// CountByLink counts rows for linkID.
func (s *PostgresStore) CountByLink(ctx context.Context, linkID string) (int, error) {
	accesses := pgIdent(s.schema, "share_accesses")
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+accesses+` WHERE share_link_id = $1`, linkID).Scan(&n); err != nil {
		return 0, errkind.Storage("audit.CountByLink", err)
	}
	return n, nil
}

func (s *PostgresStore) query(ctx context.Context, op, sql string, args ...any) ([]AccessAttempt, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errkind.Storage(op, err)
	}
	defer rows.Close()

	var out []AccessAttempt
	for rows.Next() {
		var (
			a             AccessAttempt
			email, ip, ua *string
			outcome       string
		)
		if err := rows.Scan(&a.ID, &a.ShareLinkID, &email, &ip, &ua, &a.Success, &outcome, &a.CreatedAt); err != nil {
			return nil, errkind.Storage(op, err)
		}
		a.SuppliedEmail = deref(email)
		a.ClientIP = deref(ip)
		a.UserAgent = deref(ua)
		a.Outcome = Outcome(outcome)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Storage(op, err)
	}
	return out, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
