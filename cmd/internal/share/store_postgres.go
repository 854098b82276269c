package share

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"invtrack/cmd/errkind"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists share links in PostgreSQL.
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
			return errkind.Invalid("share.WithSchema", "invalid schema identifier")
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
		return nil, errkind.Invalid("share.NewPostgresStore", "nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

const linkColumns = `id, token_hash, scope, targets, access_mode, allowed_emails,
	expires_at, revoked_at, created_by, created_at`

// CreateAll inserts links in one transaction.
func (s *PostgresStore) CreateAll(ctx context.Context, links []Link) error {
	const op = "share.CreateAll"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errkind.Storage(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := pgIdent(s.schema, "share_links")
	for _, l := range links {
		_, err := tx.Exec(ctx,
			`INSERT INTO `+table+` (`+linkColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			l.ID,
			l.TokenHash,
			string(l.Scope),
			nonNil(l.Targets),
			string(l.AccessMode),
			nonNil(l.AllowedEmails),
			l.ExpiresAt,
			l.RevokedAt,
			l.CreatedBy,
			l.CreatedAt,
		)
		if err != nil {
			if field, ok := pgClassifyUniqueViolation(err); ok {
				return errkind.ConflictError{Op: op, Field: field}
			}
			return errkind.Storage(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errkind.Storage(op, err)
	}
	return nil
}

// GetByTokenHash fetches a link by token hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Link, error) {
	table := pgIdent(s.schema, "share_links")
	return s.getOne(ctx, "share.GetByTokenHash",
		`SELECT `+linkColumns+` FROM `+table+` WHERE token_hash = $1`, tokenHash)
}

// GetByID fetches a link by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Link, error) {
	table := pgIdent(s.schema, "share_links")
	return s.getOne(ctx, "share.GetByID",
		`SELECT `+linkColumns+` FROM `+table+` WHERE id = $1`, id)
}

// Revoke sets revoked_at to now unless already set.
func (s *PostgresStore) Revoke(ctx context.Context, id string, now time.Time) (Link, bool, error) {
	const op = "share.Revoke"

	table := pgIdent(s.schema, "share_links")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+table+` SET revoked_at = $2
		  WHERE id = $1 AND revoked_at IS NULL
		RETURNING `+linkColumns,
		id, now,
	)
	l, err := scanLink(row)
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Link{}, false, errkind.Storage(op, err)
	}

	// Already revoked or missing.
	l, err = s.GetByID(ctx, id)
	if err != nil {
		return Link{}, false, err
	}
	return l, false, nil
}

// List returns up to limit links, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Link, error) {
	const op = "share.List"

	table := pgIdent(s.schema, "share_links")
	rows, err := s.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM `+table+` ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errkind.Storage(op, err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, errkind.Storage(op, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Storage(op, err)
	}
	return out, nil
}

func (s *PostgresStore) getOne(ctx context.Context, op, sql string, arg string) (Link, error) {
	l, err := scanLink(s.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Link{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "share link"}
		}
		return Link{}, errkind.Storage(op, err)
	}
	return l, nil
}

func scanLink(row pgx.Row) (Link, error) {
	var (
		l                 Link
		scope, accessMode string
	)
	err := row.Scan(
		&l.ID,
		&l.TokenHash,
		&scope,
		&l.Targets,
		&accessMode,
		&l.AllowedEmails,
		&l.ExpiresAt,
		&l.RevokedAt,
		&l.CreatedBy,
		&l.CreatedAt,
	)
	if err != nil {
		return Link{}, err
	}
	l.Scope = Scope(scope)
	l.AccessMode = AccessMode(accessMode)
	return l, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_share_links_token_hash", strings.Contains(c, "token_hash"):
		return "token_hash", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "", true
	}
}
