package inventory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/inventory/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists assets in PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "invtrack").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return errkind.Invalid("inventory.WithSchema", "invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
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
		return nil, errkind.Invalid("inventory.NewPostgresStore", "nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

const assetColumns = `id, owner_name, display_name, specification, brand, status, location,
	identifier, qr_artifact_ref, barcode_artifact_ref, created_at, updated_at`

// Create inserts a new asset row.
func (s *PostgresStore) Create(ctx context.Context, a Asset) (Asset, error) {
	const op = "inventory.Create"

	now := time.Now().UTC()
	if a.ID == "" {
		id, err := ids.NewULID(now)
		if err != nil {
			return Asset{}, err
		}
		a.ID = id
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	assets := pgIdent(s.schema, "assets")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+assets+` (`+assetColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID,
		a.OwnerName,
		a.DisplayName,
		nilIfEmpty(a.Specification),
		nilIfEmpty(a.Brand),
		a.Status,
		nilIfEmpty(string(a.Location)),
		nilIfEmpty(a.Identifier),
		a.QRArtifactRef,
		a.BarcodeArtifactRef,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Asset{}, errkind.ConflictError{Op: op, Field: field}
		}
		return Asset{}, errkind.Storage(op, err)
	}
	return a, nil
}

// GetByIdentifier fetches one asset by identifier.
func (s *PostgresStore) GetByIdentifier(ctx context.Context, identifier string) (Asset, error) {
	const op = "inventory.GetByIdentifier"

	assets := pgIdent(s.schema, "assets")
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM `+assets+` WHERE identifier = $1`, identifier)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "asset"}
		}
		return Asset{}, errkind.Storage(op, err)
	}
	return a, nil
}

// ExistsByIdentifier reports whether identifier is taken.
func (s *PostgresStore) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	assets := pgIdent(s.schema, "assets")
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+assets+` WHERE identifier = $1)`, identifier).Scan(&exists)
	if err != nil {
		return false, errkind.Storage("inventory.ExistsByIdentifier", err)
	}
	return exists, nil
}

// FindAssetsByOwner returns owner's assets ordered by display name.
func (s *PostgresStore) FindAssetsByOwner(ctx context.Context, owner string) ([]Asset, error) {
	assets := pgIdent(s.schema, "assets")
	return s.query(ctx, "inventory.FindAssetsByOwner",
		`SELECT `+assetColumns+` FROM `+assets+` WHERE owner_name = $1 ORDER BY display_name, id`, owner)
}

// ListOwners returns distinct owners ascending.
func (s *PostgresStore) ListOwners(ctx context.Context) ([]string, error) {
	const op = "inventory.ListOwners"

	assets := pgIdent(s.schema, "assets")
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT owner_name FROM `+assets+` ORDER BY owner_name`)
	if err != nil {
		return nil, errkind.Storage(op, err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errkind.Storage(op, err)
	}
	return owners, nil
}

// OwnerExists reports whether at least one asset has owner.
func (s *PostgresStore) OwnerExists(ctx context.Context, owner string) (bool, error) {
	assets := pgIdent(s.schema, "assets")
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+assets+` WHERE owner_name = $1)`, owner).Scan(&exists)
	if err != nil {
		return false, errkind.Storage("inventory.OwnerExists", err)
	}
	return exists, nil
}

// ListWithIdentifier returns assets that have an identifier, by owner then name.
func (s *PostgresStore) ListWithIdentifier(ctx context.Context) ([]Asset, error) {
	assets := pgIdent(s.schema, "assets")
	return s.query(ctx, "inventory.ListWithIdentifier",
		`SELECT `+assetColumns+` FROM `+assets+` WHERE identifier IS NOT NULL ORDER BY owner_name, display_name, id`)
}

// ListMissingIdentifier returns legacy assets without an identifier, by owner then name.
func (s *PostgresStore) ListMissingIdentifier(ctx context.Context) ([]Asset, error) {
	assets := pgIdent(s.schema, "assets")
	return s.query(ctx, "inventory.ListMissingIdentifier",
		`SELECT `+assetColumns+` FROM `+assets+` WHERE identifier IS NULL ORDER BY owner_name, display_name, id`)
}

// AssignIdentifier sets the identifier of a row that has none.
func (s *PostgresStore) AssignIdentifier(ctx context.Context, id, identifier string) error {
	const op = "inventory.AssignIdentifier"
	if strings.TrimSpace(identifier) == "" {
		return errkind.Invalid(op, "empty identifier")
	}

	assets := pgIdent(s.schema, "assets")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+assets+` SET identifier = $1, updated_at = now()
		  WHERE id = $2 AND identifier IS NULL`,
		identifier, id,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return errkind.ConflictError{Op: op, Field: field}
		}
		return errkind.Storage(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish missing row vs already-assigned.
	var current *string
	err = s.pool.QueryRow(ctx, `SELECT identifier FROM `+assets+` WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "asset"}
		}
		return errkind.Storage(op, err)
	}
	return errkind.OpError{Op: op, Kind: errkind.ErrValidationFailed, Msg: "identifier is immutable"}
}

// SetArtifactRefs overwrites the artifact paths of the asset with identifier.
func (s *PostgresStore) SetArtifactRefs(ctx context.Context, identifier, qrRef, barcodeRef string) error {
	const op = "inventory.SetArtifactRefs"

	assets := pgIdent(s.schema, "assets")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+assets+` SET qr_artifact_ref = $1, barcode_artifact_ref = $2, updated_at = now()
		  WHERE identifier = $3`,
		nilIfEmpty(qrRef), nilIfEmpty(barcodeRef), identifier,
	)
	if err != nil {
		return errkind.Storage(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "asset"}
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, op, sql string, args ...any) ([]Asset, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errkind.Storage(op, err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, errkind.Storage(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Storage(op, err)
	}
	return out, nil
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a                                 Asset
		spec, brand, location, identifier *string
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerName,
		&a.DisplayName,
		&spec,
		&brand,
		&a.Status,
		&location,
		&identifier,
		&a.QRArtifactRef,
		&a.BarcodeArtifactRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Asset{}, err
	}
	a.Specification = deref(spec)
	a.Brand = deref(brand)
	a.Location = Location(deref(location))
	a.Identifier = deref(identifier)
	return a, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nilIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
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
	case c == "uq_assets_identifier", strings.Contains(c, "identifier"):
		return "identifier", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "", true
	}
}
