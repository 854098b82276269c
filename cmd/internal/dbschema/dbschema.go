// Package dbschema holds the invtrack PostgreSQL schema and applies it.
package dbschema

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the schema the stores use unless configured otherwise.
const DefaultSchema = "invtrack"

//go:embed schema.sql
var schemaSQL string

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Tables lists the tables Apply creates.
var Tables = []string{"assets", "share_links", "share_accesses"}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQL returns the DDL for schema.
func SQL(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if !identRe.MatchString(schema) {
		return "", fmt.Errorf("dbschema: invalid schema identifier %q", schema)
	}
	return strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{schema}.Sanitize()), nil
}

// Apply creates schema and its tables if missing. It is idempotent.
func Apply(ctx context.Context, db Execer, schema string) error {
	ddl, err := SQL(schema)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("dbschema: apply %s: %w", schema, err)
	}
	return nil
}

// Missing returns the tables of schema that do not exist yet. An empty result
// means the schema has been applied.
func Missing(ctx context.Context, db Querier, schema string) ([]string, error) {
	schema = strings.TrimSpace(schema)
	if !identRe.MatchString(schema) {
		return nil, fmt.Errorf("dbschema: invalid schema identifier %q", schema)
	}

	var missing []string
	for _, table := range Tables {
		var name *string
		qualified := pgx.Identifier{schema, table}.Sanitize()
		if err := db.QueryRow(ctx, `SELECT to_regclass($1)::text`, qualified).Scan(&name); err != nil {
			return nil, fmt.Errorf("dbschema: check %s: %w", qualified, err)
		}
		if name == nil {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
