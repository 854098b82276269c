package dbschema

import (
	"strings"
	"testing"
)

func TestSQL_QuotesSchema(t *testing.T) {
	t.Parallel()

	ddl, err := SQL("inv_test")
	if err != nil {
		t.Fatalf("SQL: %v", err)
	}
	if strings.Contains(ddl, "{{schema}}") {
		t.Fatalf("placeholder left in DDL")
	}
	if !strings.Contains(ddl, `"inv_test".assets`) {
		t.Fatalf("expected quoted schema in DDL")
	}
	for _, c := range []string{"uq_assets_identifier", "uq_share_links_token_hash"} {
		if !strings.Contains(ddl, c) {
			t.Fatalf("missing constraint %s", c)
		}
	}
}

func TestSQL_RejectsBadIdentifier(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "1abc", "a-b", `x"; DROP TABLE y; --`} {
		if _, err := SQL(s); err == nil {
			t.Fatalf("SQL(%q): expected error", s)
		}
	}
}

func TestTables_AllCreatedByDDL(t *testing.T) {
	t.Parallel()

	ddl, err := SQL(DefaultSchema)
	if err != nil {
		t.Fatalf("SQL: %v", err)
	}
	for _, table := range Tables {
		if !strings.Contains(ddl, `CREATE TABLE IF NOT EXISTS "invtrack".`+table+" (") {
			t.Fatalf("table %s listed but not created", table)
		}
	}
}
