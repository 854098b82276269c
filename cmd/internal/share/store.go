package share

import (
	"context"
	"time"
)

// Store is the persistence boundary for share links.
//
// Contract:
//   - CreateAll inserts every link or none; a duplicate token hash returns
//     errkind.ConflictError{Field: "token_hash"}.
//   - Lookups of missing rows return errors matching errkind.ErrNotFound.
//   - Revoke sets revoked_at only when unset and reports whether it did.
//   - List returns links newest first.
type Store interface {
	CreateAll(ctx context.Context, links []Link) error
	GetByTokenHash(ctx context.Context, tokenHash string) (Link, error)
	GetByID(ctx context.Context, id string) (Link, error)
	Revoke(ctx context.Context, id string, now time.Time) (Link, bool, error)
	List(ctx context.Context, limit int) ([]Link, error)
}
