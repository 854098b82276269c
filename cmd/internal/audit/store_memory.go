package audit

import (
	"context"
	"sync"

	"invtrack/cmd/errkind"
)

// InMemoryStore is the dev/test Store.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows []AccessAttempt
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

// Append adds a.
func (s *InMemoryStore) Append(ctx context.Context, a AccessAttempt) error {
	if err := ctx.Err(); err != nil {
		return errkind.Storage("audit.InMemoryStore.Append", err)
	}
	s.mu.Lock()
	s.rows = append(s.rows, a)
	s.mu.Unlock()
	return nil
}

// ListRecent returns up to limit rows, newest first.
func (s *InMemoryStore) ListRecent(ctx context.Context, limit int) ([]AccessAttempt, error) {
	return s.list(ctx, "", limit)
}

// ListByLink returns up to limit rows for linkID, newest first.
func (s *InMemoryStore) ListByLink(ctx context.Context, linkID string, limit int) ([]AccessAttempt, error) {
	return s.list(ctx, linkID, limit)
}

// CountByLink counts rows for linkID.
func (s *InMemoryStore) CountByLink(ctx context.Context, linkID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errkind.Storage("audit.InMemoryStore.CountByLink", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rows {
		if r.ShareLinkID == linkID {
			n++
		}
	}
	return n, nil
}

// Len returns the total row count.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *InMemoryStore) list(ctx context.Context, linkID string, limit int) ([]AccessAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage("audit.InMemoryStore.list", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AccessAttempt
	for i := len(s.rows) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if linkID != "" && s.rows[i].ShareLinkID != linkID {
			continue
		}
		out = append(out, s.rows[i])
	}
	return out, nil
}
