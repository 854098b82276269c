package share

import (
	"context"
	"sync"
	"time"

	"invtrack/cmd/errkind"
)

// InMemoryStore is the dev/test Store.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Link
	byHash map[string]string // token hash -> id
	order  []string
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]*Link),
		byHash: make(map[string]string),
	}
}

// CreateAll inserts links atomically.
func (s *InMemoryStore) CreateAll(ctx context.Context, links []Link) error {
	const op = "share.InMemoryStore.CreateAll"
	if err := ctx.Err(); err != nil {
		return errkind.Storage(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]bool, len(links))
	for _, l := range links {
		if _, ok := s.byID[l.ID]; ok {
			return errkind.ConflictError{Op: op, Field: "id"}
		}
		if _, ok := s.byHash[l.TokenHash]; ok || batch[l.TokenHash] {
			return errkind.ConflictError{Op: op, Field: "token_hash"}
		}
		batch[l.TokenHash] = true
	}
	for _, l := range links {
		cp := clone(l)
		cp.Token = ""
		s.byID[l.ID] = &cp
		s.byHash[l.TokenHash] = l.ID
		s.order = append(s.order, l.ID)
	}
	return nil
}

// GetByTokenHash fetches a link by token hash.
func (s *InMemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Link, error) {
	const op = "share.InMemoryStore.GetByTokenHash"
	if err := ctx.Err(); err != nil {
		return Link{}, errkind.Storage(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return Link{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "share link"}
	}
	return clone(*s.byID[id]), nil
}

// GetByID fetches a link by id.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Link, error) {
	const op = "share.InMemoryStore.GetByID"
	if err := ctx.Err(); err != nil {
		return Link{}, errkind.Storage(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byID[id]
	if !ok {
		return Link{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "share link"}
	}
	return clone(*l), nil
}

// Revoke sets RevokedAt to now unless already set.
func (s *InMemoryStore) Revoke(ctx context.Context, id string, now time.Time) (Link, bool, error) {
	const op = "share.InMemoryStore.Revoke"
	if err := ctx.Err(); err != nil {
		return Link{}, false, errkind.Storage(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return Link{}, false, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "share link"}
	}
	if l.RevokedAt != nil {
		return clone(*l), false, nil
	}
	t := now
	l.RevokedAt = &t
	return clone(*l), true, nil
}

// List returns up to limit links, newest first.
func (s *InMemoryStore) List(ctx context.Context, limit int) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage("share.InMemoryStore.List", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Link
	for i := len(s.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, clone(*s.byID[s.order[i]]))
	}
	return out, nil
}

func clone(l Link) Link {
	l.Targets = append([]string(nil), l.Targets...)
	l.AllowedEmails = append([]string(nil), l.AllowedEmails...)
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		l.ExpiresAt = &t
	}
	if l.RevokedAt != nil {
		t := *l.RevokedAt
		l.RevokedAt = &t
	}
	return l
}
