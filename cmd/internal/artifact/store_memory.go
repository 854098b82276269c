package artifact

import (
	"context"
	"sync"

	"invtrack/cmd/errkind"
)

// MemoryStore is the dev/test Store.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
	puts  int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

// Put stores a copy of data at p.
func (s *MemoryStore) Put(ctx context.Context, p string, data []byte) (Digest, error) {
	const op = "artifact.MemoryStore.Put"
	if err := ctx.Err(); err != nil {
		return Digest{}, errkind.Storage(op, err)
	}
	c, err := CleanPath(p)
	if err != nil {
		return Digest{}, err
	}
	cp := append([]byte(nil), data...)

	s.mu.Lock()
	s.files[c] = cp
	s.puts++
	s.mu.Unlock()
	return Sum(cp), nil
}

// Get returns a copy of the bytes at p.
func (s *MemoryStore) Get(ctx context.Context, p string) ([]byte, error) {
	const op = "artifact.MemoryStore.Get"
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage(op, err)
	}
	c, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	b, ok := s.files[c]
	s.mu.RUnlock()
	if !ok {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "artifact"}
	}
	return append([]byte(nil), b...), nil
}

// Exists reports whether p is stored.
func (s *MemoryStore) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errkind.Storage("artifact.MemoryStore.Exists", err)
	}
	c, err := CleanPath(p)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.files[c]
	s.mu.RUnlock()
	return ok, nil
}

// Puts returns the number of successful Put calls.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
