package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/inventory/ids"
)

// InMemoryStore is the dev/test Store. It enforces the identifier unique
// constraint the same way the Postgres index does.
type InMemoryStore struct {
	mu           sync.RWMutex
	byID         map[string]*Asset
	byIdentifier map[string]string // identifier -> id
	order        []string
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:         make(map[string]*Asset),
		byIdentifier: make(map[string]string),
	}
}

// Create inserts a.
func (s *InMemoryStore) Create(ctx context.Context, a Asset) (Asset, error) {
	const op = "inventory.InMemoryStore.Create"
	if err := ctx.Err(); err != nil {
		return Asset{}, errkind.Storage(op, err)
	}

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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[a.ID]; ok {
		return Asset{}, errkind.ConflictError{Op: op, Field: "id"}
	}
	if a.Identifier != "" {
		if _, ok := s.byIdentifier[a.Identifier]; ok {
			return Asset{}, errkind.ConflictError{Op: op, Field: "identifier"}
		}
		s.byIdentifier[a.Identifier] = a.ID
	}
	cp := a
	s.byID[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return a, nil
}

// GetByIdentifier returns the asset with identifier.
func (s *InMemoryStore) GetByIdentifier(ctx context.Context, identifier string) (Asset, error) {
	const op = "inventory.InMemoryStore.GetByIdentifier"
	if err := ctx.Err(); err != nil {
		return Asset{}, errkind.Storage(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return Asset{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "asset"}
	}
	return *s.byID[id], nil
}

// ExistsByIdentifier reports whether identifier is taken.
func (s *InMemoryStore) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errkind.Storage("inventory.InMemoryStore.ExistsByIdentifier", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byIdentifier[identifier]
	return ok, nil
}

// FindAssetsByOwner returns owner's assets ordered by display name.
func (s *InMemoryStore) FindAssetsByOwner(ctx context.Context, owner string) ([]Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage("inventory.InMemoryStore.FindAssetsByOwner", err)
	}
	s.mu.RLock()
	var out []Asset
	for _, id := range s.order {
		if a := s.byID[id]; a.OwnerName == owner {
			out = append(out, *a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// ListOwners returns distinct owners ascending.
func (s *InMemoryStore) ListOwners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage("inventory.InMemoryStore.ListOwners", err)
	}
	s.mu.RLock()
	seen := make(map[string]bool)
	var out []string
	for _, a := range s.byID {
		if !seen[a.OwnerName] {
			seen[a.OwnerName] = true
			out = append(out, a.OwnerName)
		}
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out, nil
}

// OwnerExists reports whether at least one asset has owner.
func (s *InMemoryStore) OwnerExists(ctx context.Context, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errkind.Storage("inventory.InMemoryStore.OwnerExists", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byID {
		if a.OwnerName == owner {
			return true, nil
		}
	}
	return false, nil
}

// ListWithIdentifier returns assets that have an identifier, by owner then name.
func (s *InMemoryStore) ListWithIdentifier(ctx context.Context) ([]Asset, error) {
	return s.listWhere(ctx, func(a *Asset) bool { return a.Identifier != "" })
}

// ListMissingIdentifier returns legacy assets without an identifier, by owner then name.
func (s *InMemoryStore) ListMissingIdentifier(ctx context.Context) ([]Asset, error) {
	return s.listWhere(ctx, func(a *Asset) bool { return a.Identifier == "" })
}

func (s *InMemoryStore) listWhere(ctx context.Context, keep func(*Asset) bool) ([]Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage("inventory.InMemoryStore.list", err)
	}
	s.mu.RLock()
	var out []Asset
	for _, id := range s.order {
		if a := s.byID[id]; keep(a) {
			out = append(out, *a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OwnerName != out[j].OwnerName {
			return out[i].OwnerName < out[j].OwnerName
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

// AssignIdentifier sets the identifier of a row that has none.
func (s *InMemoryStore) AssignIdentifier(ctx context.Context, id, identifier string) error {
	const op = "inventory.InMemoryStore.AssignIdentifier"
	if err := ctx.Err(); err != nil {
		return errkind.Storage(op, err)
	}
	if strings.TrimSpace(identifier) == "" {
		return errkind.Invalid(op, "empty identifier")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "asset"}
	}
	if a.Identifier != "" {
		return errkind.OpError{Op: op, Kind: errkind.ErrValidationFailed, Msg: "identifier is immutable"}
	}
	if _, taken := s.byIdentifier[identifier]; taken {
		return errkind.ConflictError{Op: op, Field: "identifier"}
	}
	a.Identifier = identifier
	a.UpdatedAt = time.Now().UTC()
	s.byIdentifier[identifier] = id
	return nil
}

// SetArtifactRefs overwrites the artifact paths of the asset with identifier.
func (s *InMemoryStore) SetArtifactRefs(ctx context.Context, identifier, qrRef, barcodeRef string) error {
	const op = "inventory.InMemoryStore.SetArtifactRefs"
	if err := ctx.Err(); err != nil {
		return errkind.Storage(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "asset"}
	}
	a := s.byID[id]
	a.QRArtifactRef = strPtr(qrRef)
	a.BarcodeArtifactRef = strPtr(barcodeRef)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
