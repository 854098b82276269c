package inventory

import "context"

// Store is the persistence boundary for assets.
//
// Contract:
//   - Create and AssignIdentifier return errkind.ConflictError{Field: "identifier"}
//     when the identifier is already taken (unique index).
//   - Lookups of missing rows return errors matching errkind.ErrNotFound.
//   - FindAssetsByOwner returns assets ordered by display name.
//   - ListOwners returns distinct owners in ascending order.
type Store interface {
	Create(ctx context.Context, a Asset) (Asset, error)
	GetByIdentifier(ctx context.Context, identifier string) (Asset, error)
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)
	FindAssetsByOwner(ctx context.Context, owner string) ([]Asset, error)
	ListOwners(ctx context.Context) ([]string, error)
	OwnerExists(ctx context.Context, owner string) (bool, error)
	ListWithIdentifier(ctx context.Context) ([]Asset, error)
	ListMissingIdentifier(ctx context.Context) ([]Asset, error)
	AssignIdentifier(ctx context.Context, id, identifier string) error
	SetArtifactRefs(ctx context.Context, identifier, qrRef, barcodeRef string) error
}
