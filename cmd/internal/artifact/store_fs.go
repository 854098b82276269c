package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"invtrack/cmd/errkind"
)

// FSStore keeps artifacts under a root directory.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore constructs an FSStore rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	const op = "artifact.NewFSStore"
	if dir == "" {
		return nil, errkind.Invalid(op, "empty root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errkind.Storage(op, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errkind.Storage(op, err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string { return s.root }

// Put writes data atomically (temp file + rename).
func (s *FSStore) Put(ctx context.Context, p string, data []byte) (Digest, error) {
	const op = "artifact.FSStore.Put"
	if err := ctx.Err(); err != nil {
		return Digest{}, errkind.Storage(op, err)
	}
	full, err := s.resolve(p)
	if err != nil {
		return Digest{}, err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Digest{}, errkind.Storage(op, err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return Digest{}, errkind.Storage(op, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Digest{}, errkind.Storage(op, err)
	}
	if err := tmp.Close(); err != nil {
		return Digest{}, errkind.Storage(op, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return Digest{}, errkind.Storage(op, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return Digest{}, errkind.Storage(op, err)
	}
	return Sum(data), nil
}

// Get reads the artifact at p.
func (s *FSStore) Get(ctx context.Context, p string) ([]byte, error) {
	const op = "artifact.FSStore.Get"
	if err := ctx.Err(); err != nil {
		return nil, errkind.Storage(op, err)
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "artifact"}
		}
		return nil, errkind.Storage(op, err)
	}
	return b, nil
}

// Exists reports whether an artifact is stored at p.
func (s *FSStore) Exists(ctx context.Context, p string) (bool, error) {
	const op = "artifact.FSStore.Exists"
	if err := ctx.Err(); err != nil {
		return false, errkind.Storage(op, err)
	}
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errkind.Storage(op, err)
	}
}

func (s *FSStore) resolve(p string) (string, error) {
	c, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}
