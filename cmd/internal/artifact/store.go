// Package artifact stores rendered code images by relative path.
//
// Paths are slash-separated and relative ("inventory-codes/IT-JD0001_202503_qr.png").
// Put overwrites. Every Put returns the BLAKE3 digest of the stored bytes.
package artifact

import (
	"context"
	"path"
	"strings"

	"invtrack/cmd/errkind"
)

// Store is the artifact persistence boundary.
type Store interface {
	Put(ctx context.Context, p string, data []byte) (Digest, error)
	Get(ctx context.Context, p string) ([]byte, error)
	Exists(ctx context.Context, p string) (bool, error)
}

// CleanPath validates p and returns its canonical form.
func CleanPath(p string) (string, error) {
	const op = "artifact.CleanPath"

	p = strings.TrimSpace(p)
	if p == "" {
		return "", errkind.Invalid(op, "empty path")
	}
	if strings.ContainsRune(p, '\\') || strings.ContainsRune(p, 0) {
		return "", errkind.Invalid(op, "invalid character in path")
	}
	if strings.HasPrefix(p, "/") {
		return "", errkind.Invalid(op, "absolute path")
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", errkind.Invalid(op, "path escapes root")
	}
	return c, nil
}
