package artifact

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest of artifact bytes.
type Digest [32]byte

// imageDomainKey separates artifact digests from any other BLAKE3 use.
// ASCII "invtrack.artifact.image", zero-padded to 32 bytes.
var imageDomainKey = [32]byte{
	'i', 'n', 'v', 't', 'r', 'a', 'c', 'k', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', '.', 'i', 'm', 'a', 'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	// NewKeyed only fails for a key that is not 32 bytes.
	h, err := blake3.NewKeyed(imageDomainKey[:])
	if err != nil {
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// String returns the lowercase hex form.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ETag returns a strong HTTP entity tag for d.
func (d Digest) ETag() string { return `"` + d.String()[:32] + `"` }

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool { return d == Digest{} }
