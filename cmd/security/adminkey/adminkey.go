package adminkey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const argon2Version = 19 // argon2.Version is 0x13 (19)

// Generate returns a fresh random admin key (43 base64url chars).
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Validate checks key length bounds.
func (c Config) Validate(key string) error {
	n := utf8.RuneCountInString(key)
	if n < c.MinLength {
		return ErrKeyTooShort
	}
	if n > c.MaxLength {
		return ErrKeyTooLong
	}
	return nil
}

// Hash hashes key using Argon2id and returns the encoded hash string.
func (c Config) Hash(key string) (string, error) {
	if err := c.Validate(key); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	sum := argon2.IDKey(
		[]byte(key),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(sum),
	), nil
}

// Verify checks whether key matches encodedHash.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed/unsupported hashes.
func (c Config) Verify(encodedHash, key string) (bool, error) {
	params, salt, expected, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	if !withinReasonableBounds(params, c.Params) {
		return false, ErrInvalidHash
	}
	if len(key) > c.MaxLength*4 {
		return false, nil
	}

	sum := argon2.IDKey(
		[]byte(key),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)), // #nosec G115 -- expected length is bounded by decode(); safe conversion.
	)
	return subtle.ConstantTimeCompare(sum, expected) == 1, nil
}

// Verifier checks presented keys against one stored hash.
type Verifier struct {
	cfg  Config
	hash string
}

// NewVerifier validates encodedHash up front so misconfiguration fails at startup.
func NewVerifier(cfg Config, encodedHash string) (*Verifier, error) {
	encodedHash = strings.TrimSpace(encodedHash)
	params, _, _, err := decode(encodedHash)
	if err != nil {
		return nil, err
	}
	if !withinReasonableBounds(params, cfg.Params) {
		return nil, ErrInvalidHash
	}
	return &Verifier{cfg: cfg, hash: encodedHash}, nil
}

// Verify reports whether key matches.
func (v *Verifier) Verify(key string) bool {
	if v == nil || key == "" {
		return false
	}
	ok, err := v.cfg.Verify(v.hash, key)
	return err == nil && ok
}

func withinReasonableBounds(got, limits Argon2idParams) bool {
	// Allow hashes generated with older/smaller settings, reject wildly larger ones.
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

// decode parses the encoded hash and returns params, salt and expected key.
func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	sum, err := b64.DecodeString(parts[5])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by withinReasonableBounds.
		KeyLength:   uint32(len(sum)),  // #nosec G115 -- bounded by withinReasonableBounds.
	}, salt, sum, nil
}
