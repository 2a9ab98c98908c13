package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// HashParams are the Argon2id cost parameters. Hashes are
// self-describing (parameters are embedded in the PHC string), so a
// parameter change never breaks verification of existing hashes — it
// only makes NeedsRehash report true for them.
type HashParams struct {
	Time     uint32 // iterations
	MemoryKB uint32 // memory in KiB
	Threads  uint8  // parallelism
	KeyLen   uint32 // output hash length
	SaltLen  uint32 // salt length
}

// DefaultHashParams are the OWASP-recommended Argon2id parameters.
func DefaultHashParams() HashParams {
	return HashParams{
		Time:     3,
		MemoryKB: 64 * 1024, // 64 MiB
		Threads:  4,
		KeyLen:   32,
		SaltLen:  16,
	}
}

// Hasher performs one-way password hashing with fixed, injected
// parameters. It holds no mutable state and is safe for concurrent use.
type Hasher struct {
	params HashParams
}

// NewHasher creates a Hasher with the given parameters.
// Zero-value fields fall back to the defaults.
func NewHasher(params HashParams) *Hasher {
	def := DefaultHashParams()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKB == 0 {
		params.MemoryKB = def.MemoryKB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	if params.SaltLen == 0 {
		params.SaltLen = def.SaltLen
	}
	return &Hasher{params: params}
}

// Hash hashes a plaintext password using Argon2id and returns it in
// PHC string format: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.MemoryKB, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKB, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks a plaintext password against a stored PHC hash.
// It returns false on mismatch or on a malformed hash — callers get a
// single yes/no answer and map both cases to invalid credentials.
func (h *Hasher) Verify(password, encodedHash string) bool {
	salt, hash, params, err := decodePHC(encodedHash)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt,
		params.Time, params.MemoryKB, params.Threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1
}

// NeedsRehash reports whether a stored hash was produced with
// parameters that differ from the hasher's current configuration.
// Malformed hashes also report true; the subsequent Verify fails, so
// a rehash is never applied to an unverified password.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	salt, hash, params, err := decodePHC(encodedHash)
	if err != nil {
		return true
	}

	return params.Time != h.params.Time ||
		params.MemoryKB != h.params.MemoryKB ||
		params.Threads != h.params.Threads ||
		uint32(len(hash)) != h.params.KeyLen || //nolint:gosec // G115: hash length always fits uint32
		uint32(len(salt)) != h.params.SaltLen //nolint:gosec // G115: salt length always fits uint32
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, hash []byte, params HashParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKB, &params.Time, &params.Threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, params, nil
}
