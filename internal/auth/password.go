package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost settings. 64 MiB with 3 passes and a single lane keeps a
// hash around 50ms on the Pi-class hardware the relay targets.
const (
	hashMemoryKiB = 64 * 1024
	hashPasses    = 3
	hashLanes     = 1
	hashSaltSize  = 16
	hashKeySize   = 32
)

// phcHash holds the decoded pieces of a stored password hash. The key size
// is taken from the stored hash rather than the current constants, so
// hashes written under older settings keep verifying.
type phcHash struct {
	salt   []byte
	key    []byte
	memory uint32
	passes uint32
	lanes  uint8
}

// HashPassword derives an Argon2id hash of password under a fresh random
// salt and encodes it as a PHC string
// ($argon2id$v=19$m=...,t=...,p=...$salt$key, base64 without padding).
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, hashPasses, hashMemoryKiB, hashLanes, hashKeySize)

	b64 := base64.RawStdEncoding
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemoryKiB, hashPasses, hashLanes,
		b64.EncodeToString(salt), b64.EncodeToString(key))

	return encoded, nil
}

// VerifyPassword re-derives the key for password using the parameters
// embedded in encoded and compares in constant time. A malformed or
// foreign-algorithm hash is an error, not a mismatch.
func VerifyPassword(password, encoded string) (bool, error) {
	stored, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	keyLen := uint32(len(stored.key)) //nolint:gosec // decoded key length fits uint32
	candidate := argon2.IDKey([]byte(password), stored.salt, stored.passes, stored.memory, stored.lanes, keyLen)

	return subtle.ConstantTimeCompare(stored.key, candidate) == 1, nil
}

// parsePHC decodes a $-delimited PHC string produced by HashPassword.
func parsePHC(encoded string) (phcHash, error) {
	var out phcHash

	// Leading $ gives an empty first field: "", argon2id, v=19, params, salt, key.
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 {
		return out, fmt.Errorf("malformed password hash")
	}
	if fields[1] != "argon2id" {
		return out, fmt.Errorf("unsupported hash algorithm %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return out, fmt.Errorf("parsing hash version: %w", err)
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &out.memory, &out.passes, &out.lanes); err != nil {
		return out, fmt.Errorf("parsing hash parameters: %w", err)
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return out, fmt.Errorf("decoding salt: %w", err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return out, fmt.Errorf("decoding key: %w", err)
	}

	return out, nil
}
