// password.go

// Argon2id hashing for the users.password_hash column. Stored values are PHC
// strings, so a user's hash carries the cost it was made with and Login can
// upgrade it when hashCost changes.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argonCost is the tunable part of an Argon2id hash.
type argonCost struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// hashCost is applied to every new hash.
var hashCost = argonCost{memory: 64 * 1024, time: 3, threads: 2}

const (
	saltLen = 16
	keyLen  = 32
)

// storedHash is a decoded password_hash value.
type storedHash struct {
	cost argonCost
	salt []byte
	key  []byte
}

func (h storedHash) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.cost.memory, h.cost.time, h.cost.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func parseStoredHash(encoded string) (storedHash, error) {
	var h storedHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return h, fmt.Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return h, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return h, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.cost.memory, &h.cost.time, &h.cost.threads); err != nil {
		return h, fmt.Errorf("parsing hash params: %w", err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("decoding salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("decoding hash: %w", err)
	}
	return h, nil
}

func hashWithCost(password string, cost argonCost) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, cost.time, cost.memory, cost.threads, keyLen)
	return storedHash{cost: cost, salt: salt, key: key}.String(), nil
}

// HashPassword returns a salted Argon2id PHC string for password at hashCost.
func HashPassword(password string) (string, error) {
	return hashWithCost(password, hashCost)
}

// VerifyPassword reports whether password matches encodedHash, using the
// cost recorded in the hash. The comparison is constant-time.
func VerifyPassword(password, encodedHash string) (bool, error) {
	h, err := parseStoredHash(encodedHash)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.cost.time, h.cost.memory, h.cost.threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsRehash reports whether encodedHash was made with a cost other than hashCost.
// Unparseable hashes report false; VerifyPassword already rejects them.
func NeedsRehash(encodedHash string) bool {
	h, err := parseStoredHash(encodedHash)
	return err == nil && h.cost != hashCost
}
