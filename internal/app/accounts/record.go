package accounts

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Digest is a 256-bit password digest, hex encoded when persisted.
type Digest [32]byte

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	if hex.DecodedLen(len(b)) != len(d) {
		return fmt.Errorf("%w: digest length %d", ErrCorruptStore, len(b))
	}
	if _, err := hex.Decode(d[:], b); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return nil
}

// Equal compares in constant time.
func (d Digest) Equal(o Digest) bool {
	return subtle.ConstantTimeCompare(d[:], o[:]) == 1
}

// UserRecord is one registered account. Records are immutable once stored.
type UserRecord struct {
	Username     string `json:"username"`
	PasswordHash Digest `json:"password_hash"`
	RegisteredOn string `json:"registered_on"` // yyyy-mm-dd
}

// Hasher turns a plaintext password into the stored digest.
type Hasher interface {
	Hash(password string) Digest
}

// Blake2b is an unsalted BLAKE2b-256 digest. Demo grade: it keeps the
// on-disk format simple and deterministic, not resistant to offline guessing.
type Blake2b struct{}

func (Blake2b) Hash(password string) Digest {
	return blake2b.Sum256([]byte(password))
}
