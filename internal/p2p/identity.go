package p2p

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	"p2p-directory/internal/netx"
)

// Identity is the node's Noise static keypair. ID is the hex public key and is
// what remote peers see as this node's PeerID.
type Identity struct {
	NoisePriv [32]byte
	NoisePub  [32]byte
	ID        netx.PeerID
}

var ErrBadIdentityFile = errors.New("bad identity file")

// PeerIDFromPub derives the canonical peer ID from a Noise static public key.
func PeerIDFromPub(pub []byte) netx.PeerID {
	return netx.PeerID(hex.EncodeToString(pub))
}

func NewIdentity() (*Identity, error) {
	kp, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, err
	}
	return identityFromKeys(kp.Private, kp.Public)
}

func identityFromPriv(priv []byte) (*Identity, error) {
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return identityFromKeys(priv, pub)
}

func identityFromKeys(priv, pub []byte) (*Identity, error) {
	if len(priv) != 32 || len(pub) != 32 {
		return nil, fmt.Errorf("%w: key length", ErrBadIdentityFile)
	}
	id := &Identity{ID: PeerIDFromPub(pub)}
	copy(id.NoisePriv[:], priv)
	copy(id.NoisePub[:], pub)
	return id, nil
}

// LoadOrCreateIdentity reads a hex private key from path, or generates and
// saves a new one (mode 0600) when the file does not exist.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		priv, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(priv) != 32 {
			return nil, fmt.Errorf("%w: %s", ErrBadIdentityFile, path)
		}
		return identityFromPriv(priv)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	id, err := NewIdentity()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(id.NoisePriv[:])+"\n"), 0o600); err != nil {
		return nil, err
	}
	return id, nil
}
