package auth

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrTokenNotFound is returned by TokenStore.Load when nothing is stored.
var ErrTokenNotFound = errors.New("token not found")

// ErrTokenExpired is returned by TokenStore.Save for a JWT already past its
// expiry.
var ErrTokenExpired = errors.New("token already expired")

// TokenStore persists the login token between runs, as a browser client
// keeps it in localStorage.
type TokenStore interface {
	Save(ctx context.Context, key string, token string) error
	Load(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

const nonceSize = 24

// Sealer encrypts tokens at rest with a key derived from a local secret.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) *Sealer {
	return &Sealer{key: blake2b.Sum256([]byte(secret))}
}

// Seal encrypts plaintext; the nonce is prepended to the box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "read nonce")
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a box produced by Seal.
func (s *Sealer) Open(box []byte) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed token is too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	out, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("sealed token cannot be opened with this secret")
	}
	return out, nil
}
