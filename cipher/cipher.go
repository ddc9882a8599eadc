// Package cipher implements the built-in cipher registry: an explicit
// collaborator rather than process-wide global state. It is a small map
// from cipher_id string to a Cipher, passed to the Instance at
// construction (see storage.NewInstance). Two built-ins: "none" (identity,
// used by tests) and "chacha20poly1305" (real AEAD, built on
// golang.org/x/crypto).
package cipher

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"io"

	"crypto/sha256"
)

// Cipher seals/opens column block payloads end-to-end.
type Cipher interface {
	// ID is the registry key this cipher was looked up under.
	ID() string
	// Seal encrypts plaintext under key, returning a self-describing
	// ciphertext (nonce prefix included where applicable).
	Seal(key, plaintext []byte) ([]byte, error)
	// Open is Seal's inverse.
	Open(key, ciphertext []byte) ([]byte, error)
	// KeyLen is the key length in bytes this cipher expects from
	// DeriveKey.
	KeyLen() int
}

// ErrUnknownCipher is a DDL-time user-visible error raised when
// a CREATE DATABASE names a cipher_id not present in the registry.
type ErrUnknownCipher struct{ ID string }

func (e *ErrUnknownCipher) Error() string { return fmt.Sprintf("cipher: unknown cipher id %q", e.ID) }

// Registry maps cipher_id to a Cipher implementation.
type Registry struct {
	ciphers map[string]Cipher
}

// NewRegistry returns a registry pre-populated with the two built-ins.
func NewRegistry() *Registry {
	r := &Registry{ciphers: make(map[string]Cipher)}
	r.Register(None{})
	r.Register(NewChaCha20Poly1305())
	return r
}

func (r *Registry) Register(c Cipher) { r.ciphers[c.ID()] = c }

func (r *Registry) Lookup(id string) (Cipher, error) {
	c, ok := r.ciphers[id]
	if !ok {
		return nil, &ErrUnknownCipher{ID: id}
	}
	return c, nil
}

// None is the identity cipher used by tests and any database created with
// CIPHER_ID='none'.
type None struct{}

func (None) ID() string                                { return "none" }
func (None) KeyLen() int                                { return 0 }
func (None) Seal(_, plaintext []byte) ([]byte, error)   { return plaintext, nil }
func (None) Open(_, ciphertext []byte) ([]byte, error)  { return ciphertext, nil }

// ChaCha20Poly1305 is the real AEAD built-in: a random 12-byte nonce is
// prefixed to the ciphertext.
type ChaCha20Poly1305 struct{}

func NewChaCha20Poly1305() ChaCha20Poly1305 { return ChaCha20Poly1305{} }

func (ChaCha20Poly1305) ID() string     { return "chacha20poly1305" }
func (ChaCha20Poly1305) KeyLen() int    { return chacha20poly1305.KeySize }

func (ChaCha20Poly1305) Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, out...), nil
}

func (ChaCha20Poly1305) Open(key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("cipher: ciphertext shorter than nonce")
	}
	return aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}

// DeriveKey derives a per-database symmetric key from a stored key seed via
// HKDF-SHA256.
func DeriveKey(seed []byte, keyLen int, info string) ([]byte, error) {
	if keyLen == 0 {
		return nil, nil
	}
	h := hkdf.New(sha256.New, seed, nil, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewKeySeed generates a fresh random key seed for a new database.
func NewKeySeed() ([]byte, error) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, err
	}
	return seed, nil
}
