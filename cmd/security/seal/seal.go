// Package seal encrypts small blobs at rest.
//
// Sealed blobs are text: a version prefix followed by base64url(nonce || ciphertext).
// The AEAD is XChaCha20-Poly1305; the key is derived from an operator secret with
// HKDF-SHA256, so any secret of at least MinSecretBytes works as input.
package seal

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretBytes is the minimum accepted operator secret length.
	MinSecretBytes = 32

	prefix  = "skws1."
	hkdfCtx = "skywidget session blob v1"
)

var (
	// ErrSecretTooShort is returned when the operator secret is shorter than MinSecretBytes.
	ErrSecretTooShort = errors.New("seal: secret too short")

	// ErrNotSealed is returned by Open when the blob lacks the sealed prefix.
	ErrNotSealed = errors.New("seal: blob is not sealed")

	// ErrOpen is returned when a sealed blob fails to decode or authenticate.
	ErrOpen = errors.New("seal: cannot open blob")
)

// Sealer seals and opens blobs with one derived key.
type Sealer struct {
	aead cipher.AEAD
}

// New derives a key from secret and returns a Sealer.
func New(secret []byte) (*Sealer, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfCtx)), key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: init aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plain and returns the text form.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}

	raw := s.aead.Seal(nonce, nonce, plain, []byte(prefix))

	out := make([]byte, len(prefix)+base64.RawURLEncoding.EncodedLen(len(raw)))
	copy(out, prefix)
	base64.RawURLEncoding.Encode(out[len(prefix):], raw)
	return out, nil
}

// Open reverses Seal.
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	blob = bytes.TrimSpace(blob)
	if !IsSealed(blob) {
		return nil, ErrNotSealed
	}

	enc := blob[len(prefix):]
	raw := make([]byte, base64.RawURLEncoding.DecodedLen(len(enc)))
	n, err := base64.RawURLEncoding.Decode(raw, enc)
	if err != nil {
		return nil, ErrOpen
	}
	raw = raw[:n]

	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, ErrOpen
	}

	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(prefix))
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

// IsSealed reports whether blob carries the sealed prefix.
func IsSealed(blob []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(blob), []byte(prefix))
}
