package sealer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const prefix = "sb1:"

var ErrCorrupt = errors.New("sealed value is corrupt or was sealed with another key")

// Sealer encrypts OAuth tokens before they reach the database.
// The zero value (and nil) pass values through unchanged.
type Sealer struct {
	key *[32]byte
}

// New derives a secretbox key from secret. An empty secret disables sealing.
func New(secret string) *Sealer {
	if secret == "" {
		return &Sealer{}
	}
	key := sha256.Sum256([]byte(secret))
	return &Sealer{key: &key}
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || s.key == nil || plaintext == "" {
		return plaintext, nil
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return prefix + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is,
// so rows written before a key was configured stay readable.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if s == nil || s.key == nil {
		return "", fmt.Errorf("%w: no key configured", ErrCorrupt)
	}

	box, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(box) < 24+secretbox.Overhead {
		return "", ErrCorrupt
	}

	var nonce [24]byte
	copy(nonce[:], box[:24])
	out, ok := secretbox.Open(nil, box[24:], &nonce, s.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(out), nil
}
