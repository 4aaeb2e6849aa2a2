// Package secret encrypts credential fields before they are persisted.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/shawn/vesta-provisioner/internal/provision"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrDecrypt = errors.New("secret: cannot decrypt value")

// Box seals and opens values with a key derived from a passphrase.
type Box struct {
	key [32]byte
}

func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("secret: empty passphrase")
	}
	return &Box{key: sha256.Sum256([]byte(passphrase))}, nil
}

// Seal returns base64(nonce || ciphertext).
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// SealFields returns a copy of fields with every Encrypted value sealed.
func (b *Box) SealFields(fields provision.Fields) (provision.Fields, error) {
	return b.mapEncrypted(fields, b.Seal)
}

// OpenFields reverses SealFields.
func (b *Box) OpenFields(fields provision.Fields) (provision.Fields, error) {
	return b.mapEncrypted(fields, b.Open)
}

func (b *Box) mapEncrypted(fields provision.Fields, fn func(string) (string, error)) (provision.Fields, error) {
	out := make(provision.Fields, len(fields))
	for i, f := range fields {
		if f.Encrypted && f.Value != "" {
			v, err := fn(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Key, err)
			}
			f.Value = v
		}
		out[i] = f
	}
	return out, nil
}
