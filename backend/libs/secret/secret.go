// Package secret seals short credentials (portal passwords) so they can live in config files.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrOpenFailed is returned when a sealed value cannot be authenticated with the key.
var ErrOpenFailed = errors.New("secret: open failed")

// Key is a secretbox key.
type Key [keySize]byte

// ParseKey decodes a base64 (standard encoding) 32-byte key.
func ParseKey(encoded string) (Key, error) {
	var key Key
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return key, fmt.Errorf("secret: decode key: %w", err)
	}
	if len(raw) != keySize {
		return key, fmt.Errorf("secret: key must be %d bytes, got %d", keySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// GenerateKey returns a random key.
func GenerateKey() (Key, error) {
	var key Key
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("secret: generate key: %w", err)
	}
	return key, nil
}

// String returns the base64 form accepted by ParseKey.
func (k Key) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Seal encrypts plaintext and returns base64(nonce || box).
func Seal(key Key, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secret: generate nonce: %w", err)
	}
	k := [keySize]byte(key)
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &k)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func Open(key Key, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", fmt.Errorf("secret: decode sealed value: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrOpenFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	k := [keySize]byte(key)
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k)
	if !ok {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}
