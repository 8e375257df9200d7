// Package secret seals the stored provider API key.
//
// Sealed values look like "v1:" + base64(iv[12] | tag[16] | ciphertext), using
// AES-256-GCM with a key derived as sha256(passphrase).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	prefix  = "v1:"
	ivSize  = 12
	tagSize = 16
)

var (
	ErrMalformed = errors.New("malformed sealed value")
	ErrNoKey     = errors.New("encryption key is not configured")
)

type Box struct {
	aead cipher.AEAD
}

func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrNoKey
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

func (b *Box) Encrypt(plain string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}
	sealed := b.aead.Seal(nil, iv, []byte(plain), nil)
	// Seal appends the tag; the stored layout puts it before the ciphertext.
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	out := make([]byte, 0, ivSize+len(sealed))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return prefix + base64.StdEncoding.EncodeToString(out), nil
}

func (b *Box) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(raw) < ivSize+tagSize {
		return "", ErrMalformed
	}
	iv, tag, ct := raw[:ivSize], raw[ivSize:ivSize+tagSize], raw[ivSize+tagSize:]
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := b.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plain), nil
}
