// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of the store master key.
const KeySize = 32

// sealedVersion is the first byte of every encrypted blob. It is also
// part of the additional authenticated data.
const sealedVersion byte = 0x01

// sealedOverhead is version + XChaCha20 nonce + Poly1305 tag.
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoNamespace prefixes the HKDF info for per-namespace keys.
var hkdfInfoNamespace = []byte("raptorcast.provenance.namespace.v1:")

// sealer encrypts stored values at rest. Each namespace gets its own
// key derived from the master key, and the ciphertext is bound to its
// namespace and key through the AAD, so a blob copied to another entry
// fails to open.
type sealer struct {
	masterKey []byte
}

// ParseKey decodes a 64-character hex master key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func newSealer(masterKey []byte) (*sealer, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	return &sealer{masterKey: append([]byte(nil), masterKey...)}, nil
}

func (s *sealer) seal(plaintext []byte, namespace, key string) ([]byte, error) {
	aead, err := s.aead(namespace)
	if err != nil {
		return nil, err
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+len(nonce), sealedOverhead+len(plaintext))
	output[0] = sealedVersion
	copy(output[1:], nonce[:])
	return aead.Seal(output, nonce[:], plaintext, buildAAD(sealedVersion, namespace, key)), nil
}

func (s *sealer) open(blob []byte, namespace, key string) ([]byte, error) {
	if len(blob) < sealedOverhead {
		return nil, fmt.Errorf("encrypted value is %d bytes, minimum is %d", len(blob), sealedOverhead)
	}
	if blob[0] != sealedVersion {
		return nil, fmt.Errorf("encrypted value version %d is not supported", blob[0])
	}
	aead, err := s.aead(namespace)
	if err != nil {
		return nil, err
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], buildAAD(blob[0], namespace, key))
	if err != nil {
		return nil, fmt.Errorf("decrypting %s/%s (wrong key or tampered value): %w", namespace, key, err)
	}
	return plaintext, nil
}

// aead derives the namespace key with HKDF-SHA256 and returns the
// cipher. Derivation is cheap next to a store round trip, so keys are
// not cached.
func (s *sealer) aead(namespace string) (cipher.AEAD, error) {
	info := append(append([]byte(nil), hkdfInfoNamespace...), namespace...)
	reader := hkdf.New(sha256.New, s.masterKey, nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("deriving key for namespace %s: %w", namespace, err)
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return aead, nil
}

// buildAAD is version || namespace || 0x00 || key.
func buildAAD(version byte, namespace, key string) []byte {
	aad := make([]byte, 0, 2+len(namespace)+len(key))
	aad = append(aad, version)
	aad = append(aad, namespace...)
	aad = append(aad, 0)
	return append(aad, key...)
}
