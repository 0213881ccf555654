// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package codec implements the payload pipeline: compress, then encrypt.
// The order is fixed; compressing ciphertext is ineffective. Key material
// is supplied by the host session layer and never persisted here.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrNoActiveKey is returned by Encode before the session layer has
	// supplied key material.
	ErrNoActiveKey = errors.New("no active encryption key")

	// ErrUnknownKey is returned by Decode when a blob references a key ID
	// that has been retired past its rotation window.
	ErrUnknownKey = errors.New("unknown encryption key id")
)

// hkdfInfo domain-separates payload keys from any other use of the same
// session material.
const hkdfInfo = "field-sync/payload-v1"

// Keyring holds the AEAD ciphers derived from session key material. During
// a rotation window it retains retired keys so blobs encoded under a
// previous key still decode; retiring a key is the caller's explicit
// action.
type Keyring struct {
	mu     sync.RWMutex
	active byte
	aeads  map[byte]cipher.AEAD
}

func NewKeyring() *Keyring {
	return &Keyring{aeads: make(map[byte]cipher.AEAD)}
}

// SetActive derives an AES-256-GCM cipher from material via HKDF-SHA256 and
// makes keyID the encoding key. Previously installed keys stay available
// for decoding.
func (k *Keyring) SetActive(keyID byte, material []byte) error {
	aead, err := deriveAEAD(keyID, material)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.aeads[keyID] = aead
	k.active = keyID
	return nil
}

// Retire drops a key from the ring, ending its rotation window. Retiring
// the active key also disables encoding until SetActive is called again.
func (k *Keyring) Retire(keyID byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.aeads, keyID)
}

func (k *Keyring) encoder() (byte, cipher.AEAD, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	aead, ok := k.aeads[k.active]
	if !ok {
		return 0, nil, ErrNoActiveKey
	}
	return k.active, aead, nil
}

func (k *Keyring) decoder(keyID byte) (cipher.AEAD, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	aead, ok := k.aeads[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKey, keyID)
	}
	return aead, nil
}

func deriveAEAD(keyID byte, material []byte) (cipher.AEAD, error) {
	if len(material) == 0 {
		return nil, errors.New("empty key material")
	}

	// The key ID salts the derivation so rotating material under the same
	// ID still yields an unrelated key.
	kdf := hkdf.New(sha256.New, material, []byte{keyID}, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
