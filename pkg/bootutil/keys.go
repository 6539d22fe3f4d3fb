// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"os"
	"sync"

	"github.com/linuxboot/mcuimg/pkg/fih"
	"github.com/linuxboot/mcuimg/pkg/image"
)

// KeySet holds the encoded public keys images may be signed with.
type KeySet struct {
	keys [][]byte
}

// NewKeySet returns a key set holding keys, encoded with
// image.EncodePublicKey.
func NewKeySet(keys ...[]byte) *KeySet {
	return &KeySet{keys: keys}
}

// LoadKeySet reads PEM encoded keys.
func LoadKeySet(paths ...string) (*KeySet, error) {
	ks := NewKeySet()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		key, err := image.ParsePublicKey(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		ks.Add(key)
	}
	return ks, nil
}

// Add appends a key.
func (k *KeySet) Add(key []byte) {
	k.keys = append(k.keys, key)
}

// Len returns the number of keys.
func (k *KeySet) Len() int {
	return len(k.keys)
}

// Key returns the key at index i.
func (k *KeySet) Key(i int) []byte {
	return k.keys[i]
}

// FindByHash returns the key whose hash starts with keyHash.
func (k *KeySet) FindByHash(h image.HashAlgorithm, keyHash []byte) ([]byte, fih.Ret) {
	for _, key := range k.keys {
		d := h.New()
		d.Write(key)
		sum := d.Sum(nil)
		if len(keyHash) > len(sum) {
			continue
		}
		if fih.MemEqual(sum[:len(keyHash)], keyHash).IsSuccess() {
			return key, fih.Success
		}
	}
	return nil, fih.Failure
}

// HardwareKeys returns the provisioned hash of the key an image must be
// signed with.
type HardwareKeys interface {
	KeyHash(imageIndex int) ([]byte, error)
}

// StaticHardwareKey provisions the same key hash for every image.
type StaticHardwareKey []byte

// KeyHash implements HardwareKeys.
func (s StaticHardwareKey) KeyHash(int) ([]byte, error) {
	return s, nil
}

// SecurityCounters stores the rollback protection counters.
type SecurityCounters interface {
	Get(imageIndex int) (uint32, error)
	Update(imageIndex int, value uint32) error
}

// MemCounters keeps the counters in memory.
type MemCounters struct {
	mu       sync.Mutex
	counters map[int]uint32
}

// NewMemCounters returns counters which all start at zero.
func NewMemCounters() *MemCounters {
	return &MemCounters{counters: map[int]uint32{}}
}

// Get implements SecurityCounters.
func (m *MemCounters) Get(imageIndex int) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[imageIndex], nil
}

// Update implements SecurityCounters. Counters never decrease.
func (m *MemCounters) Update(imageIndex int, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value < m.counters[imageIndex] {
		return fmt.Errorf("security counter of image %d cannot go back from %d to %d", imageIndex, m.counters[imageIndex], value)
	}
	m.counters[imageIndex] = value
	return nil
}

// verifySignature checks sig over digest with the encoded public key.
func verifySignature(scheme image.SignatureScheme, h image.HashAlgorithm, key, digest, sig []byte) fih.Ret {
	pub, err := image.DecodePublicKey(key)
	if err != nil {
		return fih.Failure
	}
	switch scheme {
	case image.SignatureRSA2048PSS, image.SignatureRSA3072PSS:
		k, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fih.Failure
		}
		if s, err := image.SchemeForKey(k); err != nil || s != scheme {
			return fih.Failure
		}
		err := rsa.VerifyPSS(k, h.CryptoHash(), digest, sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		return fih.FromBool(err == nil)
	case image.SignatureECDSAP256, image.SignatureECDSAP384:
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fih.Failure
		}
		want := elliptic.P256()
		if scheme == image.SignatureECDSAP384 {
			want = elliptic.P384()
		}
		if k.Curve != want {
			return fih.Failure
		}
		return fih.FromBool(ecdsa.VerifyASN1(k, digest, sig))
	case image.SignatureEd25519:
		k, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fih.Failure
		}
		return fih.FromBool(ed25519.Verify(k, digest, sig))
	}
	return fih.Failure
}
