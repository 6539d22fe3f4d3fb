// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// HashAlgorithm selects the digest protecting an image.
type HashAlgorithm int

// Supported hash algorithms.
const (
	SHA256 HashAlgorithm = iota
	SHA384
	SHA512
)

var hashNames = map[HashAlgorithm]string{
	SHA256: "sha256",
	SHA384: "sha384",
	SHA512: "sha512",
}

func (h HashAlgorithm) String() string {
	if name, ok := hashNames[h]; ok {
		return name
	}
	return fmt.Sprintf("HashAlgorithm(%d)", int(h))
}

// ParseHashAlgorithm parses a hash algorithm name.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	for h, name := range hashNames {
		if strings.EqualFold(s, name) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown hash algorithm %q", s)
}

// UnmarshalYAML accepts the algorithm name.
func (h *HashAlgorithm) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseHashAlgorithm(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// MarshalYAML writes the algorithm name.
func (h HashAlgorithm) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// TLVType returns the type of the record holding the image digest.
func (h HashAlgorithm) TLVType() TLVType {
	switch h {
	case SHA384:
		return TLVSHA384
	case SHA512:
		return TLVSHA512
	}
	return TLVSHA256
}

// CryptoHash returns the matching crypto.Hash.
func (h HashAlgorithm) CryptoHash() crypto.Hash {
	switch h {
	case SHA384:
		return crypto.SHA384
	case SHA512:
		return crypto.SHA512
	}
	return crypto.SHA256
}

// Size returns the digest size in bytes.
func (h HashAlgorithm) Size() int {
	return h.CryptoHash().Size()
}

// New returns a fresh hash.
func (h HashAlgorithm) New() hash.Hash {
	switch h {
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	}
	return sha256.New()
}

// SignatureScheme selects how image digests are signed.
type SignatureScheme int

// Supported signature schemes. SignatureNone validates the digest only.
const (
	SignatureNone SignatureScheme = iota
	SignatureRSA2048PSS
	SignatureRSA3072PSS
	SignatureECDSAP256
	SignatureECDSAP384
	SignatureEd25519
)

var signatureNames = map[SignatureScheme]string{
	SignatureNone:       "none",
	SignatureRSA2048PSS: "rsa2048-pss",
	SignatureRSA3072PSS: "rsa3072-pss",
	SignatureECDSAP256:  "ecdsa-p256",
	SignatureECDSAP384:  "ecdsa-p384",
	SignatureEd25519:    "ed25519",
}

func (s SignatureScheme) String() string {
	if name, ok := signatureNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SignatureScheme(%d)", int(s))
}

// ParseSignatureScheme parses a signature scheme name.
func ParseSignatureScheme(str string) (SignatureScheme, error) {
	for s, name := range signatureNames {
		if strings.EqualFold(str, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown signature scheme %q", str)
}

// UnmarshalYAML accepts the scheme name.
func (s *SignatureScheme) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	v, err := ParseSignatureScheme(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalYAML writes the scheme name.
func (s SignatureScheme) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// TLVType returns the type of the record holding the signature. It is zero
// for SignatureNone.
func (s SignatureScheme) TLVType() TLVType {
	switch s {
	case SignatureRSA2048PSS:
		return TLVRSA2048PSS
	case SignatureRSA3072PSS:
		return TLVRSA3072PSS
	case SignatureECDSAP256, SignatureECDSAP384:
		return TLVECDSASig
	case SignatureEd25519:
		return TLVEd25519
	}
	return 0
}

// CheckLength validates the length of a signature record.
func (s SignatureScheme) CheckLength(n int) error {
	var ok bool
	switch s {
	case SignatureRSA2048PSS:
		ok = n == 256
	case SignatureRSA3072PSS:
		ok = n == 384
	case SignatureECDSAP256, SignatureECDSAP384:
		ok = n > 0 && n <= 128
	case SignatureEd25519:
		ok = n == 64
	}
	if !ok {
		return fmt.Errorf("invalid %v signature length %d", s, n)
	}
	return nil
}
