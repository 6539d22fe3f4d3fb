// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// Signer signs image digests.
type Signer struct {
	Scheme SignatureScheme
	Key    crypto.Signer

	// Rand is the entropy source, crypto/rand if nil.
	Rand io.Reader
}

// SchemeForKey returns the signature scheme matching a public key.
func SchemeForKey(pub crypto.PublicKey) (SignatureScheme, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		switch k.Size() {
		case 256:
			return SignatureRSA2048PSS, nil
		case 384:
			return SignatureRSA3072PSS, nil
		}
		return 0, fmt.Errorf("unsupported RSA key size %d", k.Size()*8)
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return SignatureECDSAP256, nil
		case elliptic.P384():
			return SignatureECDSAP384, nil
		}
		return 0, fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
	case ed25519.PublicKey:
		return SignatureEd25519, nil
	}
	return 0, fmt.Errorf("unsupported key type %T", pub)
}

// NewSigner returns a signer for key, picking the scheme from its type.
func NewSigner(key crypto.Signer) (*Signer, error) {
	scheme, err := SchemeForKey(key.Public())
	if err != nil {
		return nil, err
	}
	return &Signer{Scheme: scheme, Key: key}, nil
}

// PublicKeyBytes returns the encoded public key, as stored in key sets and
// hashed into KEYHASH records.
func (s *Signer) PublicKeyBytes() ([]byte, error) {
	return EncodePublicKey(s.Key.Public())
}

// Sign signs the digest computed with h.
func (s *Signer) Sign(digest []byte, h HashAlgorithm) ([]byte, error) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	var opts crypto.SignerOpts
	switch s.Scheme {
	case SignatureRSA2048PSS, SignatureRSA3072PSS:
		opts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h.CryptoHash()}
	case SignatureECDSAP256, SignatureECDSAP384:
		opts = h.CryptoHash()
	case SignatureEd25519:
		// The digest is the message.
		opts = crypto.Hash(0)
	default:
		return nil, fmt.Errorf("cannot sign with scheme %v", s.Scheme)
	}
	return s.Key.Sign(r, digest, opts)
}

// EncodePublicKey encodes a public key: PKCS#1 for RSA, PKIX for the others.
func EncodePublicKey(pub crypto.PublicKey) ([]byte, error) {
	if k, ok := pub.(*rsa.PublicKey); ok {
		return x509.MarshalPKCS1PublicKey(k), nil
	}
	return x509.MarshalPKIXPublicKey(pub)
}

// DecodePublicKey is the inverse of EncodePublicKey.
func DecodePublicKey(b []byte) (crypto.PublicKey, error) {
	if k, err := x509.ParsePKCS1PublicKey(b); err == nil {
		return k, nil
	}
	return x509.ParsePKIXPublicKey(b)
}

var errNoPEM = errors.New("no PEM block found")

// ParsePrivateKey parses a PEM encoded PKCS#8, PKCS#1 or SEC 1 private key.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errNoPEM
	}
	var key interface{}
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("key of type %T cannot sign", key)
	}
	return signer, nil
}

// ParsePublicKey parses a PEM encoded public key (or the public half of a
// private key) and returns it encoded with EncodePublicKey.
func ParsePublicKey(data []byte) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errNoPEM
	}
	var pub crypto.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub = k
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub = k
	default:
		priv, err := ParsePrivateKey(data)
		if err != nil {
			return nil, err
		}
		pub = priv.Public()
	}
	return EncodePublicKey(pub)
}
