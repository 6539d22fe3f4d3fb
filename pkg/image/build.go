// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/linuxboot/mcuimg/pkg/compression"
)

// Builder assembles signed images.
type Builder struct {
	// LoadAddr, Version and Flags are copied into the header.
	LoadAddr uint32
	Version  Version
	Flags    Flags
	// HdrSize is the size of the header region, HeaderSize if zero. The
	// padding is zero filled.
	HdrSize uint16

	Hash HashAlgorithm
	// Signer signs the image; without one only the digest is stored.
	Signer *Signer
	// PubKey stores the full public key (PUBKEY) instead of its hash
	// (KEYHASH).
	PubKey bool
	// Seed is hashed before the image.
	Seed []byte

	// Protected records are covered by the digest, Unprotected ones are
	// stored before the digest record.
	Protected   []TLV
	Unprotected []TLV
}

type built struct {
	image     []byte
	digest    []byte
	signature []byte
}

func (b *Builder) hdrSize() uint16 {
	if b.HdrSize == 0 {
		return HeaderSize
	}
	return b.HdrSize
}

func protectedSize(tlvs []TLV) (uint16, error) {
	if len(tlvs) == 0 {
		return 0, nil
	}
	size := TLVInfoSize
	for _, t := range tlvs {
		size += t.Size()
	}
	if size > 0xffff {
		return 0, fmt.Errorf("protected TLVs are too large: %d bytes", size)
	}
	return uint16(size), nil
}

func (b *Builder) build(payload []byte, flags Flags, protected []TLV) (*built, error) {
	if b.hdrSize() < HeaderSize {
		return nil, fmt.Errorf("header size %d is smaller than %d", b.hdrSize(), HeaderSize)
	}
	if uint64(len(payload))+uint64(b.hdrSize()) > 0xffffffff {
		return nil, errors.New("payload is too large")
	}
	protSize, err := protectedSize(protected)
	if err != nil {
		return nil, err
	}
	hdr := Header{
		Magic:          Magic,
		LoadAddr:       b.LoadAddr,
		HdrSize:        b.hdrSize(),
		ProtectTLVSize: protSize,
		ImgSize:        uint32(len(payload)),
		Flags:          flags,
		Version:        b.Version,
	}
	raw, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	img := make([]byte, hdr.HdrSize, int(hdr.HdrSize)+len(payload)+int(protSize)+512)
	copy(img, raw)
	img = append(img, payload...)
	if protSize > 0 {
		img = append(img, TLVInfo{Magic: ProtInfoMagic, Tot: protSize}.Bytes()...)
		for _, t := range protected {
			img = t.AppendTo(img)
		}
	}

	h := b.Hash.New()
	h.Write(b.Seed)
	h.Write(img)
	digest := h.Sum(nil)

	unprot := append([]TLV{}, b.Unprotected...)
	unprot = append(unprot, TLV{Type: b.Hash.TLVType(), Value: digest})
	var signature []byte
	if b.Signer != nil {
		pub, err := b.Signer.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		if b.PubKey {
			unprot = append(unprot, TLV{Type: TLVPubKey, Value: pub})
		} else {
			kh := b.Hash.New()
			kh.Write(pub)
			unprot = append(unprot, TLV{Type: TLVKeyHash, Value: kh.Sum(nil)})
		}
		signature, err = b.Signer.Sign(digest, b.Hash)
		if err != nil {
			return nil, fmt.Errorf("unable to sign image: %w", err)
		}
		unprot = append(unprot, TLV{Type: b.Signer.Scheme.TLVType(), Value: signature})
	}
	tot := TLVInfoSize
	for _, t := range unprot {
		tot += t.Size()
	}
	if tot > 0xffff {
		return nil, fmt.Errorf("unprotected TLVs are too large: %d bytes", tot)
	}
	img = append(img, TLVInfo{Magic: InfoMagic, Tot: uint16(tot)}.Bytes()...)
	for _, t := range unprot {
		img = t.AppendTo(img)
	}
	return &built{image: img, digest: digest, signature: signature}, nil
}

// Build returns a plain image holding payload.
func (b *Builder) Build(payload []byte) ([]byte, error) {
	if b.Flags&CompressionFlags != 0 {
		return nil, errors.New("use BuildCompressed for compressed images")
	}
	out, err := b.build(payload, b.Flags, b.Protected)
	if err != nil {
		return nil, err
	}
	return out.image, nil
}

// BuildCompressed returns an LZMA2 compressed image holding payload. The
// digest and signature of the equivalent plain image are stored in
// protected DECOMP_SHA and DECOMP_SIGNATURE records, next to DECOMP_SIZE.
func (b *Builder) BuildCompressed(payload []byte, c compression.Compressor) ([]byte, error) {
	if uint64(len(payload)) > 0xffffffff {
		return nil, errors.New("payload is too large")
	}
	plain, err := b.build(payload, b.Flags&^CompressionFlags, b.Protected)
	if err != nil {
		return nil, err
	}
	encoded, err := c.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to compress payload: %w", err)
	}

	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, uint32(len(payload)))
	protected := append([]TLV{}, b.Protected...)
	protected = append(protected,
		TLV{Type: TLVDecompSize, Value: size},
		TLV{Type: TLVDecompSHA, Value: plain.digest},
	)
	if plain.signature != nil {
		protected = append(protected, TLV{Type: TLVDecompSignature, Value: plain.signature})
	}
	out, err := b.build(encoded, (b.Flags&^CompressionFlags)|FlagCompressedLZMA2, protected)
	if err != nil {
		return nil, err
	}
	return out.image, nil
}
