// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
)

func TestAccountingScenario(t *testing.T) {
	img := rawImage(t, image.Header{Flags: image.FlagCompressedLZMA2}, make([]byte, 4096),
		[]image.TLV{
			{Type: image.TLVDecompSHA, Value: make([]byte, 32)},
			{Type: image.TLVDecompSignature, Value: make([]byte, 64)},
		},
		[]image.TLV{
			{Type: image.TLVKeyHash, Value: make([]byte, 32)},
		})
	a, _ := flash.NewMemArea(1, testSlotSize, img)
	hdr := readHdr(t, a)
	cfg := &Config{Hash: image.SHA256, Signature: image.SignatureEd25519}

	for i := 0; i < 2; i++ {
		prot, err := DecompressedProtectedTLVSize(hdr, a)
		require.NoError(t, err)
		require.Zero(t, prot)

		unprot, err := DecompressedUnprotectedTLVSize(cfg, hdr, a)
		require.NoError(t, err)
		require.Equal(t, uint16(4+4+32+4+32+4+64), unprot)
	}
}

func TestAccountingDropsCompressedDigests(t *testing.T) {
	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, 16384)
	img := rawImage(t, image.Header{Flags: image.FlagCompressedLZMA2}, make([]byte, 100),
		[]image.TLV{
			{Type: image.TLVDependency, Value: make([]byte, 12)},
			{Type: image.TLVDecompSize, Value: size},
			{Type: image.TLVDecompSHA, Value: make([]byte, 32)},
			{Type: image.TLVDecompSignature, Value: make([]byte, 64)},
		},
		[]image.TLV{
			{Type: image.TLVSHA256, Value: make([]byte, 32)},
			{Type: image.TLVKeyHash, Value: make([]byte, 32)},
			{Type: image.TLVEd25519, Value: make([]byte, 64)},
			{Type: image.TLVCompDecSize, Value: make([]byte, 4)},
			{Type: image.TLVBootRecord, Value: make([]byte, 10)},
		})
	a, _ := flash.NewMemArea(1, testSlotSize, img)
	hdr := readHdr(t, a)
	cfg := &Config{Hash: image.SHA256, Signature: image.SignatureEd25519}

	prot, err := DecompressedProtectedTLVSize(hdr, a)
	require.NoError(t, err)
	require.Equal(t, uint16(4+16), prot)

	unprot, err := DecompressedUnprotectedTLVSize(cfg, hdr, a)
	require.NoError(t, err)
	require.Equal(t, uint16(4+36+36+68+14), unprot)

	plan, err := unprotectedPlan(cfg, hdr, a)
	require.NoError(t, err)
	var types []image.TLVType
	for _, c := range plan {
		types = append(types, c.typ)
	}
	require.Equal(t, []image.TLVType{image.TLVSHA256, image.TLVKeyHash, image.TLVEd25519, image.TLVBootRecord}, types)
	require.True(t, plan[0].src.Offset < uint32(hdr.TLVOffset())+uint32(hdr.ProtectTLVSize))

	dsize, err := DecompressedImageSize(hdr, a)
	require.NoError(t, err)
	require.Equal(t, uint32(16384), dsize)

	dhdr, err := DecompressedHeader(hdr, a)
	require.NoError(t, err)
	require.Equal(t, uint32(16384), dhdr.ImgSize)
	require.Equal(t, prot, dhdr.ProtectTLVSize)
	require.False(t, dhdr.IsCompressed())
}

func TestAccountingSignatureByType(t *testing.T) {
	prot := []image.TLV{
		{Type: image.TLVDecompSHA, Value: make([]byte, 32)},
		{Type: image.TLVDecompSignature, Value: make([]byte, 64)},
	}
	for _, tt := range []struct {
		name   string
		unprot []image.TLV
		sig    image.SignatureScheme
		want   []image.TLVType
	}{
		{"unsigned config", []image.TLV{
			{Type: image.TLVSHA256, Value: make([]byte, 32)},
			{Type: image.TLVEd25519, Value: make([]byte, 64)},
		}, image.SignatureNone, []image.TLVType{image.TLVSHA256, image.TLVEd25519}},
		{"other scheme", []image.TLV{
			{Type: image.TLVSHA256, Value: make([]byte, 32)},
			{Type: image.TLVECDSASig, Value: make([]byte, 72)},
		}, image.SignatureEd25519, []image.TLVType{image.TLVSHA256, image.TLVECDSASig}},
		{"stale signatures", []image.TLV{
			{Type: image.TLVSHA256, Value: make([]byte, 32)},
			{Type: image.TLVEd25519, Value: make([]byte, 64)},
			{Type: image.TLVEd25519, Value: make([]byte, 64)},
		}, image.SignatureEd25519, []image.TLVType{image.TLVSHA256, image.TLVEd25519}},
		{"no record unsigned", []image.TLV{
			{Type: image.TLVSHA256, Value: make([]byte, 32)},
		}, image.SignatureNone, []image.TLVType{image.TLVSHA256}},
		{"no record signed", []image.TLV{
			{Type: image.TLVSHA256, Value: make([]byte, 32)},
		}, image.SignatureEd25519, []image.TLVType{image.TLVSHA256, image.TLVEd25519}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			img := rawImage(t, image.Header{Flags: image.FlagCompressedLZMA2}, make([]byte, 100), prot, tt.unprot)
			a, _ := flash.NewMemArea(1, testSlotSize, img)
			hdr := readHdr(t, a)
			cfg := &Config{Hash: image.SHA256, Signature: tt.sig}

			plan, err := unprotectedPlan(cfg, hdr, a)
			require.NoError(t, err)
			var types []image.TLVType
			for _, c := range plan {
				require.NotEqual(t, image.TLVDecompSignature, c.typ)
				types = append(types, c.typ)
			}
			require.Equal(t, tt.want, types)
		})
	}
}

func TestDecompressedImageSizeErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		prot []image.TLV
	}{
		{"missing", []image.TLV{{Type: image.TLVDecompSHA, Value: make([]byte, 32)}}},
		{"short", []image.TLV{{Type: image.TLVDecompSize, Value: make([]byte, 2)}}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			img := rawImage(t, image.Header{Flags: image.FlagCompressedLZMA2}, make([]byte, 10), tt.prot, nil)
			a, _ := flash.NewMemArea(1, testSlotSize, img)
			_, err := DecompressedImageSize(readHdr(t, a), a)
			require.ErrorIs(t, err, ErrTLVIteration)
		})
	}
}

func TestAccountingMalformed(t *testing.T) {
	img := rawImage(t, image.Header{}, make([]byte, 10),
		[]image.TLV{{Type: image.TLVDecompSize, Value: make([]byte, 4)}}, nil)
	// Corrupt the protected info magic.
	img[image.HeaderSize+10] = 0
	a, _ := flash.NewMemArea(1, testSlotSize, img)
	hdr := readHdr(t, a)

	_, err := DecompressedProtectedTLVSize(hdr, a)
	require.True(t, errors.Is(err, ErrTLVIteration))
	_, err = DecompressedUnprotectedTLVSize(&Config{}, hdr, a)
	require.True(t, errors.Is(err, ErrTLVIteration))
}
