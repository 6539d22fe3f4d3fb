// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/mcuimg/pkg/compression"
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
)

func testImage(t *testing.T, compressed bool) []byte {
	t.Helper()
	s, err := image.NewSigner(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)))
	require.NoError(t, err)
	b := &image.Builder{HdrSize: 0x20, Hash: image.SHA256, Signer: s}
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i % 13)
	}
	if !compressed {
		img, err := b.Build(payload)
		require.NoError(t, err)
		return img
	}
	img, err := b.BuildCompressed(payload, &compression.LZMA2{DictProp: 8})
	require.NoError(t, err)
	return img
}

func TestImageValid(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		a, _ := flash.NewMemArea(0, 0x4000, testImage(t, compressed))
		hdr, err := Image(a)
		require.NoError(t, err)
		require.Equal(t, compressed, hdr.IsCompressed())
	}
}

func TestImageBadMagic(t *testing.T) {
	a, _ := flash.NewMemArea(0, 0x1000, nil)
	hdr, err := Image(a)
	require.Nil(t, hdr)
	var magic *image.ErrBadMagic
	require.True(t, errors.As(err, &magic))
}

func TestImageOutOfBounds(t *testing.T) {
	img := testImage(t, false)
	a, _ := flash.NewMemArea(0, 0x200, img[:0x200])
	_, err := Image(a)
	var oob *ErrOutOfBounds
	require.True(t, errors.As(err, &oob))
	require.Equal(t, "payload", oob.What)
}

func TestImageCompressionMetadata(t *testing.T) {
	hdr := image.Header{Flags: image.FlagCompressedLZMA2}
	prot := []image.TLV{{Type: image.TLVDecompSize, Value: []byte{1, 2}}}
	unprot := []image.TLV{
		{Type: image.TLVSHA256, Value: make([]byte, 32)},
		{Type: image.TLVEd25519, Value: make([]byte, 64)},
		{Type: image.TLVDecompSHA, Value: make([]byte, 32)},
	}
	err := TLVs(&hdr, prot, unprot)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	// Unprotected DECOMP_SHA, short DECOMP_SIZE, missing DECOMP_SHA and
	// DECOMP_SIGNATURE.
	require.Len(t, merr.Errors, 4)

	hdr.Flags = 0
	err = TLVs(&hdr, prot, nil)
	var misplaced *ErrMisplacedTLV
	require.ErrorAs(t, err, &misplaced)
	require.Equal(t, image.TLVDecompSize, misplaced.Type)
}

func TestFlags(t *testing.T) {
	require.NoError(t, Flags(image.FlagCompressedLZMA2|image.FlagCompressedARMThumb))
	require.Error(t, Flags(image.FlagCompressedLZMA1|image.FlagCompressedLZMA2))
	require.Error(t, Flags(image.FlagEncryptedAES128|image.FlagEncryptedAES256))
	require.Error(t, Flags(image.FlagCompressedARMThumb))
}

func TestBytesRange(t *testing.T) {
	require.NoError(t, BytesRange("x", 10, 0, 10))
	err := BytesRange("x", 10, 8, 4)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 1)
	err = BytesRange("x", 10, 12, 11)
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)
}
