// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
)

func TestUpdatePlain(t *testing.T) {
	b := testBuilder(testSigner(t))
	img, err := b.Build(testPayload(7000))
	require.NoError(t, err)

	st, _, storage := newSlots(t, img)
	copy(storage, []byte("stale primary contents"))
	l, err := NewLoader(testConfig(t, b.Signer))
	require.NoError(t, err)
	res, err := l.Update(st, nil)
	require.NoError(t, err)
	require.False(t, res.Decompressed)
	require.Equal(t, uint64(len(img)), res.Size)
	require.Equal(t, img, storage[:len(img)])
}

func TestUpdateCompressed(t *testing.T) {
	b := testBuilder(testSigner(t))
	payload := testPayload(30000)
	img, err := b.BuildCompressed(payload, testCompressor)
	require.NoError(t, err)
	plain, err := b.Build(payload)
	require.NoError(t, err)

	cfg := testConfig(t, b.Signer)
	cfg.RollbackProtection = true
	counters := NewMemCounters()
	cfg.SecurityCounters = counters
	st, _, storage := newSlots(t, img)
	l, err := NewLoader(cfg)
	require.NoError(t, err)
	res, err := l.Update(st, nil)
	require.NoError(t, err)
	require.True(t, res.Decompressed)
	require.Equal(t, uint64(len(plain)), res.Size)
	require.Equal(t, uint32(len(payload)), res.Header.ImgSize)
	require.Zero(t, res.Header.Flags&image.CompressionFlags)
	require.Equal(t, plain, storage[:len(plain)])

	cnt, err := counters.Get(0)
	require.NoError(t, err)
	require.Equal(t, uint32(5), cnt)
}

func TestUpdateRejectedLeavesPrimaryUntouched(t *testing.T) {
	b := testBuilder(testSigner(t))
	img, err := b.BuildCompressed(testPayload(5000), testCompressor)
	require.NoError(t, err)
	img[len(img)-1] ^= 0xff

	st, _, storage := newSlots(t, img)
	old := []byte("running image")
	copy(storage, old)
	l, err := NewLoader(testConfig(t, b.Signer))
	require.NoError(t, err)
	_, err = l.Update(st, nil)
	requireRejected(t, err, StageCheckCompressedSignature, ErrSignature)
	require.Equal(t, old, storage[:len(old)])
}

func TestUpdateDecompressedHashMismatch(t *testing.T) {
	b := testBuilder(testSigner(t))
	c := &mangledCompressor{mangle: func(p []byte) []byte {
		p[1234] ^= 0x80
		return p
	}}
	img, err := b.BuildCompressed(testPayload(20000), c)
	require.NoError(t, err)

	st, _, storage := newSlots(t, img)
	copy(storage, []byte("running image"))
	before := append([]byte{}, storage[:testSlotSize]...)
	l, err := NewLoader(testConfig(t, b.Signer))
	require.NoError(t, err)
	_, err = l.Update(st, nil)
	requireRejected(t, err, StageCheckDecompressedHash, ErrHashMismatch)
	require.Equal(t, before, storage[:testSlotSize])
}

func TestUpdateTooLarge(t *testing.T) {
	b := testBuilder(nil)
	// Compresses to a fraction of the slot but does not fit decompressed.
	img, err := b.BuildCompressed(make([]byte, testSlotSize), testCompressor)
	require.NoError(t, err)
	require.Less(t, len(img), testSlotSize)

	st, _, storage := newSlots(t, img)
	l, err := NewLoader(testConfig(t, nil))
	require.NoError(t, err)
	_, err = l.Update(st, nil)
	require.ErrorIs(t, err, ErrBadImage)
	erased, err := flash.IsErased(st.Primary, 0, testSlotSize)
	require.NoError(t, err)
	require.True(t, erased)
	require.Equal(t, byte(flash.DefaultEraseValue), storage[0])
}

func TestUpdateSecurityCounterRollback(t *testing.T) {
	b := testBuilder(testSigner(t))
	img, err := b.BuildCompressed(testPayload(5000), testCompressor)
	require.NoError(t, err)

	cfg := testConfig(t, b.Signer)
	cfg.RollbackProtection = true
	counters := NewMemCounters()
	require.NoError(t, counters.Update(0, 7))
	cfg.SecurityCounters = counters
	st, _, _ := newSlots(t, img)
	l, err := NewLoader(cfg)
	require.NoError(t, err)
	_, err = l.Update(st, nil)
	requireRejected(t, err, StageCheckCompressedSignature, ErrSecurityCounter)
}
