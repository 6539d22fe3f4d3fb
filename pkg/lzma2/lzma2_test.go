// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lzma2

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testData(size int) []byte {
	rng := rand.New(rand.NewSource(1))
	data := make([]byte, size)
	for i := range data {
		// Mix runs and noise so the encoder emits compressed chunks.
		if i%64 < 48 {
			data[i] = byte(i / 64)
		} else {
			data[i] = byte(rng.Intn(256))
		}
	}
	return data
}

func TestDictSize(t *testing.T) {
	for _, tt := range []struct {
		prop byte
		size uint32
	}{
		{0, 4 << 10},
		{1, 6 << 10},
		{8, 64 << 10},
		{18, 2 << 20},
		{39, 3 << 30},
		{40, 0xffffffff},
	} {
		size, err := DictSize(tt.prop)
		require.NoError(t, err)
		require.Equal(t, tt.size, size, "prop %d", tt.prop)
		require.Equal(t, tt.prop, DictProp(tt.size))
	}
	_, err := DictSize(41)
	var dpErr *ErrDictProp
	require.ErrorAs(t, err, &dpErr)
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader([]byte{8, 0x55})
	require.NoError(t, err)
	require.Equal(t, byte(8), h.DictProp)
	require.Equal(t, []byte{8, 0}, h.Bytes())

	_, err = ParseHeader([]byte{8})
	require.Error(t, err)
	_, err = ParseHeader([]byte{41, 0})
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	for _, size := range []int{0, 1, 4095, 4096, 100000} {
		want := testData(size)
		encoded, err := Encode(want, 8)
		require.NoError(t, err)
		require.Equal(t, byte(8), encoded[0])

		got, err := Decode(encoded)
		require.NoError(t, err)
		require.True(t, bytes.Equal(want, got), "size %d", size)
	}
}

func TestDecodeTruncated(t *testing.T) {
	encoded, err := Encode(testData(20000), 8)
	require.NoError(t, err)
	_, err = Decode(encoded[:len(encoded)-1])
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestArena(t *testing.T) {
	a := NewArena(64 << 10)
	require.NoError(t, a.Alloc(32<<10))
	require.NoError(t, a.Alloc(32<<10))
	require.ErrorIs(t, a.Alloc(1), ErrNoMemory)
	a.Free(32 << 10)
	require.Equal(t, uint64(32<<10), a.InUse())
	a.Free(32 << 10)
	require.Zero(t, a.InUse())
}
