// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"crypto/ed25519"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"github.com/linuxboot/mcuimg/pkg/compression"
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

const testSlotSize = 0x10000

func testSigner(t *testing.T) *image.Signer {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(0x40 + i)
	}
	s, err := image.NewSigner(ed25519.NewKeyFromSeed(seed))
	require.NoError(t, err)
	return s
}

func testConfig(t *testing.T, s *image.Signer) *Config {
	t.Helper()
	cfg := &Config{Hash: image.SHA256}
	if s != nil {
		pub, err := s.PublicKeyBytes()
		require.NoError(t, err)
		cfg.Signature = s.Scheme
		cfg.Keys = NewKeySet(pub)
	}
	require.NoError(t, cfg.SetDefaults())
	require.NoError(t, cfg.Validate())
	return cfg
}

func testBuilder(s *image.Signer) *image.Builder {
	return &image.Builder{
		LoadAddr:  0x20000000,
		Version:   image.Version{Major: 1, Minor: 4, Revision: 2},
		HdrSize:   0x80,
		Hash:      image.SHA256,
		Signer:    s,
		Protected: []image.TLV{{Type: image.TLVSecCnt, Value: []byte{5, 0, 0, 0}}},
	}
}

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte((i / 7) % 251)
	}
	return p
}

var testCompressor = &compression.LZMA2{DictProp: 8}

// newSlots returns a device with a primary and a secondary slot, the
// latter holding img.
func newSlots(t *testing.T, img []byte) (*State, *flash.Device, []byte) {
	t.Helper()
	dev, storage := flash.NewMemDevice(2 * testSlotSize)
	primary, err := dev.Area(1, 0, testSlotSize)
	require.NoError(t, err)
	secondary, err := dev.Area(2, testSlotSize, testSlotSize)
	require.NoError(t, err)
	copy(storage[testSlotSize:], img)
	return &State{ImageIndex: 0, Primary: primary, Secondary: secondary}, dev, storage
}

func readHdr(t *testing.T, a flash.Area) *image.Header {
	t.Helper()
	hdr, err := image.ReadHeader(a)
	require.NoError(t, err)
	return hdr
}

type countingDecoder struct {
	calls int
}

func (d *countingDecoder) NewReader(src io.Reader, dictSize uint32) (io.Reader, error) {
	d.calls++
	return lzma2.GoDecoder{}.NewReader(src, dictSize)
}

// trickleDecoder takes at most half of the input it is offered and returns
// one byte of output per call.
type trickleDecoder struct{}

func (trickleDecoder) NewReader(src io.Reader, dictSize uint32) (io.Reader, error) {
	r, err := lzma2.GoDecoder{}.NewReader(iotest.HalfReader(src), dictSize)
	if err != nil {
		return nil, err
	}
	return iotest.OneByteReader(r), nil
}

// mangledCompressor compresses something else than it is asked to.
type mangledCompressor struct {
	mangle func(payload []byte) []byte
	after  func(encoded []byte) []byte
}

func (c *mangledCompressor) Name() string { return "mangled" }

func (c *mangledCompressor) Decode(b []byte) ([]byte, error) { return testCompressor.Decode(b) }

func (c *mangledCompressor) Encode(b []byte) ([]byte, error) {
	if c.mangle != nil {
		b = c.mangle(append([]byte{}, b...))
	}
	out, err := testCompressor.Encode(b)
	if err != nil {
		return nil, err
	}
	if c.after != nil {
		out = c.after(out)
	}
	return out, nil
}

// rawImage lays out an image without checking or signing anything.
func rawImage(t *testing.T, hdr image.Header, payload []byte, prot, unprot []image.TLV) []byte {
	t.Helper()
	hdr.Magic = image.Magic
	hdr.HdrSize = image.HeaderSize
	hdr.ImgSize = uint32(len(payload))
	if len(prot) > 0 {
		hdr.ProtectTLVSize = image.TLVInfoSize
		for _, tlv := range prot {
			hdr.ProtectTLVSize += uint16(tlv.Size())
		}
	}
	b, err := hdr.MarshalBinary()
	require.NoError(t, err)
	b = append(b, payload...)
	if len(prot) > 0 {
		b = append(b, image.TLVInfo{Magic: image.ProtInfoMagic, Tot: hdr.ProtectTLVSize}.Bytes()...)
		for _, tlv := range prot {
			b = tlv.AppendTo(b)
		}
	}
	tot := image.TLVInfoSize
	for _, tlv := range unprot {
		tot += tlv.Size()
	}
	b = append(b, image.TLVInfo{Magic: image.InfoMagic, Tot: uint16(tot)}.Bytes()...)
	for _, tlv := range unprot {
		b = tlv.AppendTo(b)
	}
	return b
}
