// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image parses and builds MCUboot style firmware images: a fixed
// header, the payload and a trailer of protected and unprotected TLVs.
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/linuxboot/mcuimg/pkg/flash"
)

// Magic identifies an image header.
const Magic = 0x96f3b83d

// HeaderSize is the size of the encoded Header. The header region of an
// image (HdrSize) may be larger and is padded.
const HeaderSize = 32

// Flags of an image header.
type Flags uint32

// Flags which can be applied to Header.Flags.
const (
	FlagPIC                Flags = 0x00000001
	FlagEncryptedAES128    Flags = 0x00000004
	FlagEncryptedAES256    Flags = 0x00000008
	FlagNonBootable        Flags = 0x00000010
	FlagRAMLoad            Flags = 0x00000020
	FlagROMFixed           Flags = 0x00000100
	FlagCompressedLZMA1    Flags = 0x00000200
	FlagCompressedLZMA2    Flags = 0x00000400
	FlagCompressedARMThumb Flags = 0x00000800

	CompressionFlags = FlagCompressedLZMA1 | FlagCompressedLZMA2 | FlagCompressedARMThumb
	EncryptionFlags  = FlagEncryptedAES128 | FlagEncryptedAES256
)

func (f Flags) String() string {
	names := []string{}
	m := []struct {
		val  Flags
		name string
	}{
		{FlagPIC, "PIC"},
		{FlagEncryptedAES128, "ENCRYPTED_AES128"},
		{FlagEncryptedAES256, "ENCRYPTED_AES256"},
		{FlagNonBootable, "NON_BOOTABLE"},
		{FlagRAMLoad, "RAM_LOAD"},
		{FlagROMFixed, "ROM_FIXED"},
		{FlagCompressedLZMA1, "COMPRESSED_LZMA1"},
		{FlagCompressedLZMA2, "COMPRESSED_LZMA2"},
		{FlagCompressedARMThumb, "COMPRESSED_ARM_THUMB"},
	}
	for _, v := range m {
		if v.val&f != 0 {
			names = append(names, v.name)
			f &^= v.val
		}
	}
	// Write a hex value for unknown flags.
	if f != 0 || len(names) == 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(f)))
	}
	return strings.Join(names, "|")
}

// Version of an image.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	BuildNum uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Revision, v.BuildNum)
}

// Header is the image header, serializable using encoding/binary.
type Header struct {
	Magic          uint32
	LoadAddr       uint32
	HdrSize        uint16
	ProtectTLVSize uint16
	ImgSize        uint32
	Flags          Flags
	Version        Version
	Pad1           uint32
}

// ErrBadMagic is returned when an area does not start with an image header.
type ErrBadMagic struct {
	Magic uint32
}

func (e *ErrBadMagic) Error() string {
	return fmt.Sprintf("bad image magic %#08x, expected %#08x", e.Magic, uint32(Magic))
}

// ParseHeader decodes a header from the first HeaderSize bytes of b.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("image header is truncated: %d bytes", len(b))
	}
	var hdr Header
	if err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != Magic {
		return nil, &ErrBadMagic{Magic: hdr.Magic}
	}
	if hdr.HdrSize < HeaderSize {
		return nil, fmt.Errorf("header size %d is smaller than %d", hdr.HdrSize, HeaderSize)
	}
	return &hdr, nil
}

// ReadHeader reads the header at the start of an area.
func ReadHeader(a flash.Area) (*Header, error) {
	b := make([]byte, HeaderSize)
	if err := a.Read(0, b); err != nil {
		return nil, err
	}
	return ParseHeader(b)
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsCompressed returns true if any compression flag is set.
func (h *Header) IsCompressed() bool {
	return h.Flags&CompressionFlags != 0
}

// IsEncrypted returns true if any encryption flag is set.
func (h *Header) IsEncrypted() bool {
	return h.Flags&EncryptionFlags != 0
}

// TLVOffset returns the offset of the first TLV info header. It is computed
// in 64 bits so a corrupted header cannot wrap around.
func (h *Header) TLVOffset() uint64 {
	return uint64(h.HdrSize) + uint64(h.ImgSize)
}

func (h *Header) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Magic:          %#08x\n", h.Magic)
	fmt.Fprintf(&b, "LoadAddr:       %#08x\n", h.LoadAddr)
	fmt.Fprintf(&b, "HdrSize:        %#x\n", h.HdrSize)
	fmt.Fprintf(&b, "ProtectTLVSize: %#x\n", h.ProtectTLVSize)
	fmt.Fprintf(&b, "ImgSize:        %#x\n", h.ImgSize)
	fmt.Fprintf(&b, "Flags:          %v\n", h.Flags)
	fmt.Fprintf(&b, "Version:        %v\n", h.Version)
	return b.String()
}
