// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
)

// tlvCopy is one record of a decompressed TLV section: the value found at
// src is written under type typ.
type tlvCopy struct {
	typ image.TLVType
	src image.TLVEntry
}

func (c tlvCopy) size() uint32 {
	return image.TLVHeaderSize + uint32(c.src.Len)
}

func sectionSize(plan []tlvCopy) (uint16, error) {
	size := uint32(image.TLVInfoSize)
	for _, c := range plan {
		size += c.size()
	}
	if size > 0xffff {
		return 0, wrapErr(ErrBadImage, "decompressed TLV section of %d bytes does not fit", size)
	}
	return uint16(size), nil
}

// protectedPlan lists the protected records which survive decompression.
func protectedPlan(hdr *image.Header, area flash.Area) ([]tlvCopy, error) {
	it, err := image.NewTLVIterator(hdr, area, image.TLVAny, true)
	if err != nil {
		return nil, err
	}
	var plan []tlvCopy
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return plan, nil
		}
		if e.Type.IsDecompressionMetadata() {
			continue
		}
		plan = append(plan, tlvCopy{typ: e.Type, src: e})
	}
}

// unprotectedPlan lists the records of the decompressed unprotected
// section. The first digest and signature records of the compressed image
// are replaced, keeping their types, by the protected DECOMP_SHA and
// DECOMP_SIGNATURE values, which become the digest and signature of the
// decompressed image. Further digest and signature records cover the
// compressed image only and are dropped. A relocated value without a record
// to replace is appended under the configured type; a signature is dropped
// when no scheme is configured.
func unprotectedPlan(cfg *Config, hdr *image.Header, area flash.Area) ([]tlvCopy, error) {
	var decompSHA, decompSig *image.TLVEntry
	it, err := image.NewTLVIterator(hdr, area, image.TLVAny, true)
	if err != nil {
		return nil, err
	}
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case image.TLVDecompSHA:
			decompSHA = &e
		case image.TLVDecompSignature:
			decompSig = &e
		}
	}

	it, err = image.NewTLVIterator(hdr, area, image.TLVAny, false)
	if err != nil {
		return nil, err
	}
	var plan []tlvCopy
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if it.IsProtected(e.Offset) {
			continue
		}
		switch {
		case e.Type.IsImageHash():
			if decompSHA != nil {
				plan = append(plan, tlvCopy{typ: e.Type, src: *decompSHA})
				decompSHA = nil
			}
		case e.Type.IsSignature():
			if decompSig != nil {
				plan = append(plan, tlvCopy{typ: e.Type, src: *decompSig})
				decompSig = nil
			}
		case e.Type.IsDecompressionMetadata():
		default:
			plan = append(plan, tlvCopy{typ: e.Type, src: e})
		}
	}
	if decompSHA != nil {
		plan = append(plan, tlvCopy{typ: cfg.Hash.TLVType(), src: *decompSHA})
	}
	if decompSig != nil && cfg.Signature != image.SignatureNone {
		plan = append(plan, tlvCopy{typ: cfg.Signature.TLVType(), src: *decompSig})
	}
	return plan, nil
}

// DecompressedProtectedTLVSize returns the size of the protected TLV
// section of the decompressed image, including its info header. It is zero
// if only decompression metadata is protected.
func DecompressedProtectedTLVSize(hdr *image.Header, area flash.Area) (uint16, error) {
	it, err := image.NewTLVIterator(hdr, area, image.TLVAny, true)
	if err != nil {
		return 0, err
	}
	size := uint32(hdr.ProtectTLVSize)
	for {
		e, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		if e.Type.IsDecompressionMetadata() {
			size -= image.TLVHeaderSize + uint32(e.Len)
		}
	}
	if size == image.TLVInfoSize {
		size = 0
	}
	return uint16(size), nil
}

// DecompressedUnprotectedTLVSize returns the size of the unprotected TLV
// section of the decompressed image, including its info header.
func DecompressedUnprotectedTLVSize(cfg *Config, hdr *image.Header, area flash.Area) (uint16, error) {
	plan, err := unprotectedPlan(cfg, hdr, area)
	if err != nil {
		return 0, err
	}
	return sectionSize(plan)
}

// DecompressedImageSize returns the payload size of the decompressed image
// as recorded in the protected DECOMP_SIZE record.
func DecompressedImageSize(hdr *image.Header, area flash.Area) (uint32, error) {
	e, ok, err := image.FindTLV(hdr, area, image.TLVDecompSize, true)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, wrapErr(ErrTLVIteration, "no protected %v record", image.TLVDecompSize)
	}
	if e.Len != 4 {
		return 0, wrapErr(ErrTLVIteration, "%v record has %d bytes", image.TLVDecompSize, e.Len)
	}
	b, err := image.ReadValue(area, e)
	if err != nil {
		return 0, flashErr(err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// DecompressedTotalSize returns the number of bytes the decompressed image
// occupies: header, payload and both TLV sections.
func DecompressedTotalSize(cfg *Config, hdr *image.Header, area flash.Area) (uint64, error) {
	size, err := DecompressedImageSize(hdr, area)
	if err != nil {
		return 0, err
	}
	prot, err := DecompressedProtectedTLVSize(hdr, area)
	if err != nil {
		return 0, err
	}
	unprot, err := DecompressedUnprotectedTLVSize(cfg, hdr, area)
	if err != nil {
		return 0, err
	}
	return uint64(hdr.HdrSize) + uint64(size) + uint64(prot) + uint64(unprot), nil
}

// DecompressedHeader returns the header of the decompressed image.
func DecompressedHeader(hdr *image.Header, area flash.Area) (*image.Header, error) {
	size, err := DecompressedImageSize(hdr, area)
	if err != nil {
		return nil, err
	}
	prot, err := DecompressedProtectedTLVSize(hdr, area)
	if err != nil {
		return nil, err
	}
	out := *hdr
	out.ImgSize = size
	out.ProtectTLVSize = prot
	out.Flags &^= image.CompressionFlags
	return &out, nil
}

// layout describes where the sections of a decompressed image go.
type layout struct {
	hdr         *image.Header
	protected   []tlvCopy
	protSize    uint16
	unprotected []tlvCopy
	unprotSize  uint16
}

func (l *layout) size() uint64 {
	return uint64(l.hdr.HdrSize) + uint64(l.hdr.ImgSize) + uint64(l.protSize) + uint64(l.unprotSize)
}

func planDecompressed(cfg *Config, hdr *image.Header, area flash.Area) (*layout, error) {
	if hdr.HdrSize < image.HeaderSize {
		return nil, wrapErr(ErrBadImage, "header size %#x is smaller than %#x", hdr.HdrSize, image.HeaderSize)
	}
	if hdr.IsEncrypted() {
		return nil, wrapErr(ErrUnsupported, "encrypted images cannot be decompressed")
	}
	if hdr.Flags&image.CompressionFlags != image.FlagCompressedLZMA2 {
		return nil, wrapErr(ErrUnsupported, "compression %v", hdr.Flags&image.CompressionFlags)
	}
	dhdr, err := DecompressedHeader(hdr, area)
	if err != nil {
		return nil, err
	}
	l := &layout{hdr: dhdr, protSize: dhdr.ProtectTLVSize}
	if l.protected, err = protectedPlan(hdr, area); err != nil {
		return nil, err
	}
	if l.protSize > 0 {
		if size, err := sectionSize(l.protected); err != nil || size != l.protSize {
			return nil, wrapErr(ErrTLVIteration, "protected TLV size %#x disagrees with its records", l.protSize)
		}
	}
	if l.unprotected, err = unprotectedPlan(cfg, hdr, area); err != nil {
		return nil, err
	}
	if l.unprotSize, err = sectionSize(l.unprotected); err != nil {
		return nil, err
	}
	if l.size() > 0xffffffff {
		return nil, fmt.Errorf("%w: decompressed image is too large", ErrBadImage)
	}
	return l, nil
}
