// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package check lints MCUboot images without verifying them
// cryptographically.
package check

import (
	"fmt"
	"math/bits"

	"github.com/hashicorp/go-multierror"

	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

// Image reports every structural problem found in the image stored at the
// start of area. The header is returned whenever it could be parsed.
func Image(area flash.Area) (*image.Header, error) {
	hdr, err := image.ReadHeader(area)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	size := uint64(area.Size())
	if err := BytesRange("payload", size, uint64(hdr.HdrSize), hdr.TLVOffset()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := BytesRange("protected TLVs", size, hdr.TLVOffset(), hdr.TLVOffset()+uint64(hdr.ProtectTLVSize)); err != nil {
		result = multierror.Append(result, err)
	}
	if err := Flags(hdr.Flags); err != nil {
		result = multierror.Append(result, err)
	}
	if result.ErrorOrNil() != nil {
		return hdr, result
	}

	prot, unprot, err := image.ReadTLVs(hdr, area)
	if err != nil {
		return hdr, multierror.Append(result, err)
	}
	if err := TLVs(hdr, prot, unprot); err != nil {
		result = multierror.Append(result, err)
	}
	if hdr.IsCompressed() && hdr.ImgSize >= lzma2.HeaderSize {
		b := make([]byte, lzma2.HeaderSize)
		if err := area.Read(uint32(hdr.HdrSize), b); err != nil {
			result = multierror.Append(result, err)
		} else if _, err := lzma2.ParseHeader(b); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return hdr, result.ErrorOrNil()
}

// Flags checks that at most one compression and one encryption method is
// selected.
func Flags(f image.Flags) error {
	var result *multierror.Error
	if bits.OnesCount32(uint32(f&(image.FlagCompressedLZMA1|image.FlagCompressedLZMA2))) > 1 {
		result = multierror.Append(result, &ErrFlags{Flags: f, Reason: "more than one compression method"})
	}
	if bits.OnesCount32(uint32(f&image.EncryptionFlags)) > 1 {
		result = multierror.Append(result, &ErrFlags{Flags: f, Reason: "more than one encryption method"})
	}
	if f&image.FlagCompressedARMThumb != 0 && f&image.FlagCompressedLZMA2 == 0 {
		result = multierror.Append(result, &ErrFlags{Flags: f, Reason: "ARM thumb filter without LZMA2"})
	}
	return result.ErrorOrNil()
}

// TLVs checks the placement of the decompression records.
func TLVs(hdr *image.Header, prot, unprot []image.TLV) error {
	var result *multierror.Error
	for _, t := range unprot {
		if t.Type.IsDecompressionMetadata() {
			result = multierror.Append(result, &ErrMisplacedTLV{Type: t.Type, Reason: "is not protected"})
		}
	}

	found := map[image.TLVType]image.TLV{}
	for _, t := range prot {
		if !t.Type.IsDecompressionMetadata() {
			continue
		}
		if _, ok := found[t.Type]; ok {
			result = multierror.Append(result, &ErrMisplacedTLV{Type: t.Type, Reason: "appears more than once"})
		}
		found[t.Type] = t
		if !hdr.IsCompressed() {
			result = multierror.Append(result, &ErrMisplacedTLV{Type: t.Type, Reason: "in an uncompressed image"})
		}
	}
	if !hdr.IsCompressed() {
		return result.ErrorOrNil()
	}

	if t, ok := found[image.TLVDecompSize]; !ok {
		result = multierror.Append(result, &ErrMissingTLV{Type: image.TLVDecompSize, Protected: true})
	} else if len(t.Value) != 4 {
		result = multierror.Append(result, fmt.Errorf("%v record has %d bytes", t.Type, len(t.Value)))
	}
	sha, ok := found[image.TLVDecompSHA]
	if !ok {
		result = multierror.Append(result, &ErrMissingTLV{Type: image.TLVDecompSHA, Protected: true})
	}
	signed := false
	for _, t := range unprot {
		switch {
		case t.Type.IsImageHash():
			if ok && len(sha.Value) != len(t.Value) {
				result = multierror.Append(result, fmt.Errorf("%v record has %d bytes, %v has %d",
					image.TLVDecompSHA, len(sha.Value), t.Type, len(t.Value)))
			}
		case t.Type.IsSignature():
			signed = true
		}
	}
	if _, ok := found[image.TLVDecompSignature]; signed && !ok {
		result = multierror.Append(result, &ErrMissingTLV{Type: image.TLVDecompSignature, Protected: true})
	}
	return result.ErrorOrNil()
}
