// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/linuxboot/mcuimg/pkg/flash"
)

// ErrTLVIteration is returned for inconsistent or unreadable TLV metadata.
var ErrTLVIteration = errors.New("malformed TLV area")

// TLVEntry locates one record found by a TLVIterator.
type TLVEntry struct {
	// Offset of the value, relative to the start of the area.
	Offset uint32
	Len    uint16
	Type   TLVType
}

// TLVIterator walks the TLV records of an image stored in an area.
type TLVIterator struct {
	area          flash.Area
	hasProtected  bool
	typ           TLVType
	protectedOnly bool

	start   uint32
	protEnd uint32
	end     uint32
	off     uint32
}

func tlvErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTLVIteration, fmt.Sprintf(format, args...))
}

// NewTLVIterator checks the TLV info headers of the image and returns an
// iterator over the records of type typ (TLVAny matches all). With
// protectedOnly set, iteration stops at the end of the protected section.
func NewTLVIterator(hdr *Header, area flash.Area, typ TLVType, protectedOnly bool) (*TLVIterator, error) {
	start := hdr.TLVOffset()
	if start+TLVInfoSize > uint64(area.Size()) {
		return nil, tlvErr("TLV area at %#x is outside of the flash area", start)
	}
	off := uint32(start)

	b := make([]byte, TLVInfoSize)
	if err := area.Read(off, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTLVIteration, err)
	}
	info := parseTLVInfo(b)
	if info.Magic == ProtInfoMagic {
		if hdr.ProtectTLVSize != info.Tot {
			return nil, tlvErr("protected TLV size %#x does not match header (%#x)", info.Tot, hdr.ProtectTLVSize)
		}
		if info.Tot < TLVInfoSize || start+uint64(info.Tot)+TLVInfoSize > uint64(area.Size()) {
			return nil, tlvErr("protected TLV size %#x is invalid", info.Tot)
		}
		if err := area.Read(off+uint32(info.Tot), b); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTLVIteration, err)
		}
		info = parseTLVInfo(b)
	} else if hdr.ProtectTLVSize != 0 {
		return nil, tlvErr("header has %#x bytes of protected TLVs but no protected info", hdr.ProtectTLVSize)
	}
	if info.Magic != InfoMagic {
		return nil, tlvErr("bad TLV info magic %#04x", info.Magic)
	}
	if info.Tot < TLVInfoSize {
		return nil, tlvErr("TLV size %#x is invalid", info.Tot)
	}
	protEnd := start + uint64(hdr.ProtectTLVSize)
	end := protEnd + uint64(info.Tot)
	if end > uint64(area.Size()) {
		return nil, tlvErr("TLV area ends at %#x, outside of the flash area", end)
	}
	return &TLVIterator{
		area:          area,
		hasProtected:  hdr.ProtectTLVSize > 0,
		typ:           typ,
		protectedOnly: protectedOnly,
		start:         off,
		protEnd:       uint32(protEnd),
		end:           uint32(end),
		off:           off + TLVInfoSize,
	}, nil
}

// Next returns the next matching record. ok is false once the records are
// exhausted.
func (it *TLVIterator) Next() (entry TLVEntry, ok bool, err error) {
	if it.protectedOnly && !it.hasProtected {
		return TLVEntry{}, false, nil
	}
	b := make([]byte, TLVHeaderSize)
	for it.off < it.end {
		if it.hasProtected && it.off == it.protEnd {
			if it.protectedOnly {
				return TLVEntry{}, false, nil
			}
			it.off += TLVInfoSize
			continue
		}
		if uint64(it.off)+TLVHeaderSize > uint64(it.end) {
			return TLVEntry{}, false, tlvErr("truncated TLV header at %#x", it.off)
		}
		if err := it.area.Read(it.off, b); err != nil {
			return TLVEntry{}, false, fmt.Errorf("%w: %w", ErrTLVIteration, err)
		}
		typ := TLVType(binary.LittleEndian.Uint16(b[0:]))
		length := binary.LittleEndian.Uint16(b[2:])
		valueOff := it.off + TLVHeaderSize
		next := uint64(valueOff) + uint64(length)
		if next > uint64(it.end) || (it.off < it.protEnd && next > uint64(it.protEnd)) {
			return TLVEntry{}, false, tlvErr("TLV %v at %#x overruns its section", typ, it.off)
		}
		cur := it.off
		it.off = uint32(next)
		if it.typ != TLVAny && typ != it.typ {
			continue
		}
		if it.protectedOnly && cur >= it.protEnd {
			continue
		}
		return TLVEntry{Offset: valueOff, Len: length, Type: typ}, true, nil
	}
	return TLVEntry{}, false, nil
}

// IsProtected reports whether the value at off lies in the protected
// section.
func (it *TLVIterator) IsProtected(off uint32) bool {
	return off < it.protEnd
}

// Start returns the offset of the first TLV info header.
func (it *TLVIterator) Start() uint32 {
	return it.start
}

// ProtectedEnd returns the offset just past the protected section.
func (it *TLVIterator) ProtectedEnd() uint32 {
	return it.protEnd
}

// End returns the offset just past the TLV area.
func (it *TLVIterator) End() uint32 {
	return it.end
}

// ReadValue reads the value of entry.
func ReadValue(area flash.Area, entry TLVEntry) ([]byte, error) {
	b := make([]byte, entry.Len)
	if err := area.Read(entry.Offset, b); err != nil {
		return nil, err
	}
	return b, nil
}

// FindTLV returns the first record of type typ.
func FindTLV(hdr *Header, area flash.Area, typ TLVType, protectedOnly bool) (TLVEntry, bool, error) {
	it, err := NewTLVIterator(hdr, area, typ, protectedOnly)
	if err != nil {
		return TLVEntry{}, false, err
	}
	return it.Next()
}

// ReadTLVs returns every record of the image, protected ones first.
func ReadTLVs(hdr *Header, area flash.Area) (protected, unprotected []TLV, err error) {
	it, err := NewTLVIterator(hdr, area, TLVAny, false)
	if err != nil {
		return nil, nil, err
	}
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return protected, unprotected, nil
		}
		v, err := ReadValue(area, e)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrTLVIteration, err)
		}
		if it.IsProtected(e.Offset) {
			protected = append(protected, TLV{Type: e.Type, Value: v})
		} else {
			unprotected = append(unprotected, TLV{Type: e.Type, Value: v})
		}
	}
}
