// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lzma2 reads and writes the raw LZMA2 streams stored in compressed
// boot images.
//
// A stream is preceded by a two byte header. The first byte is the LZMA2
// dictionary size property, the second one is reserved and written as zero.
// The LZMA2 chunks follow and are terminated by an end of stream chunk.
package lzma2

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// HeaderSize is the size of the stream header.
const HeaderSize = 2

// MaxDictProp is the largest valid dictionary size property.
const MaxDictProp = 40

var errShortHeader = errors.New("lzma2: stream header is truncated")

// ErrDictProp is returned for a dictionary property above MaxDictProp.
type ErrDictProp struct {
	Prop byte
}

func (e *ErrDictProp) Error() string {
	return fmt.Sprintf("lzma2: invalid dictionary size property %d", e.Prop)
}

// Header is the stream header.
type Header struct {
	DictProp byte
	Reserved byte
}

// ParseHeader parses the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errShortHeader
	}
	h := Header{DictProp: b[0], Reserved: b[1]}
	if h.DictProp > MaxDictProp {
		return Header{}, &ErrDictProp{Prop: h.DictProp}
	}
	return h, nil
}

// Bytes returns the encoded header. The reserved byte is always zero.
func (h Header) Bytes() []byte {
	return []byte{h.DictProp, 0}
}

// DictSize returns the dictionary size in bytes the header asks for.
func (h Header) DictSize() (uint32, error) {
	return DictSize(h.DictProp)
}

// DictSize decodes an LZMA2 dictionary size property.
func DictSize(prop byte) (uint32, error) {
	if prop > MaxDictProp {
		return 0, &ErrDictProp{Prop: prop}
	}
	if prop == MaxDictProp {
		return 0xffffffff, nil
	}
	return (2 | uint32(prop&1)) << (prop/2 + 11), nil
}

// DictProp returns the smallest property whose dictionary holds size bytes.
func DictProp(size uint32) byte {
	for prop := byte(0); prop < MaxDictProp; prop++ {
		if s, _ := DictSize(prop); s >= size {
			return prop
		}
	}
	return MaxDictProp
}

// dictCap converts a dictionary size into a capacity the Go implementation
// accepts.
func dictCap(size uint32) int {
	c := int64(size)
	if c < lzma.MinDictCap {
		c = lzma.MinDictCap
	}
	if c > lzma.MaxDictCap {
		c = lzma.MaxDictCap
	}
	return int(c)
}

// Decoder creates streaming LZMA2 decoders. The header is not part of the
// stream handed to NewReader.
type Decoder interface {
	NewReader(src io.Reader, dictSize uint32) (io.Reader, error)
}

// GoDecoder decodes with the pure Go implementation from
// github.com/ulikunitz/xz.
type GoDecoder struct{}

// NewReader implements Decoder.
func (GoDecoder) NewReader(src io.Reader, dictSize uint32) (io.Reader, error) {
	return lzma.Reader2Config{DictCap: dictCap(dictSize)}.NewReader2(src)
}

// Encode compresses data into a headed stream using the given dictionary
// property. The encoder allocates the whole dictionary, so large properties
// are expensive.
func Encode(data []byte, prop byte) ([]byte, error) {
	size, err := DictSize(prop)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(Header{DictProp: prop}.Bytes())
	w, err := lzma.Writer2Config{DictCap: dictCap(size)}.NewWriter2(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decompresses a headed stream.
func Decode(encodedData []byte) ([]byte, error) {
	h, err := ParseHeader(encodedData)
	if err != nil {
		return nil, err
	}
	size, err := h.DictSize()
	if err != nil {
		return nil, err
	}
	r, err := GoDecoder{}.NewReader(bytes.NewReader(encodedData[HeaderSize:]), size)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
