// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"errors"
	"io"

	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

// maxEmptyReads bounds how often a decoder may return neither data nor an
// error before the stream is considered stuck.
const maxEmptyReads = 16

// pass owns the scratch buffers of one verify or copy pass.
type pass struct {
	cfg *Config
	in  []byte
	out []byte
}

func newPass(cfg *Config) *pass {
	return &pass{
		cfg: cfg,
		in:  make([]byte, cfg.ChunkSize),
		out: make([]byte, cfg.ChunkSize),
	}
}

// chunkSource hands compressed bytes to the decoder, reading one chunk
// from flash whenever the previous one is used up.
type chunkSource struct {
	area      flash.Area
	off       uint32
	remaining uint32
	buf       []byte
	pos, n    int
	consumed  uint64
	err       error
}

func (s *chunkSource) Read(p []byte) (int, error) {
	if s.pos == s.n {
		if s.remaining == 0 {
			return 0, io.EOF
		}
		n := uint32(len(s.buf))
		if s.remaining < n {
			n = s.remaining
		}
		if err := s.area.Read(s.off, s.buf[:n]); err != nil {
			s.err = flashErr(err)
			return 0, s.err
		}
		s.off += n
		s.remaining -= n
		s.pos, s.n = 0, int(n)
	}
	k := copy(p, s.buf[s.pos:s.n])
	s.pos += k
	s.consumed += uint64(k)
	return k, nil
}

// exhausted reports whether every compressed byte went to the decoder.
func (s *chunkSource) exhausted() bool {
	return s.remaining == 0 && s.pos == s.n
}

// decompress decodes the headed LZMA2 stream of size bytes at off in src
// and hands the output to sink in pieces of at most one chunk. The output
// must be exactly want bytes long and the stream must be consumed
// completely.
func (p *pass) decompress(src flash.Area, off, size, want uint32, sink func([]byte) error) error {
	if size < lzma2.HeaderSize {
		return wrapErr(ErrDecompression, "compressed payload of %d bytes has no stream header", size)
	}
	hb := p.in[:lzma2.HeaderSize]
	if err := src.Read(off, hb); err != nil {
		return flashErr(err)
	}
	h, err := lzma2.ParseHeader(hb)
	if err != nil {
		return wrapErr(ErrAllocation, "%v", err)
	}
	dictSize, err := h.DictSize()
	if err != nil {
		return wrapErr(ErrAllocation, "%v", err)
	}
	if err := p.cfg.Allocator.Alloc(dictSize); err != nil {
		return wrapErr(ErrAllocation, "%d byte dictionary: %v", dictSize, err)
	}
	defer p.cfg.Allocator.Free(dictSize)
	log.Debugf("decompressing %d bytes at %#x, dictionary %d bytes", size, off, dictSize)

	source := &chunkSource{
		area:      src,
		off:       off + lzma2.HeaderSize,
		remaining: size - lzma2.HeaderSize,
		buf:       p.in,
	}
	r, err := p.cfg.Decoder.NewReader(source, dictSize)
	if err != nil {
		if source.err != nil {
			return source.err
		}
		return wrapErr(ErrDecompression, "%v", err)
	}

	var produced uint64
	empty := 0
	for {
		n, err := r.Read(p.out)
		if n > 0 {
			empty = 0
			produced += uint64(n)
			if produced > uint64(want) {
				return wrapErr(ErrDecompression, "stream decodes to more than %d bytes", want)
			}
			if err := sink(p.out[:n]); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if source.err != nil {
				return source.err
			}
			return wrapErr(ErrDecompression, "%v", err)
		}
		if n == 0 {
			empty++
			if empty > maxEmptyReads {
				return wrapErr(ErrDecompression, "decoder makes no progress")
			}
		}
	}
	if produced != uint64(want) {
		return wrapErr(ErrDecompression, "stream decodes to %d bytes, expected %d", produced, want)
	}
	if !source.exhausted() {
		return wrapErr(ErrDecompression, "%d compressed bytes were not consumed",
			uint64(size-lzma2.HeaderSize)-source.consumed)
	}
	return nil
}

// copyArea streams size bytes at off in src to sink through the output
// buffer.
func (p *pass) copyArea(src flash.Area, off, size uint32, sink func([]byte) error) error {
	for size > 0 {
		n := uint32(len(p.out))
		if size < n {
			n = size
		}
		if err := src.Read(off, p.out[:n]); err != nil {
			return flashErr(err)
		}
		if err := sink(p.out[:n]); err != nil {
			return err
		}
		off += n
		size -= n
	}
	return nil
}

// emitTLV reads the record described by c into the output buffer and hands
// it to sink.
func (p *pass) emitTLV(src flash.Area, c tlvCopy, sink func([]byte) error) error {
	n := int(c.size())
	if n > len(p.out) {
		return wrapErr(ErrBufferTooSmall, "%v record of %d bytes, buffer holds %d", c.typ, n, len(p.out))
	}
	buf := p.out[:n]
	copy(buf, image.TLVHeader(c.typ, c.src.Len))
	if err := src.Read(c.src.Offset, buf[image.TLVHeaderSize:]); err != nil {
		return flashErr(err)
	}
	return sink(buf)
}

func areaWriter(dst flash.Area, off *uint32) func([]byte) error {
	return func(b []byte) error {
		if err := dst.Write(*off, b); err != nil {
			return flashErr(err)
		}
		*off += uint32(len(b))
		return nil
	}
}
