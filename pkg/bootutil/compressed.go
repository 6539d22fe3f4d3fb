// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
)

// IsHeaderValidCompressed reports whether the decompressed form of the
// compressed image in area fits into the primary slot of st.
//
// An image filling the slot exactly is rejected, since the end of the slot
// holds the image trailer. MCUboot is more lenient here and rejects only an
// image larger than the slot.
func IsHeaderValidCompressed(cfg *Config, hdr *image.Header, area flash.Area, st *State) bool {
	total, err := DecompressedTotalSize(cfg, hdr, area)
	if err != nil {
		log.Debugf("image %d: %v", st.ImageIndex, err)
		return false
	}
	if total > 0xffffffff {
		return false
	}
	// The end of the slot holds the image trailer.
	if total >= uint64(st.Primary.Size()) {
		log.Infof("image %d: decompressed image of %d bytes does not fit the %d byte primary slot",
			st.ImageIndex, total, st.Primary.Size())
		return false
	}
	return true
}

// ComputeDecompressedImageHash returns the digest the compressed image in
// area will have once decompressed: the decompressed header, the header
// padding, the decompressed payload and the re-serialized protected TLVs.
//
// A non-empty seed is hashed first, as for a plain image. imgtool computes
// DECOMP_SHA without a seed, so an image signed by it only verifies with an
// empty seed.
func ComputeDecompressedImageHash(cfg *Config, imageIndex int, hdr *image.Header, area flash.Area, seed []byte) ([]byte, error) {
	l, err := planDecompressed(cfg, hdr, area)
	if err != nil {
		return nil, err
	}
	p := newPass(cfg)
	h := cfg.Hash.New()
	sink := func(b []byte) error {
		h.Write(b)
		return nil
	}
	h.Write(seed)

	raw, err := l.hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h.Write(raw)
	if err := p.copyArea(area, image.HeaderSize, uint32(hdr.HdrSize)-image.HeaderSize, sink); err != nil {
		return nil, err
	}
	if err := p.decompress(area, uint32(hdr.HdrSize), hdr.ImgSize, l.hdr.ImgSize, sink); err != nil {
		return nil, err
	}
	if l.protSize > 0 {
		h.Write(image.TLVInfo{Magic: image.ProtInfoMagic, Tot: l.protSize}.Bytes())
		for _, c := range l.protected {
			if err := p.emitTLV(area, c, sink); err != nil {
				return nil, err
			}
		}
	}
	log.Debugf("image %d: hashed %d decompressed bytes", imageIndex, l.hdr.ImgSize)
	return h.Sum(nil), nil
}

// CopyRegionCompressed writes the decompressed form of the compressed
// image at srcOff in src to dstOff in dst. size is the space the source
// image may occupy. There is no rollback: on failure dst is left partially
// written.
func CopyRegionCompressed(cfg *Config, st *State, src, dst flash.Area, srcOff, dstOff, size uint32) error {
	srcImg, err := flash.Sub(src, srcOff, size)
	if err != nil {
		return wrapErr(ErrBadImage, "%v", err)
	}
	dstImg, err := flash.Sub(dst, dstOff, dst.Size()-min(dstOff, dst.Size()))
	if err != nil {
		return wrapErr(ErrBadImage, "%v", err)
	}
	hdr, err := readHeader(srcImg)
	if err != nil {
		return err
	}
	l, err := planDecompressed(cfg, hdr, srcImg)
	if err != nil {
		return err
	}
	if l.size() > uint64(dstImg.Size()) {
		return wrapErr(ErrBadImage, "decompressed image of %d bytes does not fit %d bytes", l.size(), dstImg.Size())
	}
	log.Infof("image %d: decompressing %d bytes into %d", st.ImageIndex, hdr.ImgSize, l.hdr.ImgSize)

	p := newPass(cfg)
	var off uint32
	write := areaWriter(dstImg, &off)

	raw, err := l.hdr.MarshalBinary()
	if err != nil {
		return err
	}
	if err := write(raw); err != nil {
		return err
	}
	if err := p.copyArea(srcImg, image.HeaderSize, uint32(hdr.HdrSize)-image.HeaderSize, write); err != nil {
		return err
	}
	if err := p.decompress(srcImg, uint32(hdr.HdrSize), hdr.ImgSize, l.hdr.ImgSize, write); err != nil {
		return err
	}

	if l.protSize > 0 {
		if err := write(image.TLVInfo{Magic: image.ProtInfoMagic, Tot: l.protSize}.Bytes()); err != nil {
			return err
		}
		for _, c := range l.protected {
			if err := p.emitTLV(srcImg, c, write); err != nil {
				return err
			}
		}
	}
	if err := write(image.TLVInfo{Magic: image.InfoMagic, Tot: l.unprotSize}.Bytes()); err != nil {
		return err
	}
	for _, c := range l.unprotected {
		if err := p.emitTLV(srcImg, c, write); err != nil {
			return err
		}
	}
	if uint64(off) != l.size() {
		return wrapErr(ErrBadImage, "wrote %d bytes, expected %d", off, l.size())
	}
	return nil
}

func readHeader(a flash.Area) (*image.Header, error) {
	b := make([]byte, image.HeaderSize)
	if err := a.Read(0, b); err != nil {
		return nil, flashErr(err)
	}
	hdr, err := image.ParseHeader(b)
	if err != nil {
		return nil, wrapErr(ErrBadImage, "%v", err)
	}
	return hdr, nil
}
