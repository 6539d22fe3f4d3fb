// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"errors"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
)

// State is the boot state of one image.
type State struct {
	ImageIndex int
	Primary    flash.Area
	Secondary  flash.Area
}

// Loader installs images from the secondary slot into the primary slot.
type Loader struct {
	cfg *Config
	v   *Validator
}

// NewLoader returns a loader using cfg.
func NewLoader(cfg *Config) (*Loader, error) {
	v, err := NewValidator(cfg)
	if err != nil {
		return nil, err
	}
	return &Loader{cfg: cfg, v: v}, nil
}

// Validator returns the validator used by the loader.
func (l *Loader) Validator() *Validator {
	return l.v
}

// UpdateResult describes an installed image.
type UpdateResult struct {
	Header       *image.Header
	Digest       []byte
	Decompressed bool
	Size         uint64
}

// imageSize returns the number of bytes an image occupies in its area.
func imageSize(hdr *image.Header, area flash.Area) (uint32, error) {
	it, err := image.NewTLVIterator(hdr, area, image.TLVAny, false)
	if err != nil {
		return 0, err
	}
	return it.End(), nil
}

// Update validates the image in the secondary slot and overwrites the
// primary slot with it, decompressing it if needed. The installed image is
// validated again before Update returns.
func (l *Loader) Update(st *State, seed []byte) (*UpdateResult, error) {
	hdr, err := readHeader(st.Secondary)
	if err != nil {
		return nil, err
	}
	if _, err := l.v.Validate(st.ImageIndex, flash.SlotSecondary, hdr, st.Secondary, seed); err != nil {
		return nil, err
	}
	size, err := imageSize(hdr, st.Secondary)
	if err != nil {
		return nil, err
	}

	compressed := hdr.IsCompressed()
	if compressed {
		if !IsHeaderValidCompressed(l.cfg, hdr, st.Secondary, st) {
			return nil, wrapErr(ErrBadImage, "decompressed image does not fit the primary slot")
		}
	} else if size >= st.Primary.Size() {
		return nil, wrapErr(ErrBadImage, "image of %d bytes does not fit the primary slot", size)
	}

	log.Infof("image %d: erasing primary slot (%s)", st.ImageIndex, humanize.IBytes(uint64(st.Primary.Size())))
	if err := st.Primary.Erase(0, st.Primary.Size()); err != nil {
		return nil, flashErr(err)
	}
	if compressed {
		err = CopyRegionCompressed(l.cfg, st, st.Secondary, st.Primary, 0, 0, st.Secondary.Size())
	} else {
		err = copyRegion(l.cfg, st.Secondary, st.Primary, size)
	}
	if err != nil {
		return nil, err
	}

	installed, err := readHeader(st.Primary)
	if err != nil {
		return nil, err
	}
	digest, err := l.v.Validate(st.ImageIndex, flash.SlotPrimary, installed, st.Primary, seed)
	if err != nil {
		return nil, err
	}
	installedSize, err := imageSize(installed, st.Primary)
	if err != nil {
		return nil, err
	}
	if l.cfg.RollbackProtection {
		cnt, err := ImageSecurityCounter(installed, st.Primary)
		if err != nil {
			return nil, err
		}
		if err := l.cfg.SecurityCounters.Update(st.ImageIndex, cnt); err != nil {
			return nil, errors.Join(ErrSecurityCounter, err)
		}
	}
	log.Infof("image %d: installed version %v, %s", st.ImageIndex, installed.Version, humanize.IBytes(uint64(installedSize)))
	return &UpdateResult{
		Header:       installed,
		Digest:       digest,
		Decompressed: compressed,
		Size:         uint64(installedSize),
	}, nil
}

func copyRegion(cfg *Config, src, dst flash.Area, size uint32) error {
	p := newPass(cfg)
	var off uint32
	return p.copyArea(src, 0, size, areaWriter(dst, &off))
}
