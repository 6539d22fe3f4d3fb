// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/mcuimg/pkg/fih"
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
)

// Stage of image validation.
type Stage int

// Stages, in order. The decompressed stages only run for compressed images
// in the secondary slot that passed the first three.
const (
	StageHashCompressed Stage = iota
	StageCheckCompressedHash
	StageCheckCompressedSignature
	StageHashDecompressed
	StageCheckDecompressedHash
	StageCheckDecompressedSignature
	StageDone
)

var stageNames = []string{
	"HashCompressed",
	"CheckCompressedHash",
	"CheckCompressedSignature",
	"HashDecompressed",
	"CheckDecompressedHash",
	"CheckDecompressedSignature",
	"Done",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Validator checks the integrity and authenticity of images.
type Validator struct {
	cfg *Config
}

// NewValidator returns a validator using cfg, after filling in defaults.
func NewValidator(cfg *Config) (*Validator, error) {
	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Validator{cfg: cfg}, nil
}

func reject(stage Stage, err error) error {
	return &RejectError{Stage: stage, Err: err}
}

// imageHash hashes the header, payload and protected TLVs as stored.
func (v *Validator) imageHash(p *pass, hdr *image.Header, area flash.Area, seed []byte) ([]byte, error) {
	end := hdr.TLVOffset() + uint64(hdr.ProtectTLVSize)
	if end > uint64(area.Size()) {
		return nil, wrapErr(ErrBadImage, "image of %d bytes exceeds the %d byte area", end, area.Size())
	}
	h := v.cfg.Hash.New()
	h.Write(seed)
	err := p.copyArea(area, 0, uint32(end), func(b []byte) error {
		h.Write(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// resolveKey returns the key identified by a KEYHASH or PUBKEY record, or
// nil if the record names no acceptable key.
func (v *Validator) resolveKey(imageIndex int, area flash.Area, e image.TLVEntry) ([]byte, error) {
	switch {
	case e.Type == image.TLVKeyHash && v.cfg.KeyMode == KeyModeHash:
		if int(e.Len) > v.cfg.Hash.Size() {
			return nil, wrapErr(ErrSignature, "key hash of %d bytes", e.Len)
		}
		kh, err := image.ReadValue(area, e)
		if err != nil {
			return nil, flashErr(err)
		}
		key, ret := v.cfg.Keys.FindByHash(v.cfg.Hash, kh)
		if !ret.IsSuccess() {
			log.Debugf("image %d: no key matches key hash %x", imageIndex, kh)
			return nil, nil
		}
		return key, nil
	case e.Type == image.TLVPubKey && v.cfg.KeyMode == KeyModeHardware:
		key, err := image.ReadValue(area, e)
		if err != nil {
			return nil, flashErr(err)
		}
		want, err := v.cfg.HardwareKeys.KeyHash(imageIndex)
		if err != nil {
			return nil, wrapErr(ErrSignature, "no provisioned key: %v", err)
		}
		d := v.cfg.Hash.New()
		d.Write(key)
		if !fih.MemEqual(d.Sum(nil), want).IsSuccess() {
			log.Debugf("image %d: public key does not match the provisioned hash", imageIndex)
			return nil, nil
		}
		return key, nil
	}
	return nil, nil
}

func (v *Validator) checkSignature(area flash.Area, e image.TLVEntry, key, digest []byte) (fih.Ret, error) {
	if err := v.cfg.Signature.CheckLength(int(e.Len)); err != nil {
		return fih.Failure, wrapErr(ErrSignature, "%v", err)
	}
	sig, err := image.ReadValue(area, e)
	if err != nil {
		return fih.Failure, flashErr(err)
	}
	return verifySignature(v.cfg.Signature, v.cfg.Hash, key, digest, sig), nil
}

// ImageSecurityCounter returns the value of the protected SEC_CNT record.
func ImageSecurityCounter(hdr *image.Header, area flash.Area) (uint32, error) {
	e, ok, err := image.FindTLV(hdr, area, image.TLVSecCnt, true)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, wrapErr(ErrSecurityCounter, "no protected %v record", image.TLVSecCnt)
	}
	if e.Len != 4 {
		return 0, wrapErr(ErrSecurityCounter, "%v record has %d bytes", image.TLVSecCnt, e.Len)
	}
	b, err := image.ReadValue(area, e)
	if err != nil {
		return 0, flashErr(err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Validate checks the image in area and returns its digest. Compressed
// images in the secondary slot are additionally checked in decompressed
// form. Rejections are reported as *RejectError.
func (v *Validator) Validate(imageIndex int, slot flash.Slot, hdr *image.Header, area flash.Area, seed []byte) ([]byte, error) {
	if hdr.IsEncrypted() {
		return nil, reject(StageHashCompressed, wrapErr(ErrUnsupported, "encrypted image"))
	}
	p := newPass(v.cfg)
	digest, err := v.imageHash(p, hdr, area, seed)
	if err != nil {
		return nil, reject(StageHashCompressed, err)
	}

	it, err := image.NewTLVIterator(hdr, area, image.TLVAny, false)
	if err != nil {
		return nil, reject(StageCheckCompressedHash, err)
	}
	hashValid := fih.Failure
	sigValid := fih.Failure
	var key []byte
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, reject(StageCheckCompressedHash, err)
		}
		if !ok {
			break
		}
		switch {
		case e.Type == v.cfg.Hash.TLVType():
			if int(e.Len) != len(digest) {
				return nil, reject(StageCheckCompressedHash, wrapErr(ErrHashMismatch, "%v record has %d bytes", e.Type, e.Len))
			}
			want, err := image.ReadValue(area, e)
			if err != nil {
				return nil, reject(StageCheckCompressedHash, flashErr(err))
			}
			hashValid = fih.MemEqual(digest, want)
			if !hashValid.IsSuccess() {
				return nil, reject(StageCheckCompressedHash, ErrHashMismatch)
			}
		case e.Type == image.TLVKeyHash || e.Type == image.TLVPubKey:
			if v.cfg.Signature == image.SignatureNone {
				continue
			}
			if key, err = v.resolveKey(imageIndex, area, e); err != nil {
				return nil, reject(StageCheckCompressedSignature, err)
			}
		case v.cfg.Signature != image.SignatureNone && e.Type == v.cfg.Signature.TLVType():
			if key == nil {
				continue
			}
			ret, err := v.checkSignature(area, e, key, digest)
			if err != nil {
				return nil, reject(StageCheckCompressedSignature, err)
			}
			if ret.IsSuccess() {
				sigValid = ret
			}
			key = nil
		}
	}
	if !hashValid.IsSuccess() {
		return nil, reject(StageCheckCompressedHash, wrapErr(ErrHashMismatch, "no %v record", v.cfg.Hash.TLVType()))
	}
	if v.cfg.Signature != image.SignatureNone && !sigValid.IsSuccess() {
		return nil, reject(StageCheckCompressedSignature, ErrSignature)
	}
	if v.cfg.RollbackProtection {
		if err := v.checkSecurityCounter(imageIndex, hdr, area); err != nil {
			return nil, reject(StageCheckCompressedSignature, err)
		}
	}
	log.Debugf("image %d: %v slot image verified as stored", imageIndex, slot)

	if slot != flash.SlotSecondary || !hdr.IsCompressed() {
		return digest, nil
	}
	if err := v.validateDecompressed(imageIndex, hdr, area, seed); err != nil {
		return nil, err
	}
	log.Debugf("image %d: decompressed image verified", imageIndex)
	return digest, nil
}

func (v *Validator) checkSecurityCounter(imageIndex int, hdr *image.Header, area flash.Area) error {
	cnt, err := ImageSecurityCounter(hdr, area)
	if err != nil {
		return err
	}
	floor, err := v.cfg.SecurityCounters.Get(imageIndex)
	if err != nil {
		return wrapErr(ErrSecurityCounter, "%v", err)
	}
	if cnt < floor {
		return wrapErr(ErrSecurityCounter, "image counter %d is below %d", cnt, floor)
	}
	return nil
}

func (v *Validator) validateDecompressed(imageIndex int, hdr *image.Header, area flash.Area, seed []byte) error {
	digest, err := ComputeDecompressedImageHash(v.cfg, imageIndex, hdr, area, seed)
	if err != nil {
		return reject(StageHashDecompressed, err)
	}

	e, ok, err := image.FindTLV(hdr, area, image.TLVDecompSHA, true)
	if err != nil {
		return reject(StageCheckDecompressedHash, err)
	}
	if !ok || int(e.Len) != len(digest) {
		return reject(StageCheckDecompressedHash, wrapErr(ErrHashMismatch, "no valid %v record", image.TLVDecompSHA))
	}
	want, err := image.ReadValue(area, e)
	if err != nil {
		return reject(StageCheckDecompressedHash, flashErr(err))
	}
	if !fih.MemEqual(digest, want).IsSuccess() {
		return reject(StageCheckDecompressedHash, ErrHashMismatch)
	}

	if v.cfg.Signature == image.SignatureNone {
		return nil
	}
	keyType := image.TLVKeyHash
	if v.cfg.KeyMode == KeyModeHardware {
		keyType = image.TLVPubKey
	}
	it, err := image.NewTLVIterator(hdr, area, keyType, false)
	if err != nil {
		return reject(StageCheckDecompressedSignature, err)
	}
	var key []byte
	for key == nil {
		e, ok, err := it.Next()
		if err != nil {
			return reject(StageCheckDecompressedSignature, err)
		}
		if !ok {
			break
		}
		if key, err = v.resolveKey(imageIndex, area, e); err != nil {
			return reject(StageCheckDecompressedSignature, err)
		}
	}
	if key == nil {
		return reject(StageCheckDecompressedSignature, wrapErr(ErrSignature, "no usable key"))
	}
	e, ok, err = image.FindTLV(hdr, area, image.TLVDecompSignature, true)
	if err != nil {
		return reject(StageCheckDecompressedSignature, err)
	}
	if !ok {
		return reject(StageCheckDecompressedSignature, wrapErr(ErrSignature, "no %v record", image.TLVDecompSignature))
	}
	ret, err := v.checkSignature(area, e, key, digest)
	if err != nil {
		return reject(StageCheckDecompressedSignature, err)
	}
	if !ret.IsSuccess() {
		return reject(StageCheckDecompressedSignature, ErrSignature)
	}
	return nil
}
