// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"errors"
	"fmt"

	"github.com/linuxboot/mcuimg/pkg/image"
)

// Kinds of failures. Every failure is terminal for the current pass.
var (
	ErrFlashIO         = errors.New("flash I/O error")
	ErrTLVIteration    = image.ErrTLVIteration
	ErrDecompression   = errors.New("decompression failed")
	ErrAllocation      = errors.New("decoder allocation failed")
	ErrHashMismatch    = errors.New("image hash mismatch")
	ErrSignature       = errors.New("signature verification failed")
	ErrBufferTooSmall  = errors.New("TLV does not fit into the scratch buffer")
	ErrSecurityCounter = errors.New("security counter check failed")
	ErrBadImage        = errors.New("invalid image")
	ErrUnsupported     = errors.New("unsupported image")
)

// RejectError is returned by Validate when an image is rejected.
type RejectError struct {
	Stage Stage
	Err   error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("image rejected at %v: %v", e.Stage, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

func flashErr(err error) error {
	if errors.Is(err, ErrFlashIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFlashIO, err)
}

func wrapErr(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
