// Copyright 2017-2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"fmt"

	"github.com/linuxboot/mcuimg/pkg/image"
)

// ErrEndLessThanStart means a region ends before it starts.
type ErrEndLessThanStart struct {
	What  string
	Start uint64
	End   uint64
}

func (err *ErrEndLessThanStart) Error() string {
	return fmt.Sprintf("%s: end is less than start: %#x < %#x", err.What, err.End, err.Start)
}

// ErrOutOfBounds means a region of the image lies outside of the area
// holding it.
type ErrOutOfBounds struct {
	What   string
	End    uint64
	Length uint64
}

func (err *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("%s: end is outside of the bounds: %#x > %#x", err.What, err.End, err.Length)
}

// ErrMissingTLV means a record the image needs is absent.
type ErrMissingTLV struct {
	Type      image.TLVType
	Protected bool
}

func (err *ErrMissingTLV) Error() string {
	section := "unprotected"
	if err.Protected {
		section = "protected"
	}
	return fmt.Sprintf("no %s %v record", section, err.Type)
}

// ErrMisplacedTLV means a record is in the wrong TLV section, or present in
// an image that should not carry it.
type ErrMisplacedTLV struct {
	Type   image.TLVType
	Reason string
}

func (err *ErrMisplacedTLV) Error() string {
	return fmt.Sprintf("%v record %s", err.Type, err.Reason)
}

// ErrFlags means the header flags are inconsistent.
type ErrFlags struct {
	Flags  image.Flags
	Reason string
}

func (err *ErrFlags) Error() string {
	return fmt.Sprintf("flags %v: %s", err.Flags, err.Reason)
}
