// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fih implements comparisons hardened against fault injection.
//
// Results are not booleans but pairs of a value and its masked copy. A
// result only counts as success if both halves agree and encode the success
// pattern, so a single flipped bit or skipped store yields failure.
package fih

import (
	"crypto/subtle"
)

const (
	mask          = 0xa5c35a3c
	positiveValue = 0x1aaaaaaa
	negativeValue = 0x15555555
)

// Ret is a hardened result.
type Ret struct {
	val uint32
	msk uint32
}

func encode(v uint32) Ret {
	return Ret{val: v, msk: v ^ mask}
}

// Results.
var (
	Success = encode(positiveValue)
	Failure = encode(negativeValue)
)

// IsSuccess reports whether r is an intact success.
func (r Ret) IsSuccess() bool {
	if r.val^r.msk != mask {
		return false
	}
	if r.val != positiveValue {
		return false
	}
	// Check again through the masked half.
	return r.msk^mask == positiveValue
}

// Not returns Success for an intact failure and Failure otherwise.
func (r Ret) Not() Ret {
	if r.val^r.msk == mask && r.val == negativeValue {
		return Success
	}
	return Failure
}

// Eq compares two results.
func Eq(a, b Ret) bool {
	return a.val == b.val && a.msk == b.msk && a.val^b.msk == mask
}

// FromBool converts a plain condition.
func FromBool(ok bool) Ret {
	if ok {
		return Success
	}
	return Failure
}

// MemEqual compares a and b in constant time. The comparison loop must
// run to completion and the result is confirmed with a second comparison.
func MemEqual(a, b []byte) Ret {
	if len(a) != len(b) {
		return Failure
	}
	var diff byte
	i := 0
	for ; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	if i != len(a) {
		return Failure
	}
	if subtle.ConstantTimeByteEq(diff, 0) != 1 {
		return Failure
	}
	if subtle.ConstantTimeCompare(a, b) != 1 {
		return Failure
	}
	return Success
}
