// Copyright 2019 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytes

import (
	"fmt"
	"strings"
)

// Range is a span of bytes within a flash area or an image.
type Range struct {
	Offset uint32
	Length uint32
}

func (r Range) String() string {
	return fmt.Sprintf(`{"Offset":"0x%x", "Length":"0x%x"}`, r.Offset, r.Length)
}

// End returns the offset just past the range. The result is computed in
// 64 bits so that a range reaching the top of the address space does not
// wrap around.
func (r Range) End() uint64 {
	return uint64(r.Offset) + uint64(r.Length)
}

// Intersect returns True if ranges "r" and "cmp" has at least
// one byte with the same offset.
func (r Range) Intersect(cmp Range) bool {
	if r.Length == 0 || cmp.Length == 0 {
		return false
	}
	if r.End() <= uint64(cmp.Offset) {
		return false
	}
	if uint64(r.Offset) >= cmp.End() {
		return false
	}
	return true
}

// Contains returns true if "inner" lies entirely within "r".
func (r Range) Contains(inner Range) bool {
	return inner.Offset >= r.Offset && inner.End() <= r.End()
}

// Ranges is a helper to manipulate multiple `Range`-s at once
type Ranges []Range

func (s Ranges) String() string {
	r := make([]string, 0, len(s))
	for _, oneRange := range s {
		r = append(r, oneRange.String())
	}
	return `[` + strings.Join(r, `, `) + `]`
}

// Overlaps returns the index pairs of every two ranges which intersect.
func (s Ranges) Overlaps() [][2]int {
	var result [][2]int
	for i := range s {
		for j := i + 1; j < len(s); j++ {
			if s[i].Intersect(s[j]) {
				result = append(result, [2]int{i, j})
			}
		}
	}
	return result
}
