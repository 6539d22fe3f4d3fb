// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash

import (
	"github.com/xaionaro-go/bytesextra"
)

// DefaultEraseValue is what erased NOR flash reads back as.
const DefaultEraseValue = 0xff

// NewMemDevice returns an erased in-memory device of the given size. The
// returned slice aliases the device contents.
func NewMemDevice(size uint32) (*Device, []byte) {
	storage := make([]byte, size)
	for i := range storage {
		storage[i] = DefaultEraseValue
	}
	return NewDevice(bytesextra.NewReadWriteSeeker(storage), size, DefaultEraseValue), storage
}

// NewMemArea returns a single in-memory area initialised with data and
// padded with erased bytes up to size.
func NewMemArea(id int, size uint32, data []byte) (Area, *Device) {
	dev, storage := NewMemDevice(size)
	copy(storage, data)
	a, err := dev.Area(id, 0, size)
	if err != nil {
		// The area covers the whole device.
		panic(err)
	}
	return a, dev
}
