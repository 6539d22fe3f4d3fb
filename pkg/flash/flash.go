// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flash provides access to the flash areas holding boot images.
package flash

import (
	"fmt"
	"io"
	"sync"

	"github.com/linuxboot/mcuimg/pkg/bytes"
)

// Slot identifies which copy of an image an area holds.
type Slot int

// Slots of an image.
const (
	SlotPrimary Slot = iota
	SlotSecondary
)

func (s Slot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotSecondary:
		return "secondary"
	}
	return fmt.Sprintf("slot%d", int(s))
}

// Area is a contiguous, byte-addressable region of flash. Offsets are
// relative to the start of the area.
type Area interface {
	ID() int
	Size() uint32
	EraseValue() byte
	Read(off uint32, p []byte) error
	Write(off uint32, p []byte) error
	Erase(off, size uint32) error
}

// ErrOutOfBounds is returned when an access does not fit into an area.
type ErrOutOfBounds struct {
	AreaID int
	Offset uint32
	Length uint64
	Size   uint32
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("access [%#x:%#x] is out of bounds of area %d (size %#x)",
		e.Offset, uint64(e.Offset)+e.Length, e.AreaID, e.Size)
}

// Device is a flash device backed by an io.ReadWriteSeeker, for example
// an *os.File holding a flash dump. Accesses are serialized.
type Device struct {
	mu         sync.Mutex
	backend    io.ReadWriteSeeker
	size       uint32
	eraseValue byte

	// OnWrite is called just before a write reaches the backend. A non-nil
	// error aborts the write.
	OnWrite func(offset uint32, p []byte) error
}

// NewDevice returns a device of the given size over backend.
func NewDevice(backend io.ReadWriteSeeker, size uint32, eraseValue byte) *Device {
	return &Device{
		backend:    backend,
		size:       size,
		eraseValue: eraseValue,
	}
}

// Size returns the size of the device in bytes.
func (d *Device) Size() uint32 {
	return d.size
}

// EraseValue returns the value erased cells read back as.
func (d *Device) EraseValue() byte {
	return d.eraseValue
}

func (d *Device) check(off uint32, length int) error {
	whole := bytes.Range{Offset: 0, Length: d.size}
	if length < 0 || uint64(length) > uint64(d.size) ||
		!whole.Contains(bytes.Range{Offset: off, Length: uint32(length)}) {
		return &ErrOutOfBounds{AreaID: -1, Offset: off, Length: uint64(length), Size: d.size}
	}
	return nil
}

// ReadAt reads len(p) bytes at the absolute device offset off.
func (d *Device) ReadAt(off uint32, p []byte) error {
	if err := d.check(off, len(p)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.backend.Seek(int64(off), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(d.backend, p); err != nil {
		return fmt.Errorf("unable to read %d bytes at %#x: %w", len(p), off, err)
	}
	return nil
}

// WriteAt writes p at the absolute device offset off.
func (d *Device) WriteAt(off uint32, p []byte) error {
	if err := d.check(off, len(p)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OnWrite != nil {
		if err := d.OnWrite(off, p); err != nil {
			return err
		}
	}
	if _, err := d.backend.Seek(int64(off), io.SeekStart); err != nil {
		return err
	}
	n, err := d.backend.Write(p)
	if err != nil {
		return fmt.Errorf("unable to write %d bytes at %#x: %w", len(p), off, err)
	}
	if n != len(p) {
		return fmt.Errorf("short write at %#x: %d of %d bytes", off, n, len(p))
	}
	return nil
}

// EraseAt sets size bytes at off to the erase value.
func (d *Device) EraseAt(off, size uint32) error {
	const blockSize = 4096
	block := make([]byte, blockSize)
	for i := range block {
		block[i] = d.eraseValue
	}
	for size > 0 {
		n := uint32(blockSize)
		if size < n {
			n = size
		}
		if err := d.WriteAt(off, block[:n]); err != nil {
			return err
		}
		off += n
		size -= n
	}
	return nil
}

// Area returns a view of [offset, offset+size) of the device as an Area
// with the given identifier.
func (d *Device) Area(id int, offset, size uint32) (Area, error) {
	if err := d.check(offset, int(size)); err != nil {
		return nil, err
	}
	return &area{dev: d, id: id, offset: offset, size: size}, nil
}

type area struct {
	dev    *Device
	id     int
	offset uint32
	size   uint32
}

func (a *area) ID() int          { return a.id }
func (a *area) Size() uint32     { return a.size }
func (a *area) EraseValue() byte { return a.dev.eraseValue }

func (a *area) check(off uint32, length uint64) error {
	whole := bytes.Range{Offset: 0, Length: a.size}
	if length > uint64(a.size) || !whole.Contains(bytes.Range{Offset: off, Length: uint32(length)}) {
		return &ErrOutOfBounds{AreaID: a.id, Offset: off, Length: length, Size: a.size}
	}
	return nil
}

func (a *area) Read(off uint32, p []byte) error {
	if err := a.check(off, uint64(len(p))); err != nil {
		return err
	}
	return a.dev.ReadAt(a.offset+off, p)
}

func (a *area) Write(off uint32, p []byte) error {
	if err := a.check(off, uint64(len(p))); err != nil {
		return err
	}
	return a.dev.WriteAt(a.offset+off, p)
}

func (a *area) Erase(off, size uint32) error {
	if err := a.check(off, uint64(size)); err != nil {
		return err
	}
	return a.dev.EraseAt(a.offset+off, size)
}

// IsErased reports whether [off, off+size) of a reads back as erased.
func IsErased(a Area, off, size uint32) (bool, error) {
	buf := make([]byte, 4096)
	for size > 0 {
		n := uint32(len(buf))
		if size < n {
			n = size
		}
		if err := a.Read(off, buf[:n]); err != nil {
			return false, err
		}
		if !bytes.IsFilled(buf[:n], a.EraseValue()) {
			return false, nil
		}
		off += n
		size -= n
	}
	return true, nil
}

// Sub returns a view of [off, off+size) of a. Offsets of the view are
// relative to off.
func Sub(a Area, off, size uint32) (Area, error) {
	whole := bytes.Range{Offset: 0, Length: a.Size()}
	if !whole.Contains(bytes.Range{Offset: off, Length: size}) {
		return nil, &ErrOutOfBounds{AreaID: a.ID(), Offset: off, Length: uint64(size), Size: a.Size()}
	}
	if off == 0 && size == a.Size() {
		return a, nil
	}
	return &subArea{parent: a, off: off, size: size}, nil
}

type subArea struct {
	parent Area
	off    uint32
	size   uint32
}

func (s *subArea) ID() int          { return s.parent.ID() }
func (s *subArea) Size() uint32     { return s.size }
func (s *subArea) EraseValue() byte { return s.parent.EraseValue() }

func (s *subArea) check(off uint32, length uint64) error {
	whole := bytes.Range{Offset: 0, Length: s.size}
	if length > uint64(s.size) || !whole.Contains(bytes.Range{Offset: off, Length: uint32(length)}) {
		return &ErrOutOfBounds{AreaID: s.ID(), Offset: off, Length: length, Size: s.size}
	}
	return nil
}

func (s *subArea) Read(off uint32, p []byte) error {
	if err := s.check(off, uint64(len(p))); err != nil {
		return err
	}
	return s.parent.Read(s.off+off, p)
}

func (s *subArea) Write(off uint32, p []byte) error {
	if err := s.check(off, uint64(len(p))); err != nil {
		return err
	}
	return s.parent.Write(s.off+off, p)
}

func (s *subArea) Erase(off, size uint32) error {
	if err := s.check(off, uint64(size)); err != nil {
		return err
	}
	return s.parent.Erase(s.off+off, size)
}
