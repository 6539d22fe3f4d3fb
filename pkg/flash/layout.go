// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/linuxboot/mcuimg/pkg/bytes"
)

// AreaDesc describes one area of a Layout.
type AreaDesc struct {
	Name   string `yaml:"name"`
	ID     int    `yaml:"id"`
	Image  int    `yaml:"image"`
	Slot   Slot   `yaml:"slot"`
	Offset uint32 `yaml:"offset"`
	Size   uint32 `yaml:"size"`
}

// Range returns the bytes of the device the area occupies.
func (a AreaDesc) Range() bytes.Range {
	return bytes.Range{Offset: a.Offset, Length: a.Size}
}

// Layout describes how a flash device is split into image slots.
type Layout struct {
	Size       uint32     `yaml:"size"`
	EraseValue *uint8     `yaml:"erase_value,omitempty"`
	Areas      []AreaDesc `yaml:"areas"`
}

// UnmarshalYAML accepts either a slot name or its number.
func (s *Slot) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		switch strings.ToLower(name) {
		case "primary":
			*s = SlotPrimary
			return nil
		case "secondary":
			*s = SlotSecondary
			return nil
		}
	}
	var n int
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("invalid slot: %w", err)
	}
	*s = Slot(n)
	return nil
}

// MarshalYAML writes the slot name.
func (s Slot) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Erase returns the configured erase value or DefaultEraseValue.
func (l Layout) Erase() byte {
	if l.EraseValue == nil {
		return DefaultEraseValue
	}
	return *l.EraseValue
}

// Validate checks that every area fits in the device, that identifiers and
// (image, slot) pairs are unique and that no two areas overlap.
func (l Layout) Validate() error {
	var result *multierror.Error
	if l.Size == 0 {
		result = multierror.Append(result, fmt.Errorf("missing field: size"))
	}
	if len(l.Areas) == 0 {
		result = multierror.Append(result, fmt.Errorf("no areas defined"))
	}
	device := bytes.Range{Offset: 0, Length: l.Size}
	ids := map[int]bool{}
	slots := map[[2]int]bool{}
	var ranges bytes.Ranges
	for _, a := range l.Areas {
		if a.Size == 0 {
			result = multierror.Append(result, fmt.Errorf("area %d (%s) is empty", a.ID, a.Name))
		}
		if a.Slot != SlotPrimary && a.Slot != SlotSecondary {
			result = multierror.Append(result, fmt.Errorf("area %d (%s) has unknown slot %d", a.ID, a.Name, int(a.Slot)))
		}
		if !device.Contains(a.Range()) {
			result = multierror.Append(result, &ErrOutOfBounds{AreaID: a.ID, Offset: a.Offset, Length: uint64(a.Size), Size: l.Size})
		}
		if ids[a.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate area id %d", a.ID))
		}
		ids[a.ID] = true
		key := [2]int{a.Image, int(a.Slot)}
		if slots[key] {
			result = multierror.Append(result, fmt.Errorf("duplicate %s slot for image %d", a.Slot, a.Image))
		}
		slots[key] = true
		ranges = append(ranges, a.Range())
	}
	for _, pair := range ranges.Overlaps() {
		result = multierror.Append(result, fmt.Errorf("areas %d (%s) and %d (%s) overlap",
			l.Areas[pair[0]].ID, l.Areas[pair[0]].Name, l.Areas[pair[1]].ID, l.Areas[pair[1]].Name))
	}
	return result.ErrorOrNil()
}

// ParseLayout decodes and validates a YAML layout.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.UnmarshalStrict(data, &l); err != nil {
		return nil, fmt.Errorf("unable to parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return &l, nil
}

// LoadLayout reads a YAML layout from a file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLayout(data)
}

// Map binds a Layout to a Device.
type Map struct {
	dev    *Device
	layout Layout
}

// NewMap returns a map of layout over dev. The device must be at least as
// large as the layout says.
func NewMap(dev *Device, layout Layout) (*Map, error) {
	if dev.Size() < layout.Size {
		return nil, fmt.Errorf("device is %d bytes, layout needs %d", dev.Size(), layout.Size)
	}
	return &Map{dev: dev, layout: layout}, nil
}

// OpenFile maps a flash image file according to layout.
func OpenFile(path string, layout Layout) (*Map, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if st.Size() > int64(^uint32(0)) {
		f.Close()
		return nil, nil, fmt.Errorf("%s is too large: %d bytes", path, st.Size())
	}
	m, err := NewMap(NewDevice(f, uint32(st.Size()), layout.Erase()), layout)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return m, f, nil
}

// Device returns the underlying device.
func (m *Map) Device() *Device {
	return m.dev
}

// Open returns the area with the given identifier.
func (m *Map) Open(id int) (Area, error) {
	for _, a := range m.layout.Areas {
		if a.ID == id {
			return m.dev.Area(a.ID, a.Offset, a.Size)
		}
	}
	return nil, fmt.Errorf("no flash area with id %d", id)
}

// OpenSlot returns the area holding the given slot of an image.
func (m *Map) OpenSlot(image int, slot Slot) (Area, error) {
	for _, a := range m.layout.Areas {
		if a.Image == image && a.Slot == slot {
			return m.dev.Area(a.ID, a.Offset, a.Size)
		}
	}
	return nil, fmt.Errorf("no %s slot for image %d", slot, image)
}
