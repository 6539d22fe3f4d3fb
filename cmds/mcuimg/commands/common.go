// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/linuxboot/mcuimg/pkg/bootutil"
	"github.com/linuxboot/mcuimg/pkg/flash"
)

// ReadImage loads an image file into an in-memory flash area of the same
// size.
func ReadImage(path string) (flash.Area, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read the image file '%s': %w", path, err)
	}
	if uint64(len(data)) > uint64(^uint32(0)) {
		return nil, nil, fmt.Errorf("image file '%s' is too large", path)
	}
	a, _ := flash.NewMemArea(0, uint32(len(data)), data)
	return a, data, nil
}

// LoadConfig reads the bootloader configuration at path, or returns the
// default one (SHA-256, no signature) if path is empty.
func LoadConfig(path string) (*bootutil.Config, error) {
	if path == "" {
		cfg := &bootutil.Config{}
		if err := cfg.SetDefaults(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := bootutil.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load the config '%s': %w", path, err)
	}
	return cfg, nil
}

// ParseSeed decodes a hex encoded hash seed.
func ParseSeed(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrArgs{Err: fmt.Errorf("invalid seed '%s': %w", s, err)}
	}
	return b, nil
}

// ParseSlot parses "primary" or "secondary".
func ParseSlot(s string) (flash.Slot, error) {
	switch s {
	case "primary":
		return flash.SlotPrimary, nil
	case "secondary", "":
		return flash.SlotSecondary, nil
	}
	return 0, ErrArgs{Err: fmt.Errorf("unknown slot '%s'", s)}
}
