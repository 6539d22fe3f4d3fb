// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compression implements the compression schemes used for boot image
// payloads.
package compression

import (
	"fmt"
	"strings"
)

// DefaultDictProp selects a 64 KiB dictionary, small enough for the RAM of
// a typical microcontroller bootloader.
const DefaultDictProp = 8

// XZPath is the path to the system xz command used for encoding by Default.
// If unset, the Go implementation is used.
var XZPath string

// Compressor defines a single compression scheme (such as LZMA2).
type Compressor interface {
	// Name is typically the name of a class.
	Name() string

	// Decode and Encode obey "x == Decode(Encode(x))".
	Decode(encodedData []byte) ([]byte, error)
	Encode(decodedData []byte) ([]byte, error)
}

// Default returns the LZMA2 compressor for the given dictionary property.
func Default(dictProp byte) Compressor {
	if XZPath != "" {
		return &SystemLZMA2{XZPath: XZPath, DictProp: dictProp}
	}
	return &LZMA2{DictProp: dictProp}
}

// ByName returns the compressor with the given name.
func ByName(name string, dictProp byte) (Compressor, error) {
	switch strings.ToLower(name) {
	case "lzma2":
		return Default(dictProp), nil
	case "xz":
		path := XZPath
		if path == "" {
			path = "xz"
		}
		return &SystemLZMA2{XZPath: path, DictProp: dictProp}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}
