// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

// LZMA2 implements Compressor with the Go LZMA2 encoder and decoder. Encoded
// data carries the two byte stream header.
type LZMA2 struct {
	DictProp byte
}

// Name returns the type of compression employed.
func (c *LZMA2) Name() string {
	return "LZMA2"
}

// Decode decodes a byte slice of LZMA2 data.
func (c *LZMA2) Decode(encodedData []byte) ([]byte, error) {
	return lzma2.Decode(encodedData)
}

// Encode encodes a byte slice with LZMA2.
func (c *LZMA2) Encode(decodedData []byte) ([]byte, error) {
	return lzma2.Encode(decodedData, c.DictProp)
}
