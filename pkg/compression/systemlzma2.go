// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

// SystemLZMA2 implements Compressor and calls out to the system's xz for
// encoding (Decode uses the Go-based decompressor). The system's compressor
// is typically faster and generates smaller streams than the Go-based
// implementation.
type SystemLZMA2 struct {
	XZPath   string
	DictProp byte
}

// Name returns the type of compression employed.
func (c *SystemLZMA2) Name() string {
	return "LZMA2"
}

// Decode decodes a byte slice of LZMA2 data.
func (c *SystemLZMA2) Decode(encodedData []byte) ([]byte, error) {
	return lzma2.Decode(encodedData)
}

// Encode encodes a byte slice with LZMA2.
func (c *SystemLZMA2) Encode(decodedData []byte) ([]byte, error) {
	dictSize, err := lzma2.DictSize(c.DictProp)
	if err != nil {
		return nil, err
	}
	// xz refuses dictionaries below 4 KiB, which is also the smallest
	// property.
	cmd := exec.Command(c.XZPath, "--format=raw",
		fmt.Sprintf("--lzma2=preset=6,dict=%d", dictSize), "--stdout")
	cmd.Stdin = bytes.NewBuffer(decodedData)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stream, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", c.XZPath, err, stderr.String())
	}
	return append(lzma2.Header{DictProp: c.DictProp}.Bytes(), stream...), nil
}
