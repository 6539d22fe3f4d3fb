// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linuxboot/mcuimg/pkg/image"
)

func TestParseVersion(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want image.Version
		err  bool
	}{
		{"1.2.3+4", image.Version{Major: 1, Minor: 2, Revision: 3, BuildNum: 4}, false},
		{"1.2", image.Version{Major: 1, Minor: 2}, false},
		{"7", image.Version{Major: 7}, false},
		{"v1", image.Version{}, true},
	} {
		v, err := ParseVersion(tt.in)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, v)
	}
}

func TestBuilder(t *testing.T) {
	cnt := uint32(3)
	cmd := &Command{Hash: "sha384", Version: "1.0.0+0", HeaderSize: 0x40, SecurityCounter: &cnt, LoadAddr: 0x1000}
	b, err := cmd.Builder()
	require.NoError(t, err)
	require.Equal(t, image.SHA384, b.Hash)
	require.Equal(t, image.FlagRAMLoad, b.Flags)
	require.Equal(t, []image.TLV{{Type: image.TLVSecCnt, Value: []byte{3, 0, 0, 0}}}, b.Protected)
	require.Nil(t, b.Signer)

	cmd.Hash = "md5"
	_, err = cmd.Builder()
	require.Error(t, err)
}
