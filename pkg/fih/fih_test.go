// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fih

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemEqual(t *testing.T) {
	require.True(t, MemEqual([]byte{1, 2, 3}, []byte{1, 2, 3}).IsSuccess())
	require.True(t, MemEqual(nil, []byte{}).IsSuccess())
	require.False(t, MemEqual([]byte{1, 2, 3}, []byte{1, 2, 4}).IsSuccess())
	require.False(t, MemEqual([]byte{1, 2, 3}, []byte{1, 2}).IsSuccess())
}

func TestRet(t *testing.T) {
	require.True(t, Success.IsSuccess())
	require.False(t, Failure.IsSuccess())
	require.True(t, Failure.Not().IsSuccess())
	require.False(t, Success.Not().IsSuccess())
	require.True(t, Eq(Success, FromBool(true)))
	require.False(t, Eq(Success, FromBool(false)))

	glitched := Success
	glitched.msk ^= 1
	require.False(t, glitched.IsSuccess())
	require.False(t, Eq(Success, glitched))
	require.False(t, Ret{}.IsSuccess())
	require.False(t, Ret{}.Not().IsSuccess())
}
