// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integration_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/update"
	"github.com/linuxboot/mcuimg/pkg/bootutil"
	"github.com/linuxboot/mcuimg/pkg/check"
	"github.com/linuxboot/mcuimg/pkg/compression"
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
)

const (
	layoutPath = "../pkg/flash/example_layout.yaml"
	slotSize   = 0x20000
)

// setup writes a signing key, a bootloader config and an erased flash file.
func setup(t *testing.T) (cfgPath, flashPath string, signer *image.Signer) {
	t.Helper()
	dir := t.TempDir()

	seed := bytes.Repeat([]byte{0x5a}, ed25519.SeedSize)
	key := ed25519.NewKeyFromSeed(seed)
	signer, err := image.NewSigner(key)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "root-ed25519.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	cfgPath = filepath.Join(dir, "bootloader.yaml")
	cfg := "hash: sha256\nsignature: ed25519\nkeys: [root-ed25519.pem]\nrollback_protection: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	flashPath = filepath.Join(dir, "flash.bin")
	require.NoError(t, os.WriteFile(flashPath, bytes.Repeat([]byte{0xff}, 2*slotSize), 0o644))
	return cfgPath, flashPath, signer
}

func writeSecondary(t *testing.T, flashPath string, img []byte) {
	t.Helper()
	data, err := os.ReadFile(flashPath)
	require.NoError(t, err)
	copy(data[slotSize:], img)
	require.NoError(t, os.WriteFile(flashPath, data, 0o644))
}

func TestUpdateCompressedImage(t *testing.T) {
	cfgPath, flashPath, signer := setup(t)

	payload := make([]byte, 96*1024)
	for i := range payload {
		payload[i] = byte(i / 64)
	}
	b := &image.Builder{
		Version:   image.Version{Major: 3, Minor: 1},
		HdrSize:   0x200,
		Hash:      image.SHA256,
		Signer:    signer,
		Protected: []image.TLV{{Type: image.TLVSecCnt, Value: []byte{2, 0, 0, 0}}},
	}
	img, err := b.BuildCompressed(payload, compression.Default(compression.DefaultDictProp))
	require.NoError(t, err)
	plain, err := b.Build(payload)
	require.NoError(t, err)
	require.Less(t, len(img), len(plain))
	writeSecondary(t, flashPath, img)

	cfg, err := bootutil.LoadConfig(cfgPath)
	require.NoError(t, err)
	res, err := update.Run(cfg, flashPath, layoutPath, 0, nil)
	require.NoError(t, err)
	require.True(t, res.Decompressed)
	require.Equal(t, uint64(len(plain)), res.Size)

	data, err := os.ReadFile(flashPath)
	require.NoError(t, err)
	require.Equal(t, plain, data[:len(plain)])
	require.Equal(t, bytes.Repeat([]byte{0xff}, slotSize-len(plain)), data[len(plain):slotSize])
	require.Equal(t, img, data[slotSize:slotSize+len(img)])

	primary, _ := flash.NewMemArea(1, slotSize, data[:slotSize])
	hdr, err := check.Image(primary)
	require.NoError(t, err)
	require.False(t, hdr.IsCompressed())

	cnt, err := cfg.SecurityCounters.Get(0)
	require.NoError(t, err)
	require.Equal(t, uint32(2), cnt)
}

func TestUpdateRejectsForeignKey(t *testing.T) {
	cfgPath, flashPath, _ := setup(t)
	other, err := image.NewSigner(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)))
	require.NoError(t, err)

	b := &image.Builder{HdrSize: 0x20, Hash: image.SHA256, Signer: other,
		Protected: []image.TLV{{Type: image.TLVSecCnt, Value: []byte{1, 0, 0, 0}}}}
	img, err := b.BuildCompressed(make([]byte, 10000), compression.Default(compression.DefaultDictProp))
	require.NoError(t, err)
	writeSecondary(t, flashPath, img)

	cfg, err := bootutil.LoadConfig(cfgPath)
	require.NoError(t, err)
	_, err = update.Run(cfg, flashPath, layoutPath, 0, nil)
	require.ErrorIs(t, err, bootutil.ErrSignature)

	data, err := os.ReadFile(flashPath)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xff}, slotSize), data[:slotSize])
}
