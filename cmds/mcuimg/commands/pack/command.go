// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pack

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/pkg/compression"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	PayloadPath     string  `short:"i" long:"payload" description:"path to the firmware binary" required:"true"`
	OutputPath      string  `short:"o" long:"output" description:"path of the image to write" required:"true"`
	KeyPath         string  `short:"k" long:"key" description:"PEM private key to sign the image with"`
	PubKey          bool    `long:"public-key" description:"embed the full public key (PUBKEY) instead of its hash"`
	Hash            string  `long:"hash" description:"hash algorithm [sha256, sha384, sha512]" default:"sha256"`
	Version         string  `long:"version" description:"image version, major.minor.revision+build" default:"0.0.0+0"`
	LoadAddr        uint32  `long:"load-addr" description:"RAM load address"`
	HeaderSize      uint16  `long:"header-size" description:"header size including padding" default:"32"`
	SecurityCounter *uint32 `long:"security-counter" description:"value of the SEC_CNT record"`
	Compression     string  `short:"z" long:"compression" description:"compress the payload [lzma2, xz]"`
	DictProp        uint8   `long:"dict-prop" description:"LZMA2 dictionary size property" default:"8"`
	Seed            string  `long:"seed" description:"hex encoded hash seed"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "creates a (compressed) signed image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Compressed images carry the size, digest and signature of their decompressed form in protected TLVs."
}

// ParseVersion parses "major.minor.revision+build"; the trailing parts may
// be omitted.
func ParseVersion(s string) (image.Version, error) {
	var major, minor uint8
	var rev uint16
	var build uint32
	n, _ := fmt.Sscanf(s, "%d.%d.%d+%d", &major, &minor, &rev, &build)
	if n == 0 {
		return image.Version{}, fmt.Errorf("invalid version '%s'", s)
	}
	return image.Version{Major: major, Minor: minor, Revision: rev, BuildNum: build}, nil
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	b, err := cmd.Builder()
	if err != nil {
		return err
	}
	payload, err := os.ReadFile(cmd.PayloadPath)
	if err != nil {
		return fmt.Errorf("unable to read the payload '%s': %w", cmd.PayloadPath, err)
	}

	var img []byte
	if cmd.Compression == "" {
		img, err = b.Build(payload)
	} else {
		var c compression.Compressor
		c, err = compression.ByName(cmd.Compression, cmd.DictProp)
		if err != nil {
			return commands.ErrArgs{Err: err}
		}
		img, err = b.BuildCompressed(payload, c)
	}
	if err != nil {
		return fmt.Errorf("unable to build the image: %w", err)
	}
	if err := os.WriteFile(cmd.OutputPath, img, 0o644); err != nil {
		return fmt.Errorf("unable to write the image '%s': %w", cmd.OutputPath, err)
	}
	log.Infof("wrote %s: payload %s, image %s", cmd.OutputPath,
		humanize.IBytes(uint64(len(payload))), humanize.IBytes(uint64(len(img))))
	return nil
}

// Builder returns the image builder the options describe.
func (cmd *Command) Builder() (*image.Builder, error) {
	h, err := image.ParseHashAlgorithm(cmd.Hash)
	if err != nil {
		return nil, commands.ErrArgs{Err: err}
	}
	v, err := ParseVersion(cmd.Version)
	if err != nil {
		return nil, commands.ErrArgs{Err: err}
	}
	seed, err := commands.ParseSeed(cmd.Seed)
	if err != nil {
		return nil, err
	}
	b := &image.Builder{
		LoadAddr: cmd.LoadAddr,
		Version:  v,
		HdrSize:  cmd.HeaderSize,
		Hash:     h,
		PubKey:   cmd.PubKey,
		Seed:     seed,
	}
	if cmd.LoadAddr != 0 {
		b.Flags |= image.FlagRAMLoad
	}
	if cmd.SecurityCounter != nil {
		cnt := make([]byte, 4)
		binary.LittleEndian.PutUint32(cnt, *cmd.SecurityCounter)
		b.Protected = append(b.Protected, image.TLV{Type: image.TLVSecCnt, Value: cnt})
	}
	if cmd.KeyPath != "" {
		data, err := os.ReadFile(cmd.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read the key '%s': %w", cmd.KeyPath, err)
		}
		key, err := image.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("unable to parse the key '%s': %w", cmd.KeyPath, err)
		}
		if b.Signer, err = image.NewSigner(key); err != nil {
			return nil, err
		}
	}
	return b, nil
}
