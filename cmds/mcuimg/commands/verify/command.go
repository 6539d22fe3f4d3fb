// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import (
	"fmt"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/pkg/bootutil"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	ImagePath  string `short:"f" long:"image" description:"path to the MCUboot image" required:"true"`
	ConfigPath string `short:"c" long:"config" description:"path to the bootloader config (YAML)"`
	Slot       string `short:"s" long:"slot" description:"slot the image is validated for [primary, secondary]" default:"secondary"`
	Index      int    `short:"n" long:"image-index" description:"image index" default:"0"`
	Seed       string `long:"seed" description:"hex encoded hash seed"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "validates the hashes and signatures of an image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "A compressed image validated for the secondary slot is also decompressed and checked against its DECOMP_SHA and DECOMP_SIGNATURE records."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	slot, err := commands.ParseSlot(cmd.Slot)
	if err != nil {
		return err
	}
	seed, err := commands.ParseSeed(cmd.Seed)
	if err != nil {
		return err
	}
	cfg, err := commands.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return err
	}
	v, err := bootutil.NewValidator(cfg)
	if err != nil {
		return err
	}

	area, _, err := commands.ReadImage(cmd.ImagePath)
	if err != nil {
		return err
	}
	hdr, err := image.ReadHeader(area)
	if err != nil {
		return fmt.Errorf("unable to read the image header: %w", err)
	}
	digest, err := v.Validate(cmd.Index, slot, hdr, area, seed)
	if err != nil {
		log.Errorf("%v", err)
		return commands.ErrRejected{Path: cmd.ImagePath}
	}
	fmt.Printf("%s: OK (%v %x)\n", cmd.ImagePath, cfg.Hash, digest)
	return nil
}
