// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decompress

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/pkg/bootutil"
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/log"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	ImagePath  string `short:"f" long:"image" description:"path to the compressed MCUboot image" required:"true"`
	OutputPath string `short:"o" long:"output" description:"path of the decompressed image" required:"true"`
	ConfigPath string `short:"c" long:"config" description:"path to the bootloader config (YAML)"`
	NoVerify   bool   `long:"no-verify" description:"do not validate the image before decompressing it"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "writes the decompressed form of a compressed image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "The output is the image the bootloader would install into the primary slot."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	cfg, err := commands.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return err
	}
	src, _, err := commands.ReadImage(cmd.ImagePath)
	if err != nil {
		return err
	}
	hdr, err := image.ReadHeader(src)
	if err != nil {
		return fmt.Errorf("unable to read the image header: %w", err)
	}
	if !hdr.IsCompressed() {
		return fmt.Errorf("image '%s' is not compressed", cmd.ImagePath)
	}
	if !cmd.NoVerify {
		v, err := bootutil.NewValidator(cfg)
		if err != nil {
			return err
		}
		if _, err := v.Validate(0, flash.SlotSecondary, hdr, src, nil); err != nil {
			log.Errorf("%v", err)
			return commands.ErrRejected{Path: cmd.ImagePath}
		}
	}

	total, err := bootutil.DecompressedTotalSize(cfg, hdr, src)
	if err != nil {
		return err
	}
	if total > uint64(^uint32(0)) {
		return fmt.Errorf("decompressed image is too large: %d bytes", total)
	}
	size := uint32(total)
	dst, dev := flash.NewMemArea(1, size, nil)
	st := &bootutil.State{Primary: dst, Secondary: src}
	if err := bootutil.CopyRegionCompressed(cfg, st, src, dst, 0, 0, src.Size()); err != nil {
		return fmt.Errorf("unable to decompress the image: %w", err)
	}
	out := make([]byte, size)
	if err := dev.ReadAt(0, out); err != nil {
		return err
	}
	if err := os.WriteFile(cmd.OutputPath, out, 0o644); err != nil {
		return fmt.Errorf("unable to write the output file '%s': %w", cmd.OutputPath, err)
	}
	log.Infof("wrote %s (%s)", cmd.OutputPath, humanize.IBytes(uint64(size)))
	return nil
}
