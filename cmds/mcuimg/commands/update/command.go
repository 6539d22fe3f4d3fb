// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package update

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/pkg/bootutil"
	"github.com/linuxboot/mcuimg/pkg/flash"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	FlashPath  string `short:"f" long:"flash" description:"path to the flash image file" required:"true"`
	LayoutPath string `short:"l" long:"layout" description:"path to the flash layout (YAML)" required:"true"`
	ConfigPath string `short:"c" long:"config" description:"path to the bootloader config (YAML)"`
	Index      int    `short:"n" long:"image-index" description:"image index" default:"0"`
	Seed       string `long:"seed" description:"hex encoded hash seed"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "installs the secondary slot image into the primary slot"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Performs an overwrite-only upgrade on a flash image file: the secondary slot is validated, " +
		"the primary slot is erased and the image is copied (decompressing it if needed) and validated again."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	seed, err := commands.ParseSeed(cmd.Seed)
	if err != nil {
		return err
	}
	cfg, err := commands.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return err
	}
	res, err := Run(cfg, cmd.FlashPath, cmd.LayoutPath, cmd.Index, seed)
	if err != nil {
		return err
	}
	kind := "copied"
	if res.Decompressed {
		kind = "decompressed"
	}
	fmt.Printf("image %d: version %v %s into the primary slot (%s)\n",
		cmd.Index, res.Header.Version, kind, humanize.IBytes(res.Size))
	return nil
}

// Run performs the update of image index on the flash file at flashPath.
func Run(cfg *bootutil.Config, flashPath, layoutPath string, index int, seed []byte) (*bootutil.UpdateResult, error) {
	layout, err := flash.LoadLayout(layoutPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load the layout '%s': %w", layoutPath, err)
	}
	m, closer, err := flash.OpenFile(flashPath, *layout)
	if err != nil {
		return nil, fmt.Errorf("unable to open the flash image '%s': %w", flashPath, err)
	}
	defer closer.Close()

	st := &bootutil.State{ImageIndex: index}
	if st.Primary, err = m.OpenSlot(index, flash.SlotPrimary); err != nil {
		return nil, err
	}
	if st.Secondary, err = m.OpenSlot(index, flash.SlotSecondary); err != nil {
		return nil, err
	}
	l, err := bootutil.NewLoader(cfg)
	if err != nil {
		return nil, err
	}
	return l.Update(st, seed)
}
