// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/pkg/check"
	"github.com/linuxboot/mcuimg/pkg/log"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	ImagePath string `short:"f" long:"image" description:"path to the MCUboot image" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "checks the structure of an image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Reports every structural problem of the image. Hashes and signatures are not verified, see \"verify\"."
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}
	area, _, err := commands.ReadImage(cmd.ImagePath)
	if err != nil {
		return err
	}
	if _, err := check.Image(area); err != nil {
		if merr, ok := err.(*multierror.Error); ok {
			for _, e := range merr.Errors {
				log.Errorf("%v", e)
			}
		} else {
			log.Errorf("%v", err)
		}
		return commands.ErrRejected{Path: cmd.ImagePath}
	}
	fmt.Println("OK")
	return nil
}
