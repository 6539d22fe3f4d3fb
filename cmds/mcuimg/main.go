// Copyright 2017-2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mcuimg inspects, builds and installs MCUboot images, including images
// with an LZMA2 compressed payload.
//
// Synopsis:
//     mcuimg show -f IMAGE [--format=json]
//     mcuimg check -f IMAGE
//     mcuimg verify -f IMAGE [-c CONFIG] [--slot primary|secondary]
//     mcuimg decompress -f IMAGE -o OUTPUT [-c CONFIG]
//     mcuimg pack -i PAYLOAD -o IMAGE [-k KEY] [-z lzma2]
//     mcuimg update -f FLASH -l LAYOUT [-c CONFIG] [-n INDEX]
//
// An example:
//     mcuimg pack -i zephyr.bin -o signed.bin -k root-ed25519.pem -z lzma2 --security-counter 3
//     mcuimg verify -f signed.bin -c bootloader.yaml
//     mcuimg update -f flash.bin -l layout.yaml -c bootloader.yaml
//
// Description:
//     show:       Print the header and TLVs
//     check:      Report structural problems
//     verify:     Validate hashes and signatures like the bootloader does
//     decompress: Write the decompressed form of a compressed image
//     pack:       Create a signed, optionally compressed, image
//     update:     Install the secondary slot image into the primary slot
package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/check"
	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/decompress"
	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/pack"
	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/show"
	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/update"
	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands/verify"
	"github.com/linuxboot/mcuimg/pkg/compression"
	"github.com/linuxboot/mcuimg/pkg/log"
)

var (
	knownCommands = map[string]commands.Command{
		"show":       &show.Command{},
		"check":      &check.Command{},
		"verify":     &verify.Command{},
		"decompress": &decompress.Command{},
		"pack":       &pack.Command{},
		"update":     &update.Command{},
	}
)

type globalOptions struct {
	Verbose bool   `long:"verbose" description:"print debug messages"`
	XZPath  string `long:"xz" description:"encode LZMA2 with this xz binary instead of the Go encoder"`
}

func main() {
	var opts globalOptions
	flagsParser := flags.NewParser(&opts, flags.Default)
	flagsParser.CommandHandler = func(command flags.Commander, args []string) error {
		log.Verbose = opts.Verbose
		compression.XZPath = opts.XZPath
		if command == nil {
			return nil
		}
		return command.Execute(args)
	}
	for commandName, command := range knownCommands {
		_, err := flagsParser.AddCommand(commandName, command.ShortDescription(), command.LongDescription(), command)
		if err != nil {
			panic(err)
		}
	}

	// parse arguments and execute the appropriate command
	if _, err := flagsParser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("%v", err)
	}
}
