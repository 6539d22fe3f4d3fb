// Copyright 2018-2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lzma2 compresses and decompresses MCUboot image payloads: a raw LZMA2
// stream behind a two byte header holding the dictionary size property.
//
// Synopsis:
//     lzma2 -o OUTPUT_FILE (-d|-e) [-p PROP] [--xz PATH] INPUT_FILE
//
// Options:
//     -d: decode
//     -e: encode
//     -p PROP: dictionary size property used for encoding (0-40)
//     --xz PATH: encode with the given xz binary
//     -o OUTPUT_FILE: output file
package main

import (
	"os"

	flag "github.com/spf13/pflag"

	"github.com/linuxboot/mcuimg/pkg/compression"
	"github.com/linuxboot/mcuimg/pkg/log"
	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

var (
	d    = flag.BoolP("decode", "d", false, "decode")
	e    = flag.BoolP("encode", "e", false, "encode")
	prop = flag.Uint8P("prop", "p", compression.DefaultDictProp, "dictionary size property")
	xz   = flag.String("xz", "", "path to the xz binary used for encoding")
	o    = flag.StringP("output", "o", "", "output file")
	v    = flag.BoolP("verbose", "v", false, "print debug messages")
)

func main() {
	flag.Parse()
	log.Verbose = *v

	if *d == *e {
		log.Fatalf("either decode (-d) or encode (-e) must be set")
	}
	if *o == "" {
		log.Fatalf("output file must be set")
	}
	if flag.NArg() != 1 {
		log.Fatalf("expected one input file")
	}
	if *prop > lzma2.MaxDictProp {
		log.Fatalf("dictionary size property %d is larger than %d", *prop, lzma2.MaxDictProp)
	}
	compression.XZPath = *xz
	compressor := compression.Default(*prop)

	var op func([]byte) ([]byte, error)
	if *d {
		op = compressor.Decode
	} else {
		op = compressor.Encode
	}

	in, err := os.ReadFile(flag.Args()[0])
	if err != nil {
		log.Fatalf("%v", err)
	}
	out, err := op(in)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *e {
		dict, _ := lzma2.DictSize(*prop)
		log.Debugf("%d bytes compressed to %d, dictionary %d bytes", len(in), len(out), dict)
	}
	if err := os.WriteFile(*o, out, 0666); err != nil {
		log.Fatalf("%v", err)
	}
}
