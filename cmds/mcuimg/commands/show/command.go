// Copyright 2017-2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package show

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/linuxboot/mcuimg/cmds/mcuimg/commands"
	"github.com/linuxboot/mcuimg/pkg/bootutil"
	"github.com/linuxboot/mcuimg/pkg/flash"
	"github.com/linuxboot/mcuimg/pkg/image"
)

var _ commands.Command = (*Command)(nil)

type Command struct {
	ImagePath string  `short:"f" long:"image" description:"path to the MCUboot image" required:"true"`
	Format    *string `long:"format" description:"output format [text, json]"`
}

type Format int

const (
	FormatUndefined = Format(iota)
	FormatText
	FormatJSON
)

func ParseFormat(s string) Format {
	switch strings.Trim(strings.ToLower(s), " ") {
	case "text":
		return FormatText
	case "json":
		return FormatJSON
	}
	return FormatUndefined
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "prints the header and TLVs of an image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "For compressed images the size of the decompressed image is printed as well."
}

// TLV is a printable TLV record.
type TLV struct {
	Type      string
	Protected bool
	Length    int
	Value     string
}

// Info is what the command prints.
type Info struct {
	Header           *image.Header
	Size             uint32
	DecompressedSize uint64 `json:",omitempty"`
	TLVs             []TLV
}

// Execute is the main function here. It is responsible to
// start the execution of the command.
//
// `args` are the arguments left unused by verb itself and options.
func (cmd *Command) Execute(args []string) error {
	if len(args) != 0 {
		return commands.ErrArgs{Err: fmt.Errorf("there are extra arguments")}
	}

	format := FormatText
	if cmd.Format != nil {
		format = ParseFormat(*cmd.Format)
		if format == FormatUndefined {
			return commands.ErrArgs{Err: fmt.Errorf("unknown format '%s'", *cmd.Format)}
		}
	}

	area, _, err := commands.ReadImage(cmd.ImagePath)
	if err != nil {
		return err
	}
	info, err := Collect(area)
	if err != nil {
		return err
	}

	switch format {
	case FormatText:
		Print(os.Stdout, info)
	case FormatJSON:
		b, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s\n", b)
	}
	return nil
}

// Collect reads the header and TLVs of the image in area.
func Collect(area flash.Area) (*Info, error) {
	hdr, err := image.ReadHeader(area)
	if err != nil {
		return nil, fmt.Errorf("unable to read the image header: %w", err)
	}
	it, err := image.NewTLVIterator(hdr, area, image.TLVAny, false)
	if err != nil {
		return nil, fmt.Errorf("unable to read the TLVs: %w", err)
	}
	info := &Info{Header: hdr, Size: it.End()}
	cfg := &bootutil.Config{}
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("unable to read the TLVs: %w", err)
		}
		if !ok {
			break
		}
		v, err := image.ReadValue(area, e)
		if err != nil {
			return nil, err
		}
		if !it.IsProtected(e.Offset) {
			guessAlgorithms(cfg, e.Type)
		}
		info.TLVs = append(info.TLVs, TLV{
			Type:      e.Type.String(),
			Protected: it.IsProtected(e.Offset),
			Length:    len(v),
			Value:     hex.EncodeToString(v),
		})
	}
	if hdr.IsCompressed() {
		if err := cfg.SetDefaults(); err != nil {
			return nil, err
		}
		if info.DecompressedSize, err = bootutil.DecompressedTotalSize(cfg, hdr, area); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// guessAlgorithms sets the hash and signature of cfg to the ones an
// unprotected record of type t belongs to.
func guessAlgorithms(cfg *bootutil.Config, t image.TLVType) {
	for _, h := range []image.HashAlgorithm{image.SHA256, image.SHA384, image.SHA512} {
		if h.TLVType() == t {
			cfg.Hash = h
		}
	}
	for _, s := range []image.SignatureScheme{
		image.SignatureRSA2048PSS, image.SignatureRSA3072PSS,
		image.SignatureECDSAP256, image.SignatureEd25519,
	} {
		if s.TLVType() == t {
			cfg.Signature = s
		}
	}
}

// Print writes info as tables.
func Print(w io.Writer, info *Info) {
	hdr := info.Header
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Image header")
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Load address", fmt.Sprintf("%#08x", hdr.LoadAddr)})
	t.AppendRow(table.Row{"Header size", fmt.Sprintf("%#x", hdr.HdrSize)})
	t.AppendRow(table.Row{"Payload size", fmt.Sprintf("%#x (%s)", hdr.ImgSize, humanize.IBytes(uint64(hdr.ImgSize)))})
	t.AppendRow(table.Row{"Protected TLVs", fmt.Sprintf("%#x", hdr.ProtectTLVSize)})
	t.AppendRow(table.Row{"Flags", hdr.Flags.String()})
	t.AppendRow(table.Row{"Version", hdr.Version.String()})
	t.AppendRow(table.Row{"Image size", humanize.IBytes(uint64(info.Size))})
	if info.DecompressedSize != 0 {
		t.AppendRow(table.Row{"Decompressed size", humanize.IBytes(info.DecompressedSize)})
	}
	t.Render()

	t = table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("TLVs")
	t.AppendHeader(table.Row{"Type", "Protected", "Length", "Value"})
	for _, tlv := range info.TLVs {
		value := tlv.Value
		if len(value) > 64 {
			value = value[:64] + "..."
		}
		t.AppendRow(table.Row{tlv.Type, tlv.Protected, tlv.Length, value})
	}
	t.Render()
}
