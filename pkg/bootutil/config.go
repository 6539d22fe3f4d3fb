// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootutil

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/linuxboot/mcuimg/pkg/image"
	"github.com/linuxboot/mcuimg/pkg/lzma2"
)

// Defaults of Config.
const (
	DefaultChunkSize   = 4096
	DefaultMaxDictSize = 1 << 20

	minChunkSize = 64
)

// KeyMode selects how the signing key of an image is identified.
type KeyMode int

// Key modes.
const (
	// KeyModeHash looks the KEYHASH record up in the built-in key set.
	KeyModeHash KeyMode = iota
	// KeyModeHardware takes the key from the PUBKEY record and checks its
	// hash against the one provisioned in hardware.
	KeyModeHardware
)

func (m KeyMode) String() string {
	switch m {
	case KeyModeHash:
		return "hash"
	case KeyModeHardware:
		return "hardware"
	}
	return fmt.Sprintf("KeyMode(%d)", int(m))
}

// UnmarshalYAML accepts the mode name.
func (m *KeyMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "hash":
		*m = KeyModeHash
	case "hardware":
		*m = KeyModeHardware
	default:
		return fmt.Errorf("unknown key mode %q", s)
	}
	return nil
}

// MarshalYAML writes the mode name.
func (m KeyMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// Config selects the algorithms and resources used to validate and install
// images. The zero value is usable after SetDefaults for unsigned SHA-256
// images.
type Config struct {
	Hash      image.HashAlgorithm   `yaml:"hash"`
	Signature image.SignatureScheme `yaml:"signature"`
	KeyMode   KeyMode               `yaml:"key_mode"`

	// ChunkSize is the size of each scratch buffer. It bounds the RAM of a
	// pass and the largest TLV that can be relocated.
	ChunkSize uint32 `yaml:"chunk_size"`
	// MaxDictSize bounds the LZMA2 dictionary of a compressed image.
	MaxDictSize uint32 `yaml:"max_dict_size"`
	// RollbackProtection enables the SEC_CNT check.
	RollbackProtection bool `yaml:"rollback_protection"`

	// KeyFiles are PEM files loaded into Keys by LoadConfig.
	KeyFiles []string `yaml:"keys,omitempty"`
	// HardwareKeyHash is the hex encoded provisioned key hash used in
	// hardware key mode when HardwareKeys is not set.
	HardwareKeyHash string `yaml:"hardware_key_hash,omitempty"`

	Keys             *KeySet          `yaml:"-"`
	HardwareKeys     HardwareKeys     `yaml:"-"`
	SecurityCounters SecurityCounters `yaml:"-"`
	Decoder          lzma2.Decoder    `yaml:"-"`
	Allocator        lzma2.Allocator  `yaml:"-"`
}

// SetDefaults fills in unset fields.
func (c *Config) SetDefaults() error {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxDictSize == 0 {
		c.MaxDictSize = DefaultMaxDictSize
	}
	if c.Decoder == nil {
		c.Decoder = lzma2.GoDecoder{}
	}
	if c.Allocator == nil {
		c.Allocator = lzma2.NewArena(uint64(c.MaxDictSize))
	}
	if c.Keys == nil {
		c.Keys = NewKeySet()
	}
	if c.HardwareKeys == nil && c.HardwareKeyHash != "" {
		h, err := hex.DecodeString(c.HardwareKeyHash)
		if err != nil {
			return fmt.Errorf("invalid hardware_key_hash: %w", err)
		}
		c.HardwareKeys = StaticHardwareKey(h)
	}
	if c.SecurityCounters == nil && c.RollbackProtection {
		c.SecurityCounters = NewMemCounters()
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := image.ParseHashAlgorithm(c.Hash.String()); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := image.ParseSignatureScheme(c.Signature.String()); err != nil {
		result = multierror.Append(result, err)
	}
	if c.ChunkSize < minChunkSize {
		result = multierror.Append(result, fmt.Errorf("chunk_size %d is smaller than %d", c.ChunkSize, minChunkSize))
	}
	if c.Decoder == nil || c.Allocator == nil {
		result = multierror.Append(result, fmt.Errorf("decoder and allocator must be set"))
	}
	if c.Signature != image.SignatureNone {
		switch c.KeyMode {
		case KeyModeHash:
			if c.Keys == nil || c.Keys.Len() == 0 {
				result = multierror.Append(result, fmt.Errorf("signature %v needs at least one key", c.Signature))
			}
		case KeyModeHardware:
			if c.HardwareKeys == nil {
				result = multierror.Append(result, fmt.Errorf("hardware key mode needs a provisioned key hash"))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("unknown key mode %v", c.KeyMode))
		}
	}
	if c.RollbackProtection && c.SecurityCounters == nil {
		result = multierror.Append(result, fmt.Errorf("rollback protection needs security counters"))
	}
	return result.ErrorOrNil()
}

// ParseConfig decodes a YAML configuration. Relative key files are
// resolved against dir.
func ParseConfig(data []byte, dir string) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}
	paths := make([]string, 0, len(c.KeyFiles))
	for _, p := range c.KeyFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		paths = append(paths, p)
	}
	keys, err := LoadKeySet(paths...)
	if err != nil {
		return nil, err
	}
	c.Keys = keys
	if err := c.SetDefaults(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data, filepath.Dir(path))
}
