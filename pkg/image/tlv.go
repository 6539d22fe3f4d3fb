// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"encoding/binary"
	"fmt"
)

// TLVType is the tag of a TLV record.
type TLVType uint16

// TLV types.
const (
	TLVKeyHash         TLVType = 0x01
	TLVPubKey          TLVType = 0x02
	TLVSHA256          TLVType = 0x10
	TLVSHA384          TLVType = 0x11
	TLVSHA512          TLVType = 0x12
	TLVRSA2048PSS      TLVType = 0x20
	TLVECDSA224        TLVType = 0x21
	TLVECDSASig        TLVType = 0x22
	TLVRSA3072PSS      TLVType = 0x23
	TLVEd25519         TLVType = 0x24
	TLVEncRSA2048      TLVType = 0x30
	TLVEncKW           TLVType = 0x31
	TLVEncEC256        TLVType = 0x32
	TLVEncX25519       TLVType = 0x33
	TLVDependency      TLVType = 0x40
	TLVSecCnt          TLVType = 0x50
	TLVBootRecord      TLVType = 0x60
	TLVDecompSize      TLVType = 0x70
	TLVDecompSHA       TLVType = 0x71
	TLVDecompSignature TLVType = 0x72
	TLVCompDecSize     TLVType = 0x73
	TLVAny             TLVType = 0xffff
)

var tlvNames = map[TLVType]string{
	TLVKeyHash:         "KEYHASH",
	TLVPubKey:          "PUBKEY",
	TLVSHA256:          "SHA256",
	TLVSHA384:          "SHA384",
	TLVSHA512:          "SHA512",
	TLVRSA2048PSS:      "RSA2048_PSS",
	TLVECDSA224:        "ECDSA224",
	TLVECDSASig:        "ECDSA_SIG",
	TLVRSA3072PSS:      "RSA3072_PSS",
	TLVEd25519:         "ED25519",
	TLVEncRSA2048:      "ENC_RSA2048",
	TLVEncKW:           "ENC_KW",
	TLVEncEC256:        "ENC_EC256",
	TLVEncX25519:       "ENC_X25519",
	TLVDependency:      "DEPENDENCY",
	TLVSecCnt:          "SEC_CNT",
	TLVBootRecord:      "BOOT_RECORD",
	TLVDecompSize:      "DECOMP_SIZE",
	TLVDecompSHA:       "DECOMP_SHA",
	TLVDecompSignature: "DECOMP_SIGNATURE",
	TLVCompDecSize:     "COMP_DEC_SIZE",
	TLVAny:             "ANY",
}

func (t TLVType) String() string {
	if name, ok := tlvNames[t]; ok {
		return name
	}
	return fmt.Sprintf("%#04x", uint16(t))
}

// IsDecompressionMetadata returns true for the types which only describe a
// compressed image and are dropped from its decompressed form.
func (t TLVType) IsDecompressionMetadata() bool {
	switch t {
	case TLVDecompSize, TLVDecompSHA, TLVDecompSignature, TLVCompDecSize:
		return true
	}
	return false
}

// IsImageHash returns true for the digest types of an image.
func (t TLVType) IsImageHash() bool {
	switch t {
	case TLVSHA256, TLVSHA384, TLVSHA512:
		return true
	}
	return false
}

// IsSignature returns true for the signature types of an image.
func (t TLVType) IsSignature() bool {
	switch t {
	case TLVRSA2048PSS, TLVECDSA224, TLVECDSASig, TLVRSA3072PSS, TLVEd25519:
		return true
	}
	return false
}

// Magic values of TLV info headers.
const (
	InfoMagic     = 0x6907
	ProtInfoMagic = 0x6908
)

// TLVInfoSize is the size of a TLV info header, TLVHeaderSize the size of a
// record header.
const (
	TLVInfoSize   = 4
	TLVHeaderSize = 4
)

// TLVInfo precedes the protected and the unprotected TLV sections. Tot
// includes the info header itself.
type TLVInfo struct {
	Magic uint16
	Tot   uint16
}

// Bytes encodes the info header.
func (i TLVInfo) Bytes() []byte {
	b := make([]byte, TLVInfoSize)
	binary.LittleEndian.PutUint16(b[0:], i.Magic)
	binary.LittleEndian.PutUint16(b[2:], i.Tot)
	return b
}

func parseTLVInfo(b []byte) TLVInfo {
	return TLVInfo{
		Magic: binary.LittleEndian.Uint16(b[0:]),
		Tot:   binary.LittleEndian.Uint16(b[2:]),
	}
}

// TLV is a record with its value.
type TLV struct {
	Type  TLVType
	Value []byte
}

// Size returns the encoded size of the record.
func (t TLV) Size() int {
	return TLVHeaderSize + len(t.Value)
}

// AppendTo appends the encoded record to b.
func (t TLV) AppendTo(b []byte) []byte {
	var hdr [TLVHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:], uint16(t.Type))
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(t.Value)))
	b = append(b, hdr[:]...)
	return append(b, t.Value...)
}

// TLVHeader encodes the header of a record of type t and length n.
func TLVHeader(t TLVType, n uint16) []byte {
	b := make([]byte, TLVHeaderSize)
	binary.LittleEndian.PutUint16(b[0:], uint16(t))
	binary.LittleEndian.PutUint16(b[2:], n)
	return b
}
