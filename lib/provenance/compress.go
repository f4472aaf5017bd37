// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to a stored value.
// The tag is the first byte of every stored blob (before encryption),
// so these values are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the CBOR value as is. Also used whenever
	// compression would not shrink the value.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. Records with long
	// node lists compress noticeably better with zstd than with LZ4.
	CompressionZstd CompressionTag = 2
)

// String returns the configuration name of the tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses "none", "lz4" or "zstd". The empty string
// is "none".
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// errIncompressible is returned by the compressors when the output
// would not be smaller than the input.
var errIncompressible = errors.New("data is incompressible")

// maxValueSize bounds the decompressed size read from a blob header so
// a corrupted header cannot trigger a huge allocation.
const maxValueSize = 64 << 20

// packValue compresses value with tag and frames it:
//
//	[tag: 1 byte] [uncompressed length: uvarint, omitted for none] [data]
//
// Incompressible values are framed with CompressionNone.
func packValue(value []byte, tag CompressionTag) ([]byte, error) {
	var compressed []byte
	var err error
	switch tag {
	case CompressionNone:
	case CompressionLZ4:
		compressed, err = compressLZ4(value)
	case CompressionZstd:
		compressed, err = compressZstd(value)
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
	if errors.Is(err, errIncompressible) || tag == CompressionNone {
		framed := make([]byte, 1+len(value))
		framed[0] = byte(CompressionNone)
		copy(framed[1:], value)
		return framed, nil
	}
	if err != nil {
		return nil, err
	}

	framed := make([]byte, 1, 1+binary.MaxVarintLen64+len(compressed))
	framed[0] = byte(tag)
	framed = binary.AppendUvarint(framed, uint64(len(value)))
	return append(framed, compressed...), nil
}

// unpackValue reverses packValue.
func unpackValue(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty value blob")
	}
	tag := CompressionTag(blob[0])
	if tag == CompressionNone {
		return blob[1:], nil
	}

	size, headerLength := binary.Uvarint(blob[1:])
	if headerLength <= 0 {
		return nil, fmt.Errorf("%s blob has a malformed length header", tag)
	}
	if size > maxValueSize {
		return nil, fmt.Errorf("%s blob claims %d bytes, limit is %d", tag, size, maxValueSize)
	}
	data := blob[1+headerLength:]

	switch tag {
	case CompressionLZ4:
		return decompressLZ4(data, int(size))
	case CompressionZstd:
		return decompressZstd(data, int(size))
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstd encoders and decoders are safe for concurrent use and costly to
// create, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("provenance: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("provenance: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
