/*
 * Copyright 2024-2025 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package request

import (
	"expvar"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/rabbitstack/irpmon/pkg/util/bytes"
	zstd "github.com/valyala/gozstd"
)

// Algorithm identifies the compression algorithm applied to the payload.
type Algorithm uint8

const (
	// None means the payload is stored as is.
	None Algorithm = iota
	// ZSTD compresses the payload with zstd.
	ZSTD
	// LZ4 compresses the payload with LZ4 block compression.
	LZ4
)

var (
	compressionSkips    = expvar.NewInt("request.compression.skips")
	decompressionErrors = expvar.NewInt("request.decompression.errors")
)

// IsValid determines if the algorithm can appear in compressed records.
func (a Algorithm) IsValid() bool { return a == ZSTD || a == LZ4 }

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case ZSTD:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses the algorithm from its name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "", "none":
		return None, nil
	case "zstd":
		return ZSTD, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, fmt.Errorf("unknown compression algorithm: %q", s)
	}
}

// Compress compresses the record payload in place with zstd.
func Compress(b *Buffer) bool { return CompressWith(b, ZSTD) }

// CompressWith compresses the record payload in place with the given
// algorithm. The header is rewritten to carry the compressed flag and
// the new total size. It returns false and leaves the record untouched
// if the record is malformed, already compressed, has an empty payload,
// or compression doesn't shrink it.
func CompressWith(b *Buffer, alg Algorithm) bool {
	raw := b.Bytes()
	size := SizeOf(raw)
	if size == 0 || len(raw) < size || !alg.IsValid() {
		return false
	}
	flags := Flags(bytes.ReadUint16(raw[2:4]))
	if flags.IsCompressed() {
		return false
	}
	payload := raw[HeaderSize:size]
	if len(payload) == 0 {
		return false
	}

	var compressed []byte
	switch alg {
	case ZSTD:
		compressed = zstd.Compress(nil, payload)
	case LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil || n == 0 {
			compressionSkips.Add(1)
			return false
		}
		compressed = dst[:n]
	}

	total := HeaderSize + compressedPreambleSize + len(compressed)
	if total >= size {
		compressionSkips.Add(1)
		return false
	}

	w := bytes.NewWriter(make([]byte, 0, total))
	w.Bytes(raw[:HeaderSize])
	w.Uint8(uint8(alg))
	w.Pad(3)
	w.Uint32(uint32(len(payload)))
	w.Uint32(uint32(len(compressed)))
	w.Bytes(compressed)

	out := w.Buffer()
	bytes.ByteOrder.PutUint16(out[2:4], uint16(flags|Compressed))
	bytes.ByteOrder.PutUint32(out[4:8], uint32(total))

	b.bb.B = append(b.bb.B[:0], out...)
	return true
}

// Decompress expands the compressed record into a newly allocated
// buffer. Decompressing an uncompressed record returns its copy. The
// source buffer is never modified.
func Decompress(b *Buffer) (*Buffer, error) {
	raw := b.Bytes()
	if err := Validate(raw); err != nil {
		return nil, err
	}
	if !Flags(bytes.ReadUint16(raw[2:4])).IsCompressed() {
		return Copy(b), nil
	}
	expanded, err := expand(raw[:SizeOf(raw)])
	if err != nil {
		return nil, err
	}
	return FromBytes(expanded), nil
}

// expand decompresses the raw record and returns the plain record
// with the compressed flag cleared.
func expand(raw []byte) ([]byte, error) {
	preamble := raw[HeaderSize : HeaderSize+compressedPreambleSize]
	alg := Algorithm(preamble[0])
	usize := int(bytes.ReadUint32(preamble[4:8]))
	csize := int(bytes.ReadUint32(preamble[8:12]))
	if usize > MaxSize {
		decompressionErrors.Add(1)
		return nil, errMalformed(fmt.Sprintf("uncompressed payload of %d bytes exceeds the maximum record size", usize))
	}
	compressed := raw[HeaderSize+compressedPreambleSize : HeaderSize+compressedPreambleSize+csize]

	var (
		payload []byte
		err     error
	)
	switch alg {
	case ZSTD:
		payload, err = zstd.Decompress(make([]byte, 0, usize), compressed)
	case LZ4:
		payload = make([]byte, usize)
		var n int
		n, err = lz4.UncompressBlock(compressed, payload)
		if err == nil && n != usize {
			err = fmt.Errorf("lz4 decompressed %d bytes, expected %d", n, usize)
		}
	default:
		err = fmt.Errorf("unsupported compression algorithm %s", alg)
	}
	if err != nil {
		decompressionErrors.Add(1)
		return nil, errMalformed(err.Error())
	}
	if len(payload) != usize {
		decompressionErrors.Add(1)
		return nil, errMalformed(fmt.Sprintf("decompressed %d bytes, expected %d", len(payload), usize))
	}

	out := make([]byte, 0, HeaderSize+usize)
	out = append(out, raw[:HeaderSize]...)
	out = append(out, payload...)
	flags := Flags(bytes.ReadUint16(out[2:4])) &^ Compressed
	bytes.ByteOrder.PutUint16(out[2:4], uint16(flags))
	bytes.ByteOrder.PutUint32(out[4:8], uint32(len(out)))

	if SizeOf(out) != len(out) {
		decompressionErrors.Add(1)
		return nil, errMalformed("decompressed payload doesn't match the request type layout")
	}
	return out, nil
}
