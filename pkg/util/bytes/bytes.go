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

package bytes

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by the reader when there are not enough
// bytes left to satisfy the read.
var ErrShortBuffer = errors.New("short buffer")

// ByteOrder is the byte order of all records exchanged with the monitor.
var ByteOrder = binary.LittleEndian

// ReadUint16 reads the uint16 value from the byte slice.
func ReadUint16(b []byte) uint16 { return ByteOrder.Uint16(b) }

// ReadUint32 reads the uint32 value from the byte slice.
func ReadUint32(b []byte) uint32 { return ByteOrder.Uint32(b) }

// ReadUint64 reads the uint64 value from the byte slice.
func ReadUint64(b []byte) uint64 { return ByteOrder.Uint64(b) }

// Writer appends fixed-width little-endian values to the underlying slice.
type Writer struct {
	b []byte
}

// NewWriter creates a writer that appends to b.
func NewWriter(b []byte) *Writer { return &Writer{b: b} }

func (w *Writer) Uint8(v uint8)   { w.b = append(w.b, v) }
func (w *Writer) Uint16(v uint16) { w.b = ByteOrder.AppendUint16(w.b, v) }
func (w *Writer) Uint32(v uint32) { w.b = ByteOrder.AppendUint32(w.b, v) }
func (w *Writer) Uint64(v uint64) { w.b = ByteOrder.AppendUint64(w.b, v) }
func (w *Writer) Int64(v int64)   { w.b = ByteOrder.AppendUint64(w.b, uint64(v)) }
func (w *Writer) Bytes(v []byte)  { w.b = append(w.b, v...) }

// Pad appends n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.b = append(w.b, 0)
	}
}

// Buffer returns the accumulated bytes.
func (w *Writer) Buffer() []byte { return w.b }

// Len returns the number of accumulated bytes.
func (w *Writer) Len() int { return len(w.b) }

// Reader consumes fixed-width little-endian values from the byte slice.
// The first failed read sticks, so callers can check Err once after
// decoding the whole structure.
type Reader struct {
	b   []byte
	off int
	err error
}

// NewReader creates a reader over b.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) Uint16() uint16 {
	if b := r.next(2); b != nil {
		return ByteOrder.Uint16(b)
	}
	return 0
}

func (r *Reader) Uint32() uint32 {
	if b := r.next(4); b != nil {
		return ByteOrder.Uint32(b)
	}
	return 0
}

func (r *Reader) Uint64() uint64 {
	if b := r.next(8); b != nil {
		return ByteOrder.Uint64(b)
	}
	return 0
}

func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.next(n)
	if b == nil {
		return nil
	}
	c := make([]byte, n)
	copy(c, b)
	return c
}

// Skip advances the reader by n bytes.
func (r *Reader) Skip(n int) { r.next(n) }

// Offset returns the number of consumed bytes.
func (r *Reader) Offset() int { return r.off }

// Err returns the first error encountered by the reader.
func (r *Reader) Err() error { return r.err }
