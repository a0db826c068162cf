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
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// pool recycles the memory backing the record buffers. Records are
// retrieved at high rates, so allocating each one from the heap would
// put needless pressure on the garbage collector.
var pool bytebufferpool.Pool

// Buffer holds the raw request record. Buffers are obtained from
// Allocate, Copy, Decompress, Encode or the event queue and must be
// released with Free once the caller is done with them. Buffer is not
// safe for concurrent use.
type Buffer struct {
	bb *bytebufferpool.ByteBuffer
}

// Allocate returns a zeroed buffer of the given size.
func Allocate(size int) *Buffer {
	bb := pool.Get()
	if cap(bb.B) < size {
		bb.B = make([]byte, size)
	} else {
		bb.B = bb.B[:size]
		clear(bb.B)
	}
	return &Buffer{bb: bb}
}

// FromBytes copies the raw record into a new buffer.
func FromBytes(b []byte) *Buffer {
	buf := Allocate(len(b))
	copy(buf.bb.B, b)
	return buf
}

// Bytes returns the raw record bytes. The slice is only valid until Free.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.bb == nil {
		return nil
	}
	return b.bb.B
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.Bytes()) }

// Size returns the record size as computed by SizeOf.
func (b *Buffer) Size() int { return SizeOf(b.Bytes()) }

// Header parses the record header.
func (b *Buffer) Header() (Header, error) { return ReadHeader(b.Bytes()) }

// Decode parses the record held in the buffer.
func (b *Buffer) Decode() (*Request, error) { return Decode(b.Bytes()) }

// Free returns the buffer memory to the pool. Freeing the buffer twice
// is a caller error that is reported rather than tolerated.
func (b *Buffer) Free() error {
	if b == nil || b.bb == nil {
		return kerrors.ErrAlreadyReleased
	}
	pool.Put(b.bb)
	b.bb = nil
	return nil
}

// Copy duplicates the record. The copy is sized to the total size
// declared in the record header. If the header can't be parsed, the
// whole buffer is copied.
func Copy(b *Buffer) *Buffer {
	raw := b.Bytes()
	if raw == nil {
		return nil
	}
	n := len(raw)
	if h, err := ReadHeader(raw); err == nil && int(h.Size) <= len(raw) && h.Size > 0 {
		n = int(h.Size)
	}
	return FromBytes(raw[:n])
}
