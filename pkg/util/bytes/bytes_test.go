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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	w := NewWriter(nil)
	w.Uint8(7)
	w.Pad(1)
	w.Uint16(0xabcd)
	w.Uint32(0xdeadbeef)
	w.Uint64(0x1122334455667788)
	w.Int64(-5)
	w.Bytes([]byte("irp"))
	assert.Equal(t, 1+1+2+4+8+8+3, w.Len())

	r := NewReader(w.Buffer())
	assert.Equal(t, uint8(7), r.Uint8())
	r.Skip(1)
	assert.Equal(t, uint16(0xabcd), r.Uint16())
	assert.Equal(t, uint32(0xdeadbeef), r.Uint32())
	assert.Equal(t, uint64(0x1122334455667788), r.Uint64())
	assert.Equal(t, int64(-5), r.Int64())
	assert.Equal(t, []byte("irp"), r.Bytes(3))
	require.NoError(t, r.Err())
	assert.Equal(t, w.Len(), r.Offset())

	assert.Equal(t, uint32(0), r.Uint32())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	// the error sticks
	assert.Nil(t, r.Bytes(0))
}

func TestReadHelpers(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	assert.Equal(t, uint16(0x0201), ReadUint16(b))
	assert.Equal(t, uint32(0x04030201), ReadUint32(b))
	assert.Equal(t, uint64(0x0807060504030201), ReadUint64(b))
}
