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
	"strings"
	"testing"

	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayloads() []Payload {
	return []Payload{
		&IRP{Major: MajorRead, Minor: 2, RequestorMode: 1, IrpAddress: 0xffffa0011, FileObject: 0xffffb0022, Args: [4]uint64{1, 2, 3, 4}, IrpFlags: 0x43, Data: []byte("sector data")},
		&IRP{Major: MajorCreate},
		&IRPCompletion{IrpAddress: 0xffffa0011, Information: 512, Status: 0xc0000001, Data: []byte{1, 2, 3}},
		&AddDevice{},
		&DriverUnload{},
		&FastIo{FastIoType: FastIoQueryBasicInfo, PreviousMode: 1, FileObject: 0xffffc, Args: [4]uint64{9, 8, 7, 6}, Status: 1, Information: 40},
		&StartIo{IrpAddress: 0xaa, Information: 4, Major: MajorWrite, Minor: 1, Status: 0x103, Data: []byte("abcd")},
		&DriverDetected{DriverName: `\Driver\DiskDriver1`},
		&DeviceDetected{DeviceName: `\Device\Harddisk0\DR0`},
		&FileNameAssigned{FileObject: 0xffff1234, FileName: `\Device\HarddiskVolume3\Windows\notepad.exe`},
		&FileNameDeleted{FileObject: 0xffff1234},
		&ProcessCreated{ProcessID: 1024, ParentID: 4, ImageName: `C:\Windows\notepad.exe`, CommandLine: `notepad.exe C:\temp\a.txt`},
		&ProcessCreated{ProcessID: 8},
		&ProcessExitted{ProcessID: 1024},
		&ImageLoad{ImageBase: 0x7ff000000, ImageSize: 0x1000, KernelDriver: true, ImageName: `\SystemRoot\System32\drivers\disk.sys`},
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, p := range samplePayloads() {
		t.Run(p.Type().String(), func(t *testing.T) {
			req := New(p)
			req.ID = 7
			req.DriverObject = 0xffff8000
			req.DeviceObject = 0xffff9000
			req.ProcessID = 1234
			req.ThreadID = 5678
			req.Irql = 2
			req.Result = 0x103

			buf := req.Encode()
			defer buf.Free()

			assert.Equal(t, req.Len(), buf.Len())
			assert.Equal(t, buf.Len(), SizeOf(buf.Bytes()))
			assert.Equal(t, p.Type(), req.Type)

			decoded, err := buf.Decode()
			require.NoError(t, err)
			assert.Equal(t, req.Header, decoded.Header)
			assert.Equal(t, p, decoded.Payload)
		})
	}
}

func TestSizeOfDeterministic(t *testing.T) {
	for _, p := range samplePayloads() {
		buf := New(p).Encode()
		first := SizeOf(buf.Bytes())
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, SizeOf(buf.Bytes()))
		}
		// size can be computed from the header and the fixed part only
		l := layouts[p.Type()]
		assert.Equal(t, first, SizeOf(buf.Bytes()[:HeaderSize+l.fixed]))
		require.NoError(t, buf.Free())
	}
}

func TestSizeOfMalformed(t *testing.T) {
	assert.Equal(t, 0, SizeOf(nil))
	assert.Equal(t, 0, SizeOf(make([]byte, HeaderSize-1)))

	// unknown type
	buf := New(&ProcessExitted{ProcessID: 1}).Encode()
	raw := buf.Bytes()
	raw[0] = 0xff
	assert.Equal(t, 0, SizeOf(raw))

	// declared size disagrees with the layout
	buf = New(&ProcessExitted{ProcessID: 1}).Encode()
	raw = buf.Bytes()
	raw[4]++
	assert.Equal(t, 0, SizeOf(raw))

	_, err := Decode(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrMalformed)

	// the type without payload and zero size
	_, err = Decode(make([]byte, HeaderSize))
	assert.ErrorIs(t, err, kerrors.ErrMalformed)
}

func TestDecodeTruncated(t *testing.T) {
	buf := New(&IRP{Major: MajorWrite, Data: []byte("0123456789")}).Encode()
	defer buf.Free()
	_, err := Decode(buf.Bytes()[:buf.Len()-2])
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrMalformed)
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("IRP_MJ_READ sector payload ", 200))
	for _, alg := range []Algorithm{ZSTD, LZ4} {
		t.Run(alg.String(), func(t *testing.T) {
			req := New(&IRP{Major: MajorRead, IrpAddress: 0x1000, Data: data})
			req.ProcessID = 4
			buf := req.Encode()
			defer buf.Free()
			plainSize := buf.Len()

			require.True(t, CompressWith(buf, alg))
			h, err := buf.Header()
			require.NoError(t, err)
			assert.True(t, h.Flags.IsCompressed())
			assert.Less(t, buf.Len(), plainSize)
			assert.Equal(t, buf.Len(), SizeOf(buf.Bytes()))
			assert.Equal(t, int(h.Size), buf.Len())

			// compressing twice is refused
			assert.False(t, CompressWith(buf, alg))

			out, err := Decompress(buf)
			require.NoError(t, err)
			defer out.Free()
			assert.Equal(t, plainSize, out.Len())

			decoded, err := out.Decode()
			require.NoError(t, err)
			assert.False(t, decoded.Flags.IsCompressed())
			assert.Equal(t, TypeIRP, decoded.Type)
			assert.Equal(t, req.Payload, decoded.Payload)
			assert.Equal(t, uint32(4), decoded.ProcessID)

			// compressed records decode transparently
			direct, err := buf.Decode()
			require.NoError(t, err)
			assert.Equal(t, req.Payload, direct.Payload)
		})
	}
}

func TestCompressSmallRecord(t *testing.T) {
	buf := New(&ProcessExitted{ProcessID: 42}).Encode()
	defer buf.Free()
	before := append([]byte(nil), buf.Bytes()...)
	assert.False(t, Compress(buf))
	assert.Equal(t, before, buf.Bytes())

	empty := New(&DriverUnload{}).Encode()
	defer empty.Free()
	assert.False(t, Compress(empty))
}

func TestDecompressUncompressed(t *testing.T) {
	buf := New(&DriverDetected{DriverName: `\Driver\Null`}).Encode()
	defer buf.Free()
	out, err := Decompress(buf)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out.Bytes())
	require.NoError(t, out.Free())
}

func TestDecompressCorrupted(t *testing.T) {
	buf := New(&IRP{Data: []byte(strings.Repeat("a", 4096))}).Encode()
	defer buf.Free()
	require.True(t, Compress(buf))
	raw := buf.Bytes()
	// clobber the compressed stream
	for i := HeaderSize + compressedPreambleSize; i < len(raw); i++ {
		raw[i] = 0xff
	}
	_, err := Decompress(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrMalformed)
}

func TestCopy(t *testing.T) {
	buf := New(&FileNameDeleted{FileObject: 0xabc}).Encode()
	size := buf.Len()
	// trailing bytes beyond the declared size are not copied
	padded := Allocate(size + 100)
	copy(padded.Bytes(), buf.Bytes())

	cp := Copy(padded)
	assert.Equal(t, size, cp.Len())
	assert.Equal(t, buf.Bytes(), cp.Bytes())

	// the copy is independent of the source
	cp.Bytes()[HeaderSize] = 0x11
	assert.NotEqual(t, buf.Bytes()[HeaderSize], cp.Bytes()[HeaderSize])

	require.NoError(t, buf.Free())
	require.NoError(t, padded.Free())
	require.NoError(t, cp.Free())
}

func TestAllocateFree(t *testing.T) {
	buf := Allocate(128)
	assert.Equal(t, 128, buf.Len())
	for _, b := range buf.Bytes() {
		require.Zero(t, b)
	}
	require.NoError(t, buf.Free())
	assert.Nil(t, buf.Bytes())
	assert.ErrorIs(t, buf.Free(), kerrors.ErrAlreadyReleased)
	assert.Nil(t, Copy(buf))
}

func TestTypeStrings(t *testing.T) {
	assert.Equal(t, "IRP", TypeIRP.String())
	assert.Equal(t, "Unknown(99)", Type(99).String())
	assert.False(t, TypeNone.IsValid())
	assert.True(t, TypeImageLoad.IsValid())
	assert.Equal(t, "IRP_MJ_PNP", MajorName(MajorPnp))
	assert.Equal(t, "FastIoQueryOpen", FastIoQueryOpen.String())
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("lz4")
	require.NoError(t, err)
	assert.Equal(t, LZ4, alg)
	_, err = ParseAlgorithm("brotli")
	require.Error(t, err)
}
