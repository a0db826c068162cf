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
	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/util/bytes"
)

// layout describes the payload of the request type: the size of the
// fixed part and the payload offsets of the 32-bit length fields that
// account for the variable part.
type layout struct {
	fixed   int
	lengths []int
}

var layouts = map[Type]layout{
	TypeIRP:              {fixed: 60, lengths: []int{56}},
	TypeIRPCompletion:    {fixed: 24, lengths: []int{20}},
	TypeAddDevice:        {fixed: 0},
	TypeDriverUnload:     {fixed: 0},
	TypeFastIo:           {fixed: 64},
	TypeStartIo:          {fixed: 32, lengths: []int{24}},
	TypeDriverDetected:   {fixed: 4, lengths: []int{0}},
	TypeDeviceDetected:   {fixed: 4, lengths: []int{0}},
	TypeFileNameAssigned: {fixed: 16, lengths: []int{8}},
	TypeFileNameDeleted:  {fixed: 8},
	TypeProcessCreated:   {fixed: 16, lengths: []int{8, 12}},
	TypeProcessExitted:   {fixed: 4},
	TypeImageLoad:        {fixed: 24, lengths: []int{20}},
}

// compressedPreambleSize is the size of the block that replaces the
// payload of compressed records: algorithm, uncompressed and compressed
// payload sizes.
const compressedPreambleSize = 12

// SizeOf returns the total size of the raw record in bytes. The size is
// computed from the request type and the length fields embedded in the
// payload, and must agree with the size declared in the header. Zero is
// returned for unrecognized types, truncated records or size mismatches.
func SizeOf(b []byte) int {
	if len(b) < HeaderSize {
		return 0
	}
	typ := Type(bytes.ReadUint16(b[0:2]))
	flags := Flags(bytes.ReadUint16(b[2:4]))
	declared := int(bytes.ReadUint32(b[4:8]))

	l, ok := layouts[typ]
	if !ok {
		return 0
	}

	var size int
	if flags.IsCompressed() {
		if len(b) < HeaderSize+compressedPreambleSize {
			return 0
		}
		preamble := b[HeaderSize:]
		if !Algorithm(preamble[0]).IsValid() {
			return 0
		}
		size = HeaderSize + compressedPreambleSize + int(bytes.ReadUint32(preamble[8:12]))
	} else {
		if len(b) < HeaderSize+l.fixed {
			return 0
		}
		payload := b[HeaderSize:]
		size = HeaderSize + l.fixed
		for _, off := range l.lengths {
			size += int(bytes.ReadUint32(payload[off : off+4]))
		}
	}

	if size != declared {
		return 0
	}
	return size
}

// Validate checks the raw record is complete and well-formed.
func Validate(b []byte) error {
	size := SizeOf(b)
	if size == 0 {
		return errMalformed("size or type mismatch")
	}
	if len(b) < size {
		return errMalformed("truncated record")
	}
	return nil
}

func errMalformed(reason string) error {
	return errors.Wrap(kerrors.ErrMalformed, reason)
}
