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
	"fmt"
	"time"

	"github.com/rabbitstack/irpmon/pkg/util/bytes"
	"github.com/rabbitstack/irpmon/pkg/util/utf16"
)

// HeaderSize is the size of the fixed header shared by all request records.
const HeaderSize = 56

const (
	// MaxDataSize is the largest data buffer the monitor attaches to a record.
	MaxDataSize = 0x10000
	// MaxNameSize is the largest encoded name the monitor attaches to a record.
	MaxNameSize = 0x8000
	// MaxSize is the size of the buffer that can hold any record produced
	// by the monitor. Consumers that always retrieve records with buffers of
	// this size never observe the insufficient buffer error.
	MaxSize = HeaderSize + 64 + MaxDataSize + 2*MaxNameSize
)

// Header is the fixed part of every request record.
type Header struct {
	Type  Type
	Flags Flags
	// Size is the total size of the record including the header.
	Size uint32
	// ID is the sequence number assigned by the monitor.
	ID uint64
	// Timestamp is the time the request was captured, in nanoseconds since the Unix epoch.
	Timestamp    int64
	DriverObject uint64
	DeviceObject uint64
	ProcessID    uint32
	ThreadID     uint32
	Irql         uint8
	Result       uint32
}

// Time returns the capture time.
func (h Header) Time() time.Time { return time.Unix(0, h.Timestamp) }

func (h Header) marshal(w *bytes.Writer) {
	w.Uint16(uint16(h.Type))
	w.Uint16(uint16(h.Flags))
	w.Uint32(h.Size)
	w.Uint64(h.ID)
	w.Int64(h.Timestamp)
	w.Uint64(h.DriverObject)
	w.Uint64(h.DeviceObject)
	w.Uint32(h.ProcessID)
	w.Uint32(h.ThreadID)
	w.Uint8(h.Irql)
	w.Pad(3)
	w.Uint32(h.Result)
}

func (h *Header) unmarshal(r *bytes.Reader) {
	h.Type = Type(r.Uint16())
	h.Flags = Flags(r.Uint16())
	h.Size = r.Uint32()
	h.ID = r.Uint64()
	h.Timestamp = r.Int64()
	h.DriverObject = r.Uint64()
	h.DeviceObject = r.Uint64()
	h.ProcessID = r.Uint32()
	h.ThreadID = r.Uint32()
	h.Irql = r.Uint8()
	r.Skip(3)
	h.Result = r.Uint32()
}

// ReadHeader parses the header from the raw record.
func ReadHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%d bytes are not enough to hold the header", len(b))
	}
	r := bytes.NewReader(b[:HeaderSize])
	h.unmarshal(r)
	return h, r.Err()
}

// Payload is the type-specific part of the record. Every request type
// has exactly one payload implementation.
type Payload interface {
	// Type returns the request type the payload belongs to.
	Type() Type
	size() int
	marshal(w *bytes.Writer)
	unmarshal(r *bytes.Reader)
}

// Request is the decoded request record.
type Request struct {
	Header
	Payload Payload
}

// New builds a request around the payload. The timestamp is set to
// the current time.
func New(p Payload) *Request {
	return &Request{
		Header: Header{
			Type:      p.Type(),
			Timestamp: time.Now().UnixNano(),
		},
		Payload: p,
	}
}

// Len returns the encoded size of the request.
func (r *Request) Len() int { return HeaderSize + r.Payload.size() }

// Encode serializes the request into a newly allocated buffer. The
// header's type and size are derived from the payload.
func (r *Request) Encode() *Buffer {
	r.Type = r.Payload.Type()
	r.Size = uint32(r.Len())
	buf := Allocate(0)
	w := bytes.NewWriter(buf.bb.B[:0])
	r.Header.marshal(w)
	r.Payload.marshal(w)
	buf.bb.B = w.Buffer()
	return buf
}

func (r *Request) String() string {
	return fmt.Sprintf("%s id=%d pid=%d tid=%d driver=0x%x device=0x%x size=%d",
		r.Type, r.ID, r.ProcessID, r.ThreadID, r.DriverObject, r.DeviceObject, r.Size)
}

// Decode parses the raw record. Compressed records are expanded first.
// The number of consumed bytes always equals the size reported by SizeOf.
func Decode(b []byte) (*Request, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}
	size := SizeOf(b)
	b = b[:size]
	if Flags(bytes.ReadUint16(b[2:4])).IsCompressed() {
		var err error
		b, err = expand(b)
		if err != nil {
			return nil, err
		}
		size = len(b)
	}
	r := bytes.NewReader(b)
	req := &Request{}
	req.Header.unmarshal(r)
	req.Payload = newPayload(req.Type)
	req.Payload.unmarshal(r)
	if err := r.Err(); err != nil {
		return nil, errMalformed(err.Error())
	}
	if r.Offset() != size {
		return nil, errMalformed(fmt.Sprintf("decoded %d bytes out of %d", r.Offset(), size))
	}
	return req, nil
}

func newPayload(t Type) Payload {
	switch t {
	case TypeIRP:
		return &IRP{}
	case TypeIRPCompletion:
		return &IRPCompletion{}
	case TypeAddDevice:
		return &AddDevice{}
	case TypeDriverUnload:
		return &DriverUnload{}
	case TypeFastIo:
		return &FastIo{}
	case TypeStartIo:
		return &StartIo{}
	case TypeDriverDetected:
		return &DriverDetected{}
	case TypeDeviceDetected:
		return &DeviceDetected{}
	case TypeFileNameAssigned:
		return &FileNameAssigned{}
	case TypeFileNameDeleted:
		return &FileNameDeleted{}
	case TypeProcessCreated:
		return &ProcessCreated{}
	case TypeProcessExitted:
		return &ProcessExitted{}
	case TypeImageLoad:
		return &ImageLoad{}
	default:
		return nil
	}
}

// IRP describes the I/O request packet sent to the hooked device.
type IRP struct {
	Major         uint8
	Minor         uint8
	RequestorMode uint8
	IrpAddress    uint64
	FileObject    uint64
	Args          [4]uint64
	IrpFlags      uint32
	Data          []byte
}

func (*IRP) Type() Type  { return TypeIRP }
func (p *IRP) size() int { return 60 + len(p.Data) }
func (p *IRP) marshal(w *bytes.Writer) {
	w.Uint8(p.Major)
	w.Uint8(p.Minor)
	w.Uint8(p.RequestorMode)
	w.Pad(1)
	w.Uint64(p.IrpAddress)
	w.Uint64(p.FileObject)
	for _, arg := range p.Args {
		w.Uint64(arg)
	}
	w.Uint32(p.IrpFlags)
	w.Uint32(uint32(len(p.Data)))
	w.Bytes(p.Data)
}
func (p *IRP) unmarshal(r *bytes.Reader) {
	p.Major = r.Uint8()
	p.Minor = r.Uint8()
	p.RequestorMode = r.Uint8()
	r.Skip(1)
	p.IrpAddress = r.Uint64()
	p.FileObject = r.Uint64()
	for i := range p.Args {
		p.Args[i] = r.Uint64()
	}
	p.IrpFlags = r.Uint32()
	p.Data = readData(r, int(r.Uint32()))
}

// IRPCompletion describes the completion of the IRP.
type IRPCompletion struct {
	IrpAddress  uint64
	Information uint64
	Status      uint32
	Data        []byte
}

func (*IRPCompletion) Type() Type  { return TypeIRPCompletion }
func (p *IRPCompletion) size() int { return 24 + len(p.Data) }
func (p *IRPCompletion) marshal(w *bytes.Writer) {
	w.Uint64(p.IrpAddress)
	w.Uint64(p.Information)
	w.Uint32(p.Status)
	w.Uint32(uint32(len(p.Data)))
	w.Bytes(p.Data)
}
func (p *IRPCompletion) unmarshal(r *bytes.Reader) {
	p.IrpAddress = r.Uint64()
	p.Information = r.Uint64()
	p.Status = r.Uint32()
	p.Data = readData(r, int(r.Uint32()))
}

// AddDevice has no payload. The physical device object is carried in the header.
type AddDevice struct{}

func (*AddDevice) Type() Type                { return TypeAddDevice }
func (*AddDevice) size() int                 { return 0 }
func (*AddDevice) marshal(w *bytes.Writer)   {}
func (*AddDevice) unmarshal(r *bytes.Reader) {}

// DriverUnload has no payload.
type DriverUnload struct{}

func (*DriverUnload) Type() Type                { return TypeDriverUnload }
func (*DriverUnload) size() int                 { return 0 }
func (*DriverUnload) marshal(w *bytes.Writer)   {}
func (*DriverUnload) unmarshal(r *bytes.Reader) {}

// FastIo describes the fast I/O call.
type FastIo struct {
	FastIoType   FastIoType
	PreviousMode uint8
	FileObject   uint64
	Args         [4]uint64
	Status       uint32
	Information  uint64
}

func (*FastIo) Type() Type { return TypeFastIo }
func (*FastIo) size() int  { return 64 }
func (p *FastIo) marshal(w *bytes.Writer) {
	w.Uint32(uint32(p.FastIoType))
	w.Uint8(p.PreviousMode)
	w.Pad(3)
	w.Uint64(p.FileObject)
	for _, arg := range p.Args {
		w.Uint64(arg)
	}
	w.Uint32(p.Status)
	w.Pad(4)
	w.Uint64(p.Information)
}
func (p *FastIo) unmarshal(r *bytes.Reader) {
	p.FastIoType = FastIoType(r.Uint32())
	p.PreviousMode = r.Uint8()
	r.Skip(3)
	p.FileObject = r.Uint64()
	for i := range p.Args {
		p.Args[i] = r.Uint64()
	}
	p.Status = r.Uint32()
	r.Skip(4)
	p.Information = r.Uint64()
}

// StartIo describes the StartIo routine invocation.
type StartIo struct {
	IrpAddress  uint64
	Information uint64
	Major       uint8
	Minor       uint8
	Status      uint32
	Data        []byte
}

func (*StartIo) Type() Type  { return TypeStartIo }
func (p *StartIo) size() int { return 32 + len(p.Data) }
func (p *StartIo) marshal(w *bytes.Writer) {
	w.Uint64(p.IrpAddress)
	w.Uint64(p.Information)
	w.Uint8(p.Major)
	w.Uint8(p.Minor)
	w.Pad(2)
	w.Uint32(p.Status)
	w.Uint32(uint32(len(p.Data)))
	w.Pad(4)
	w.Bytes(p.Data)
}
func (p *StartIo) unmarshal(r *bytes.Reader) {
	p.IrpAddress = r.Uint64()
	p.Information = r.Uint64()
	p.Major = r.Uint8()
	p.Minor = r.Uint8()
	r.Skip(2)
	p.Status = r.Uint32()
	n := int(r.Uint32())
	r.Skip(4)
	p.Data = readData(r, n)
}

// DriverDetected announces the driver object. The object address is
// carried in the header.
type DriverDetected struct {
	DriverName string
}

func (*DriverDetected) Type() Type  { return TypeDriverDetected }
func (p *DriverDetected) size() int { return 4 + utf16.Size(p.DriverName) }
func (p *DriverDetected) marshal(w *bytes.Writer) {
	writeName(w, p.DriverName)
}
func (p *DriverDetected) unmarshal(r *bytes.Reader) {
	p.DriverName = readName(r, int(r.Uint32()))
}

// DeviceDetected announces the device object and its owning driver.
type DeviceDetected struct {
	DeviceName string
}

func (*DeviceDetected) Type() Type  { return TypeDeviceDetected }
func (p *DeviceDetected) size() int { return 4 + utf16.Size(p.DeviceName) }
func (p *DeviceDetected) marshal(w *bytes.Writer) {
	writeName(w, p.DeviceName)
}
func (p *DeviceDetected) unmarshal(r *bytes.Reader) {
	p.DeviceName = readName(r, int(r.Uint32()))
}

// FileNameAssigned binds the name to the file object.
type FileNameAssigned struct {
	FileObject uint64
	FileName   string
}

func (*FileNameAssigned) Type() Type  { return TypeFileNameAssigned }
func (p *FileNameAssigned) size() int { return 16 + utf16.Size(p.FileName) }
func (p *FileNameAssigned) marshal(w *bytes.Writer) {
	name := utf16.Encode(p.FileName)
	w.Uint64(p.FileObject)
	w.Uint32(uint32(len(name)))
	w.Pad(4)
	w.Bytes(name)
}
func (p *FileNameAssigned) unmarshal(r *bytes.Reader) {
	p.FileObject = r.Uint64()
	n := int(r.Uint32())
	r.Skip(4)
	p.FileName = readName(r, n)
}

// FileNameDeleted signals the file object name is no longer valid.
type FileNameDeleted struct {
	FileObject uint64
}

func (*FileNameDeleted) Type() Type                  { return TypeFileNameDeleted }
func (*FileNameDeleted) size() int                   { return 8 }
func (p *FileNameDeleted) marshal(w *bytes.Writer)   { w.Uint64(p.FileObject) }
func (p *FileNameDeleted) unmarshal(r *bytes.Reader) { p.FileObject = r.Uint64() }

// ProcessCreated describes the newly spawned process.
type ProcessCreated struct {
	ProcessID   uint32
	ParentID    uint32
	ImageName   string
	CommandLine string
}

func (*ProcessCreated) Type() Type { return TypeProcessCreated }
func (p *ProcessCreated) size() int {
	return 16 + utf16.Size(p.ImageName) + utf16.Size(p.CommandLine)
}
func (p *ProcessCreated) marshal(w *bytes.Writer) {
	image := utf16.Encode(p.ImageName)
	cmdline := utf16.Encode(p.CommandLine)
	w.Uint32(p.ProcessID)
	w.Uint32(p.ParentID)
	w.Uint32(uint32(len(image)))
	w.Uint32(uint32(len(cmdline)))
	w.Bytes(image)
	w.Bytes(cmdline)
}
func (p *ProcessCreated) unmarshal(r *bytes.Reader) {
	p.ProcessID = r.Uint32()
	p.ParentID = r.Uint32()
	imageSize := int(r.Uint32())
	cmdlineSize := int(r.Uint32())
	p.ImageName = readName(r, imageSize)
	p.CommandLine = readName(r, cmdlineSize)
}

// ProcessExitted describes the terminated process.
type ProcessExitted struct {
	ProcessID uint32
}

func (*ProcessExitted) Type() Type                  { return TypeProcessExitted }
func (*ProcessExitted) size() int                   { return 4 }
func (p *ProcessExitted) marshal(w *bytes.Writer)   { w.Uint32(p.ProcessID) }
func (p *ProcessExitted) unmarshal(r *bytes.Reader) { p.ProcessID = r.Uint32() }

// ImageLoad describes the image mapped into the process or kernel address space.
type ImageLoad struct {
	ImageBase    uint64
	ImageSize    uint64
	KernelDriver bool
	ImageName    string
}

func (*ImageLoad) Type() Type  { return TypeImageLoad }
func (p *ImageLoad) size() int { return 24 + utf16.Size(p.ImageName) }
func (p *ImageLoad) marshal(w *bytes.Writer) {
	w.Uint64(p.ImageBase)
	w.Uint64(p.ImageSize)
	if p.KernelDriver {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
	w.Pad(3)
	writeName(w, p.ImageName)
}
func (p *ImageLoad) unmarshal(r *bytes.Reader) {
	p.ImageBase = r.Uint64()
	p.ImageSize = r.Uint64()
	p.KernelDriver = r.Uint8() != 0
	r.Skip(3)
	p.ImageName = readName(r, int(r.Uint32()))
}

func writeName(w *bytes.Writer, s string) {
	name := utf16.Encode(s)
	w.Uint32(uint32(len(name)))
	w.Bytes(name)
}

func readData(r *bytes.Reader, n int) []byte {
	if n == 0 {
		return nil
	}
	return r.Bytes(n)
}

func readName(r *bytes.Reader, n int) string {
	return utf16.Decode(r.Bytes(n))
}
