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

package emulator

import (
	"github.com/rabbitstack/irpmon/pkg/request"
)

// Target identifies the device the request is sent to, either by the
// address or by the name.
type Target struct {
	DeviceName    string
	DeviceAddress uint64
}

// Caller identifies the thread issuing the request.
type Caller struct {
	ProcessID uint32
	ThreadID  uint32
	Irql      uint8
}

// IRPEvent describes the I/O request packet dispatched to the device.
type IRPEvent struct {
	Target
	Caller
	Major         uint8
	Minor         uint8
	RequestorMode uint8
	IrpAddress    uint64
	FileObject    uint64
	Args          [4]uint64
	IrpFlags      uint32
	Data          []byte
}

// CompletionEvent describes the completion of the I/O request packet.
type CompletionEvent struct {
	Target
	Caller
	Major       uint8
	IrpAddress  uint64
	Status      uint32
	Information uint64
	Data        []byte
}

// FastIoEvent describes the fast I/O call served by the device driver.
type FastIoEvent struct {
	Target
	Caller
	FastIoType   request.FastIoType
	PreviousMode uint8
	FileObject   uint64
	Args         [4]uint64
	Status       uint32
	Information  uint64
}

// data applies the data monitoring and stripping settings to the
// request data buffer.
func (e *Emulator) data(b []byte, monitorData bool) ([]byte, request.Flags) {
	if !monitorData || len(b) == 0 {
		return nil, 0
	}
	if e.settings.StripData && uint32(len(b)) > e.settings.DataStripThreshold {
		requestsStripped.Add(1)
		return nil, request.DataStripped
	}
	if len(b) > request.MaxDataSize {
		requestsStripped.Add(1)
		return b[:request.MaxDataSize], request.DataStripped
	}
	return b, 0
}

func header(dev *deviceObject, c Caller) request.Header {
	return request.Header{
		DriverObject: dev.driver.addr,
		DeviceObject: dev.Address,
		ProcessID:    c.ProcessID,
		ThreadID:     c.ThreadID,
		Irql:         c.Irql,
	}
}

// DispatchIRP simulates the IRP sent to the device. It reports whether
// the request was captured.
func (e *Emulator) DispatchIRP(ev IRPEvent) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dev, err := e.findDevice(ev.DeviceName, ev.DeviceAddress)
	if err != nil {
		return false, err
	}
	irp, _, monitorData, ok := e.capture(dev)
	if !ok || !irp.Has(ev.Major) {
		return false, nil
	}
	data, flags := e.data(ev.Data, monitorData)
	req := &request.Request{
		Header: header(dev, ev.Caller),
		Payload: &request.IRP{
			Major:         ev.Major,
			Minor:         ev.Minor,
			RequestorMode: ev.RequestorMode,
			IrpAddress:    ev.IrpAddress,
			FileObject:    ev.FileObject,
			Args:          ev.Args,
			IrpFlags:      ev.IrpFlags,
			Data:          data,
		},
	}
	req.Flags |= flags
	return e.enqueue(req), nil
}

// CompleteIRP simulates the completion of the IRP dispatched to the device.
func (e *Emulator) CompleteIRP(ev CompletionEvent) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dev, err := e.findDevice(ev.DeviceName, ev.DeviceAddress)
	if err != nil {
		return false, err
	}
	irp, _, monitorData, ok := e.capture(dev)
	if !ok || !irp.Has(ev.Major) {
		return false, nil
	}
	data, flags := e.data(ev.Data, monitorData)
	req := &request.Request{
		Header: header(dev, ev.Caller),
		Payload: &request.IRPCompletion{
			IrpAddress:  ev.IrpAddress,
			Information: ev.Information,
			Status:      ev.Status,
			Data:        data,
		},
	}
	req.Flags |= flags
	req.Result = ev.Status
	return e.enqueue(req), nil
}

// DispatchFastIo simulates the fast I/O call served by the device driver.
func (e *Emulator) DispatchFastIo(ev FastIoEvent) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dev, err := e.findDevice(ev.DeviceName, ev.DeviceAddress)
	if err != nil {
		return false, err
	}
	_, fastIo, _, ok := e.capture(dev)
	if !ok || !fastIo.Has(ev.FastIoType) {
		return false, nil
	}
	req := &request.Request{
		Header: header(dev, ev.Caller),
		Payload: &request.FastIo{
			FastIoType:   ev.FastIoType,
			PreviousMode: ev.PreviousMode,
			FileObject:   ev.FileObject,
			Args:         ev.Args,
			Status:       ev.Status,
			Information:  ev.Information,
		},
	}
	req.Result = ev.Status
	return e.enqueue(req), nil
}

// AssignFileName simulates the name assignment to the file object.
func (e *Emulator) AssignFileName(fileObject uint64, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileNames.Add(fileObject, name)
	if !e.settings.FileObjectEventsCollect {
		return false
	}
	return e.enqueue(request.New(&request.FileNameAssigned{FileObject: fileObject, FileName: name}))
}

// DeleteFileName simulates the destruction of the file object. The
// record is only produced for file objects with the assigned name.
func (e *Emulator) DeleteFileName(fileObject uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.fileNames.Get(fileObject); !ok {
		return false
	}
	e.fileNames.Remove(fileObject)
	if !e.settings.FileObjectEventsCollect {
		return false
	}
	return e.enqueue(request.New(&request.FileNameDeleted{FileObject: fileObject}))
}

// CreateProcess simulates the process creation.
func (e *Emulator) CreateProcess(p Process) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.settings.ProcessEventsCollect {
		return false
	}
	return e.enqueue(processCreated(p, 0))
}

// ExitProcess simulates the process termination.
func (e *Emulator) ExitProcess(pid uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.settings.ProcessEventsCollect {
		return false
	}
	req := request.New(&request.ProcessExitted{ProcessID: pid})
	req.ProcessID = pid
	return e.enqueue(req)
}

// LoadImage simulates the image mapped into the process address space or the kernel.
func (e *Emulator) LoadImage(pid uint32, base, size uint64, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.settings.ProcessEventsCollect {
		return false
	}
	req := request.New(&request.ImageLoad{
		ImageBase:    base,
		ImageSize:    size,
		KernelDriver: pid == 0 || pid == 4,
		ImageName:    name,
	})
	req.ProcessID = pid
	return e.enqueue(req)
}

func processCreated(p Process, flags request.Flags) *request.Request {
	req := request.New(&request.ProcessCreated{
		ProcessID:   p.PID,
		ParentID:    p.PPID,
		ImageName:   p.Exe,
		CommandLine: p.Cmdline,
	})
	req.ProcessID = p.PPID
	req.Flags = flags
	return req
}

// enqueueDriverDetected queues the detected record. Live detections
// obey the driver snapshot collection setting, while emulated records
// are requested explicitly and always queued.
func (e *Emulator) enqueueDriverDetected(drv *driverObject, flags request.Flags) {
	if !flags.IsEmulated() && !e.settings.DriverSnapshotEventsCollect {
		return
	}
	req := request.New(&request.DriverDetected{DriverName: drv.name})
	req.DriverObject = drv.addr
	req.Flags = flags
	e.enqueue(req)
}

func (e *Emulator) enqueueDeviceDetected(dev *deviceObject, flags request.Flags) {
	if !flags.IsEmulated() && !e.settings.DriverSnapshotEventsCollect {
		return
	}
	req := request.New(&request.DeviceDetected{DeviceName: dev.Name})
	req.DriverObject = dev.driver.addr
	req.DeviceObject = dev.Address
	req.Flags = flags
	e.enqueue(req)
}
