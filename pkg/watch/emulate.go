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

package watch

import (
	"github.com/rabbitstack/irpmon/pkg/request"
)

func emulated(p request.Payload, init func(*request.Request)) *request.Buffer {
	req := request.New(p)
	req.Flags |= request.Emulated
	if init != nil {
		init(req)
	}
	return req.Encode()
}

// EmulateDriverDetected builds the record announcing the driver that was
// loaded before the monitoring started. The caller owns the returned buffer.
func EmulateDriverDetected(driverObject uint64, name string) *request.Buffer {
	return emulated(&request.DriverDetected{DriverName: name}, func(r *request.Request) {
		r.DriverObject = driverObject
	})
}

// EmulateDeviceDetected builds the record announcing the existing device.
func EmulateDeviceDetected(driverObject, deviceObject uint64, name string) *request.Buffer {
	return emulated(&request.DeviceDetected{DeviceName: name}, func(r *request.Request) {
		r.DriverObject = driverObject
		r.DeviceObject = deviceObject
	})
}

// EmulateFileNameAssigned builds the record carrying the name of the open file object.
func EmulateFileNameAssigned(fileObject uint64, name string) *request.Buffer {
	return emulated(&request.FileNameAssigned{FileObject: fileObject, FileName: name}, nil)
}

// EmulateFileNameDeleted builds the record of the destroyed file object.
func EmulateFileNameDeleted(fileObject uint64) *request.Buffer {
	return emulated(&request.FileNameDeleted{FileObject: fileObject}, nil)
}

// EmulateProcessCreated builds the record of the process that was
// started before the monitoring.
func EmulateProcessCreated(pid, ppid uint32, image, cmdline string) *request.Buffer {
	return emulated(&request.ProcessCreated{ProcessID: pid, ParentID: ppid, ImageName: image, CommandLine: cmdline}, func(r *request.Request) {
		r.ProcessID = ppid
	})
}

// EmulateProcessExitted builds the process termination record.
func EmulateProcessExitted(pid uint32) *request.Buffer {
	return emulated(&request.ProcessExitted{ProcessID: pid}, func(r *request.Request) {
		r.ProcessID = pid
	})
}
