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

import "fmt"

// Type identifies the kind of the request record. The type determines
// the layout of the payload that follows the header.
type Type uint16

const (
	// TypeNone is never produced by the monitor.
	TypeNone Type = iota
	// TypeIRP is an I/O request packet arriving at the hooked driver.
	TypeIRP
	// TypeIRPCompletion describes the completion of a previously captured IRP.
	TypeIRPCompletion
	// TypeAddDevice is the AddDevice routine invocation of the hooked driver.
	TypeAddDevice
	// TypeDriverUnload is the DriverUnload routine invocation.
	TypeDriverUnload
	// TypeFastIo represents the fast I/O call.
	TypeFastIo
	// TypeStartIo is the StartIo routine invocation.
	TypeStartIo
	// TypeDriverDetected signals a new driver object has appeared.
	TypeDriverDetected
	// TypeDeviceDetected signals a new device object has appeared.
	TypeDeviceDetected
	// TypeFileNameAssigned associates the name with a file object.
	TypeFileNameAssigned
	// TypeFileNameDeleted drops the name association of a file object.
	TypeFileNameDeleted
	// TypeProcessCreated signals process creation.
	TypeProcessCreated
	// TypeProcessExitted signals process termination.
	TypeProcessExitted
	// TypeImageLoad is emitted when an image is mapped into the address space.
	TypeImageLoad
	typeMax
)

var typeNames = map[Type]string{
	TypeNone:             "None",
	TypeIRP:              "IRP",
	TypeIRPCompletion:    "IRPCompletion",
	TypeAddDevice:        "AddDevice",
	TypeDriverUnload:     "DriverUnload",
	TypeFastIo:           "FastIo",
	TypeStartIo:          "StartIo",
	TypeDriverDetected:   "DriverDetected",
	TypeDeviceDetected:   "DeviceDetected",
	TypeFileNameAssigned: "FileObjectNameAssigned",
	TypeFileNameDeleted:  "FileObjectNameDeleted",
	TypeProcessCreated:   "ProcessCreated",
	TypeProcessExitted:   "ProcessExitted",
	TypeImageLoad:        "ImageLoad",
}

// String returns the request type name.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// IsValid determines if the type is recognized by the codec.
func (t Type) IsValid() bool { return t > TypeNone && t < typeMax }

// Flags is the bit vector of request attributes.
type Flags uint16

const (
	// Compressed indicates the payload was compressed and must be expanded before decoding.
	Compressed Flags = 1 << iota
	// DataStripped indicates the data buffer was truncated by the monitor.
	DataStripped
	// Emulated marks records synthesized for objects that existed before monitoring started.
	Emulated
	// Admin marks requests issued by a process running with administrative rights.
	Admin
)

// IsCompressed returns true if the compressed flag is set.
func (f Flags) IsCompressed() bool { return f&Compressed != 0 }

// IsEmulated returns true if the record was synthesized.
func (f Flags) IsEmulated() bool { return f&Emulated != 0 }

// IRP major function codes.
const (
	MajorCreate uint8 = iota
	MajorCreateNamedPipe
	MajorClose
	MajorRead
	MajorWrite
	MajorQueryInformation
	MajorSetInformation
	MajorQueryEA
	MajorSetEA
	MajorFlushBuffers
	MajorQueryVolumeInformation
	MajorSetVolumeInformation
	MajorDirectoryControl
	MajorFileSystemControl
	MajorDeviceControl
	MajorInternalDeviceControl
	MajorShutdown
	MajorLockControl
	MajorCleanup
	MajorCreateMailslot
	MajorQuerySecurity
	MajorSetSecurity
	MajorPower
	MajorSystemControl
	MajorDeviceChange
	MajorQueryQuota
	MajorSetQuota
	MajorPnp
	// MajorMaximum is the highest IRP major function code.
	MajorMaximum = MajorPnp
)

var majorNames = [...]string{
	"IRP_MJ_CREATE",
	"IRP_MJ_CREATE_NAMED_PIPE",
	"IRP_MJ_CLOSE",
	"IRP_MJ_READ",
	"IRP_MJ_WRITE",
	"IRP_MJ_QUERY_INFORMATION",
	"IRP_MJ_SET_INFORMATION",
	"IRP_MJ_QUERY_EA",
	"IRP_MJ_SET_EA",
	"IRP_MJ_FLUSH_BUFFERS",
	"IRP_MJ_QUERY_VOLUME_INFORMATION",
	"IRP_MJ_SET_VOLUME_INFORMATION",
	"IRP_MJ_DIRECTORY_CONTROL",
	"IRP_MJ_FILE_SYSTEM_CONTROL",
	"IRP_MJ_DEVICE_CONTROL",
	"IRP_MJ_INTERNAL_DEVICE_CONTROL",
	"IRP_MJ_SHUTDOWN",
	"IRP_MJ_LOCK_CONTROL",
	"IRP_MJ_CLEANUP",
	"IRP_MJ_CREATE_MAILSLOT",
	"IRP_MJ_QUERY_SECURITY",
	"IRP_MJ_SET_SECURITY",
	"IRP_MJ_POWER",
	"IRP_MJ_SYSTEM_CONTROL",
	"IRP_MJ_DEVICE_CHANGE",
	"IRP_MJ_QUERY_QUOTA",
	"IRP_MJ_SET_QUOTA",
	"IRP_MJ_PNP",
}

// MajorName returns the symbolic name of the IRP major function.
func MajorName(major uint8) string {
	if int(major) < len(majorNames) {
		return majorNames[major]
	}
	return fmt.Sprintf("IRP_MJ_0x%x", major)
}

// FastIoType enumerates the fast I/O routines.
type FastIoType uint32

const (
	FastIoCheckIfPossible FastIoType = iota
	FastIoRead
	FastIoWrite
	FastIoQueryBasicInfo
	FastIoQueryStandardInfo
	FastIoLock
	FastIoUnlockSingle
	FastIoUnlockAll
	FastIoUnlockAllByKey
	FastIoDeviceControl
	AcquireFileForNtCreateSection
	ReleaseFileForNtCreateSection
	FastIoDetachDevice
	FastIoQueryNetworkOpenInfo
	AcquireForModWrite
	MdlRead
	MdlReadComplete
	PrepareMdlWrite
	MdlWriteComplete
	FastIoReadCompressed
	FastIoWriteCompressed
	MdlReadCompleteCompressed
	MdlWriteCompleteCompressed
	FastIoQueryOpen
	ReleaseForModWrite
	AcquireForCcFlush
	ReleaseForCcFlush
	// FastIoMax is the number of fast I/O routines.
	FastIoMax
)

var fastIoNames = [...]string{
	"FastIoCheckIfPossible",
	"FastIoRead",
	"FastIoWrite",
	"FastIoQueryBasicInfo",
	"FastIoQueryStandardInfo",
	"FastIoLock",
	"FastIoUnlockSingle",
	"FastIoUnlockAll",
	"FastIoUnlockAllByKey",
	"FastIoDeviceControl",
	"AcquireFileForNtCreateSection",
	"ReleaseFileForNtCreateSection",
	"FastIoDetachDevice",
	"FastIoQueryNetworkOpenInfo",
	"AcquireForModWrite",
	"MdlRead",
	"MdlReadComplete",
	"PrepareMdlWrite",
	"MdlWriteComplete",
	"FastIoReadCompressed",
	"FastIoWriteCompressed",
	"MdlReadCompleteCompressed",
	"MdlWriteCompleteCompressed",
	"FastIoQueryOpen",
	"ReleaseForModWrite",
	"AcquireForCcFlush",
	"ReleaseForCcFlush",
}

func (t FastIoType) String() string {
	if t < FastIoMax {
		return fastIoNames[t]
	}
	return fmt.Sprintf("FastIo(%d)", uint32(t))
}
