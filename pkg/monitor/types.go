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

package monitor

import (
	"fmt"
	"strings"

	"github.com/rabbitstack/irpmon/pkg/request"
)

// ObjectID is the stable identifier the monitor assigns to a hooked
// driver or device. It stays valid for as long as the monitor keeps the
// hook record, regardless of the client process lifetime.
type ObjectID uint64

func (id ObjectID) String() string { return fmt.Sprintf("0x%x", uint64(id)) }

// IRPMask is the bit vector of IRP major functions to capture. Bit i
// corresponds to the major function code i.
type IRPMask uint32

// AllIRP has all major functions enabled.
const AllIRP IRPMask = 1<<(request.MajorMaximum+1) - 1

// Has determines if the major function is enabled.
func (m IRPMask) Has(major uint8) bool { return major <= request.MajorMaximum && m&(1<<major) != 0 }

// With returns the mask with the major function enabled.
func (m IRPMask) With(major uint8) IRPMask { return m | 1<<major }

// Without returns the mask with the major function disabled.
func (m IRPMask) Without(major uint8) IRPMask { return m &^ (1 << major) }

// FastIOMask is the bit vector of fast I/O routines to capture.
type FastIOMask uint32

// AllFastIO has all fast I/O routines enabled.
const AllFastIO FastIOMask = 1<<request.FastIoMax - 1

// Has determines if the fast I/O routine is enabled.
func (m FastIOMask) Has(t request.FastIoType) bool {
	return t < request.FastIoMax && m&(1<<t) != 0
}

// With returns the mask with the fast I/O routine enabled.
func (m FastIOMask) With(t request.FastIoType) FastIOMask { return m | 1<<t }

// DriverSettings controls what is captured for the hooked driver.
type DriverSettings struct {
	IRPSettings    IRPMask    `json:"irp" yaml:"irp" cbor:"1,keyasint"`
	FastIOSettings FastIOMask `json:"fastio" yaml:"fastio" cbor:"2,keyasint"`
	// MonitorNewDevices instructs the monitor to hook devices created by the driver after it was hooked.
	MonitorNewDevices bool `json:"monitor-new-devices" yaml:"monitor-new-devices" cbor:"3,keyasint"`
	// MonitorData determines if the data buffers are attached to the records.
	MonitorData bool `json:"monitor-data" yaml:"monitor-data" cbor:"4,keyasint"`
}

// DefaultDriverSettings captures everything, including the data buffers.
func DefaultDriverSettings() DriverSettings {
	return DriverSettings{
		IRPSettings:       AllIRP,
		FastIOSettings:    AllFastIO,
		MonitorNewDevices: false,
		MonitorData:       true,
	}
}

// HookedDevice is the hook record of the device object.
type HookedDevice struct {
	ObjectID ObjectID `cbor:"1,keyasint"`
	// DriverID is the object identifier of the owning driver hook.
	DriverID         ObjectID   `cbor:"2,keyasint"`
	DeviceAddress    uint64     `cbor:"3,keyasint"`
	DeviceName       string     `cbor:"4,keyasint"`
	IRPSettings      IRPMask    `cbor:"5,keyasint"`
	FastIOSettings   FastIOMask `cbor:"6,keyasint"`
	MonitoringActive bool       `cbor:"7,keyasint"`
}

// HookedDriver is the hook record of the driver object with all the hooked devices it owns.
type HookedDriver struct {
	ObjectID            ObjectID       `cbor:"1,keyasint"`
	DriverName          string         `cbor:"2,keyasint"`
	DriverObject        uint64         `cbor:"3,keyasint"`
	Settings            DriverSettings `cbor:"4,keyasint"`
	DeviceExtensionHook bool           `cbor:"5,keyasint"`
	MonitoringActive    bool           `cbor:"6,keyasint"`
	Devices             []HookedDevice `cbor:"7,keyasint"`
}

// DeviceInfo describes the device object present in the system.
type DeviceInfo struct {
	Address        uint64 `json:"address" yaml:"address" cbor:"1,keyasint"`
	Name           string `json:"name" yaml:"name" cbor:"2,keyasint"`
	ClassGUID      string `json:"class-guid" yaml:"class-guid" cbor:"3,keyasint"`
	AttachedDevice uint64 `json:"attached-device" yaml:"attached-device" cbor:"4,keyasint"`
	LowerDevice    uint64 `json:"lower-device" yaml:"lower-device" cbor:"5,keyasint"`
}

// DriverInfo describes the driver object and its devices.
type DriverInfo struct {
	Address uint64       `json:"address" yaml:"address" cbor:"1,keyasint"`
	Name    string       `json:"name" yaml:"name" cbor:"2,keyasint"`
	Devices []DeviceInfo `json:"devices" yaml:"devices" cbor:"3,keyasint"`
}

// ClassWatch subscribes to devices of the setup class. UpperFilter and
// Beginning determine the position in the filter chain.
type ClassWatch struct {
	ClassGUID   string `cbor:"1,keyasint"`
	UpperFilter bool   `cbor:"2,keyasint"`
	Beginning   bool   `cbor:"3,keyasint"`
}

func (w ClassWatch) String() string {
	pos := "lower"
	if w.UpperFilter {
		pos = "upper"
	}
	at := "end"
	if w.Beginning {
		at = "beginning"
	}
	return fmt.Sprintf("%s (%s filter, %s)", w.ClassGUID, pos, at)
}

// DriverNameWatch subscribes to the load of the driver with the given name.
type DriverNameWatch struct {
	DriverName string         `cbor:"1,keyasint"`
	Settings   DriverSettings `cbor:"2,keyasint"`
}

// NormalizeDriverName canonicalizes the driver name for comparisons.
// Driver object names are case-insensitive.
func NormalizeDriverName(name string) string { return strings.ToLower(name) }

// Settings are the global monitor settings.
type Settings struct {
	// ReqQueueClearOnDisconnect clears the queue when the consumer disconnects.
	ReqQueueClearOnDisconnect bool `json:"queue-clear-on-disconnect" yaml:"queue-clear-on-disconnect" cbor:"1,keyasint"`
	// ReqQueueCollectWhenDisconnected keeps collecting records while no consumer is connected.
	ReqQueueCollectWhenDisconnected bool `json:"queue-collect-when-disconnected" yaml:"queue-collect-when-disconnected" cbor:"2,keyasint"`
	// ReqQueueMaxSize is the maximum number of queued records. Oldest records are dropped beyond it.
	ReqQueueMaxSize uint32 `json:"queue-max-size" yaml:"queue-max-size" cbor:"3,keyasint"`
	// DataStripThreshold is the data buffer size beyond which data is stripped.
	DataStripThreshold uint32 `json:"data-strip-threshold" yaml:"data-strip-threshold" cbor:"4,keyasint"`
	// StripData enables data stripping.
	StripData bool `json:"strip-data" yaml:"strip-data" cbor:"5,keyasint"`
	// ProcessEventsCollect enables process creation/exit records.
	ProcessEventsCollect bool `json:"process-events" yaml:"process-events" cbor:"6,keyasint"`
	// FileObjectEventsCollect enables file object name records.
	FileObjectEventsCollect bool `json:"file-object-events" yaml:"file-object-events" cbor:"7,keyasint"`
	// DriverSnapshotEventsCollect enables driver/device detected records.
	DriverSnapshotEventsCollect bool `json:"driver-snapshot-events" yaml:"driver-snapshot-events" cbor:"8,keyasint"`
	// ProcessEmulateOnConnect enqueues emulated process records when the consumer connects.
	ProcessEmulateOnConnect bool `json:"process-emulate-on-connect" yaml:"process-emulate-on-connect" cbor:"9,keyasint"`
	// DriverSnapshotEmulateOnConnect enqueues emulated driver/device records when the consumer connects.
	DriverSnapshotEmulateOnConnect bool `json:"driver-snapshot-emulate-on-connect" yaml:"driver-snapshot-emulate-on-connect" cbor:"10,keyasint"`
}

// DefaultSettings returns the settings the monitor starts with.
func DefaultSettings() Settings {
	return Settings{
		ReqQueueClearOnDisconnect:       false,
		ReqQueueCollectWhenDisconnected: true,
		ReqQueueMaxSize:                 500000,
		DataStripThreshold:              4096,
		StripData:                       false,
		ProcessEventsCollect:            true,
		FileObjectEventsCollect:         true,
		DriverSnapshotEventsCollect:     true,
	}
}
