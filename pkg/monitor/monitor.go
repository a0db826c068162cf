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

// Counter is the notification counter the monitor advances each time
// a record is added to the event queue. When the consumer connects, the
// counter is immediately advanced by the number of records already
// waiting in the queue, so the waiting consumer is woken up for the
// backlog as well.
//
// The monitor calls Add while holding its own locks, so implementations
// must not block. Increments are never taken back: the counter still
// includes the records dropped from a full queue or removed by ClearQueue.
// A consumer woken up for such a record blocks in GetRequest until the
// next record arrives.
type Counter interface {
	Add(n int)
}

// Monitor is the request/response channel to the kernel-mode monitor.
// The monitor owns the hook table, the watch registrations and the event
// queue. It serializes mutations of its state, so all methods except
// GetRequest are non-blocking and safe to call from multiple goroutines.
type Monitor interface {
	// HookDriver starts tracking the driver. The capture is not started.
	HookDriver(name string, settings DriverSettings, deviceExtension bool) (ObjectID, error)
	// UnhookDriver releases the driver hook and all the device hooks it owns.
	UnhookDriver(id ObjectID) error
	// StartDriverMonitoring starts capturing requests of the hooked driver.
	StartDriverMonitoring(id ObjectID) error
	// StopDriverMonitoring stops capturing requests of the hooked driver.
	StopDriverMonitoring(id ObjectID) error
	// SetDriverInfo updates the driver settings. While the capture is active
	// only the MonitorNewDevices setting is applied.
	SetDriverInfo(id ObjectID, settings DriverSettings) error
	// DriverInfo returns the hook record of the driver.
	DriverInfo(id ObjectID) (HookedDriver, error)

	// HookDeviceByName hooks the device object of the hooked driver.
	HookDeviceByName(name string) (HookedDevice, error)
	// HookDeviceByAddress hooks the device object of the hooked driver.
	HookDeviceByAddress(address uint64) (HookedDevice, error)
	// UnhookDevice releases the device hook.
	UnhookDevice(id ObjectID) error
	// DeviceInfo returns the hook record of the device.
	DeviceInfo(id ObjectID) (HookedDevice, error)
	// SetDeviceInfo updates the device settings and the monitoring state.
	SetDeviceInfo(id ObjectID, irp IRPMask, fastIo FastIOMask, active bool) error

	// EnumerateHooks returns the whole hook table.
	EnumerateHooks() ([]HookedDriver, error)
	// Snapshot enumerates the drivers and devices present in the system.
	Snapshot() ([]DriverInfo, error)

	// Connect attaches the calling session to the event queue. Counter is optional.
	Connect(counter Counter) error
	// Disconnect detaches the session from the event queue and wakes up blocked retrievals.
	Disconnect() error
	// ClearQueue drops all the queued records.
	ClearQueue() error
	// GetRequest blocks until a record is available and returns it. The
	// record stays queued if it doesn't fit into size bytes.
	GetRequest(size int) ([]byte, error)

	RegisterClassWatch(w ClassWatch) error
	UnregisterClassWatch(w ClassWatch) error
	ClassWatches() ([]ClassWatch, error)
	RegisterDriverNameWatch(w DriverNameWatch) error
	UnregisterDriverNameWatch(name string) error
	DriverNameWatches() ([]DriverNameWatch, error)

	// EmulateDriverDevices enqueues detected records for all drivers and devices present in the system.
	EmulateDriverDevices() error
	// EmulateProcesses enqueues creation records for all running processes.
	EmulateProcesses() error

	// QuerySettings returns the global monitor settings.
	QuerySettings() (Settings, error)
	// SetSettings applies the global settings. If persist is true, the
	// settings are saved for future sessions as well.
	SetSettings(settings Settings, persist bool) error

	// Close tears down the session. The queue connection and the watches
	// registered through the session are released.
	Close() error
}
