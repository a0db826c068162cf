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
	"github.com/stretchr/testify/mock"
)

// MonitorMock is the mock monitor used in tests.
type MonitorMock struct {
	mock.Mock
}

var _ Monitor = (*MonitorMock)(nil)

// HookDriver method
func (m *MonitorMock) HookDriver(name string, settings DriverSettings, deviceExtension bool) (ObjectID, error) {
	args := m.Called(name, settings, deviceExtension)
	return args.Get(0).(ObjectID), args.Error(1)
}

// UnhookDriver method
func (m *MonitorMock) UnhookDriver(id ObjectID) error { return m.Called(id).Error(0) }

// StartDriverMonitoring method
func (m *MonitorMock) StartDriverMonitoring(id ObjectID) error { return m.Called(id).Error(0) }

// StopDriverMonitoring method
func (m *MonitorMock) StopDriverMonitoring(id ObjectID) error { return m.Called(id).Error(0) }

// SetDriverInfo method
func (m *MonitorMock) SetDriverInfo(id ObjectID, settings DriverSettings) error {
	return m.Called(id, settings).Error(0)
}

// DriverInfo method
func (m *MonitorMock) DriverInfo(id ObjectID) (HookedDriver, error) {
	args := m.Called(id)
	return args.Get(0).(HookedDriver), args.Error(1)
}

// HookDeviceByName method
func (m *MonitorMock) HookDeviceByName(name string) (HookedDevice, error) {
	args := m.Called(name)
	return args.Get(0).(HookedDevice), args.Error(1)
}

// HookDeviceByAddress method
func (m *MonitorMock) HookDeviceByAddress(address uint64) (HookedDevice, error) {
	args := m.Called(address)
	return args.Get(0).(HookedDevice), args.Error(1)
}

// UnhookDevice method
func (m *MonitorMock) UnhookDevice(id ObjectID) error { return m.Called(id).Error(0) }

// DeviceInfo method
func (m *MonitorMock) DeviceInfo(id ObjectID) (HookedDevice, error) {
	args := m.Called(id)
	return args.Get(0).(HookedDevice), args.Error(1)
}

// SetDeviceInfo method
func (m *MonitorMock) SetDeviceInfo(id ObjectID, irp IRPMask, fastIo FastIOMask, active bool) error {
	return m.Called(id, irp, fastIo, active).Error(0)
}

// EnumerateHooks method
func (m *MonitorMock) EnumerateHooks() ([]HookedDriver, error) {
	args := m.Called()
	return args.Get(0).([]HookedDriver), args.Error(1)
}

// Snapshot method
func (m *MonitorMock) Snapshot() ([]DriverInfo, error) {
	args := m.Called()
	return args.Get(0).([]DriverInfo), args.Error(1)
}

// Connect method
func (m *MonitorMock) Connect(counter Counter) error { return m.Called(counter).Error(0) }

// Disconnect method
func (m *MonitorMock) Disconnect() error { return m.Called().Error(0) }

// ClearQueue method
func (m *MonitorMock) ClearQueue() error { return m.Called().Error(0) }

// GetRequest method
func (m *MonitorMock) GetRequest(size int) ([]byte, error) {
	args := m.Called(size)
	return args.Get(0).([]byte), args.Error(1)
}

// RegisterClassWatch method
func (m *MonitorMock) RegisterClassWatch(w ClassWatch) error { return m.Called(w).Error(0) }

// UnregisterClassWatch method
func (m *MonitorMock) UnregisterClassWatch(w ClassWatch) error { return m.Called(w).Error(0) }

// ClassWatches method
func (m *MonitorMock) ClassWatches() ([]ClassWatch, error) {
	args := m.Called()
	return args.Get(0).([]ClassWatch), args.Error(1)
}

// RegisterDriverNameWatch method
func (m *MonitorMock) RegisterDriverNameWatch(w DriverNameWatch) error { return m.Called(w).Error(0) }

// UnregisterDriverNameWatch method
func (m *MonitorMock) UnregisterDriverNameWatch(name string) error { return m.Called(name).Error(0) }

// DriverNameWatches method
func (m *MonitorMock) DriverNameWatches() ([]DriverNameWatch, error) {
	args := m.Called()
	return args.Get(0).([]DriverNameWatch), args.Error(1)
}

// EmulateDriverDevices method
func (m *MonitorMock) EmulateDriverDevices() error { return m.Called().Error(0) }

// EmulateProcesses method
func (m *MonitorMock) EmulateProcesses() error { return m.Called().Error(0) }

// QuerySettings method
func (m *MonitorMock) QuerySettings() (Settings, error) {
	args := m.Called()
	return args.Get(0).(Settings), args.Error(1)
}

// SetSettings method
func (m *MonitorMock) SetSettings(settings Settings, persist bool) error {
	return m.Called(settings, persist).Error(0)
}

// Close method
func (m *MonitorMock) Close() error { return m.Called().Error(0) }
