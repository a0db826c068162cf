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

package hook

import (
	"github.com/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/handle"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	log "github.com/sirupsen/logrus"
)

// Manager drives the hook lifecycle of drivers and devices. Hook records
// live on the monitor side and are referenced by stable object
// identifiers, while callers only deal with process-local handles minted
// by the registry.
type Manager struct {
	mon monitor.Monitor
	reg *handle.Registry
}

// NewManager creates the hook manager.
func NewManager(mon monitor.Monitor, reg *handle.Registry) *Manager {
	return &Manager{mon: mon, reg: reg}
}

func (m *Manager) driver(h handle.Handle) (monitor.ObjectID, error) {
	e, err := m.reg.Lookup(h, handle.Driver)
	if err != nil {
		return 0, err
	}
	return e.ObjectID, nil
}

func (m *Manager) device(h handle.Handle) (monitor.ObjectID, error) {
	e, err := m.reg.Lookup(h, handle.Device)
	if err != nil {
		return 0, err
	}
	return e.ObjectID, nil
}

// HookDriver hooks the driver with the given name. The capture is not
// started until StartMonitoring is called.
func (m *Manager) HookDriver(name string, settings monitor.DriverSettings, deviceExtension bool) (handle.Handle, monitor.ObjectID, error) {
	oid, err := m.mon.HookDriver(name, settings, deviceExtension)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "unable to hook %s", name)
	}
	log.Debugf("hooked driver %s [%v]", name, oid)
	return m.reg.Insert(handle.Driver, oid, 0), oid, nil
}

// StartMonitoring starts capturing the driver requests. Starting the
// active hook succeeds.
func (m *Manager) StartMonitoring(h handle.Handle) error {
	oid, err := m.driver(h)
	if err != nil {
		return err
	}
	return m.mon.StartDriverMonitoring(oid)
}

// StopMonitoring stops capturing the driver requests. Stopping the
// inactive hook succeeds.
func (m *Manager) StopMonitoring(h handle.Handle) error {
	oid, err := m.driver(h)
	if err != nil {
		return err
	}
	return m.mon.StopDriverMonitoring(oid)
}

// SetInfo replaces the driver settings. While the capture is active
// only the MonitorNewDevices setting takes effect and the rest is
// silently ignored by the monitor.
func (m *Manager) SetInfo(h handle.Handle, settings monitor.DriverSettings) error {
	oid, err := m.driver(h)
	if err != nil {
		return err
	}
	return m.mon.SetDriverInfo(oid, settings)
}

// GetDriverInfo returns the driver hook record.
func (m *Manager) GetDriverInfo(h handle.Handle) (monitor.HookedDriver, error) {
	oid, err := m.driver(h)
	if err != nil {
		return monitor.HookedDriver{}, err
	}
	return m.mon.DriverInfo(oid)
}

// UnhookDriver releases the driver hook. It fails with
// ErrMonitoringActive if the driver or any of its devices is capturing.
// All handles of the driver and its devices become invalid.
func (m *Manager) UnhookDriver(h handle.Handle) error {
	oid, err := m.driver(h)
	if err != nil {
		return err
	}
	if err := m.mon.UnhookDriver(oid); err != nil {
		return err
	}
	n := m.reg.ReleaseObject(oid)
	log.Debugf("unhooked driver [%v]. %d handle(s) released", oid, n)
	return nil
}

// HookDeviceByName hooks the named device of the hooked driver.
func (m *Manager) HookDeviceByName(name string) (handle.Handle, monitor.ObjectID, error) {
	dev, err := m.mon.HookDeviceByName(name)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "unable to hook %s", name)
	}
	return m.reg.Insert(handle.Device, dev.ObjectID, dev.DriverID), dev.ObjectID, nil
}

// HookDeviceByAddress hooks the device object at the given address.
func (m *Manager) HookDeviceByAddress(address uint64) (handle.Handle, monitor.ObjectID, error) {
	dev, err := m.mon.HookDeviceByAddress(address)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "unable to hook device at 0x%x", address)
	}
	return m.reg.Insert(handle.Device, dev.ObjectID, dev.DriverID), dev.ObjectID, nil
}

// UnhookDevice releases the device hook. Devices of the unhooked
// driver are released implicitly.
func (m *Manager) UnhookDevice(h handle.Handle) error {
	oid, err := m.device(h)
	if err != nil {
		return err
	}
	if err := m.mon.UnhookDevice(oid); err != nil {
		return err
	}
	m.reg.ReleaseObject(oid)
	return nil
}

// GetDeviceInfo returns the device hook record.
func (m *Manager) GetDeviceInfo(h handle.Handle) (monitor.HookedDevice, error) {
	oid, err := m.device(h)
	if err != nil {
		return monitor.HookedDevice{}, err
	}
	return m.mon.DeviceInfo(oid)
}

// SetDeviceInfo updates the device masks and the capture state.
func (m *Manager) SetDeviceInfo(h handle.Handle, irp monitor.IRPMask, fastIo monitor.FastIOMask, active bool) error {
	oid, err := m.device(h)
	if err != nil {
		return err
	}
	return m.mon.SetDeviceInfo(oid, irp, fastIo, active)
}

// OpenDriver binds the new handle to the driver hooked by any process.
func (m *Manager) OpenDriver(oid monitor.ObjectID) (handle.Handle, error) {
	if _, err := m.mon.DriverInfo(oid); err != nil {
		return 0, err
	}
	return m.reg.Insert(handle.Driver, oid, 0), nil
}

// OpenDevice binds the new handle to the device hooked by any process.
func (m *Manager) OpenDevice(oid monitor.ObjectID) (handle.Handle, error) {
	dev, err := m.mon.DeviceInfo(oid)
	if err != nil {
		return 0, err
	}
	return m.reg.Insert(handle.Device, oid, dev.DriverID), nil
}

// CloseDriverHandle releases the driver handle. The hook stays in place.
func (m *Manager) CloseDriverHandle(h handle.Handle) error {
	return m.reg.CloseKind(h, handle.Driver)
}

// CloseDeviceHandle releases the device handle. The hook stays in place.
func (m *Manager) CloseDeviceHandle(h handle.Handle) error {
	return m.reg.CloseKind(h, handle.Device)
}

// EnumerateHooks returns the live hook table. The table must be released once.
func (m *Manager) EnumerateHooks() (*HookTable, error) {
	drivers, err := m.mon.EnumerateHooks()
	if err != nil {
		return nil, err
	}
	return &HookTable{Drivers: drivers}, nil
}

// RetrieveSnapshot enumerates all drivers and devices independently of
// the hook state. The snapshot must be released once.
func (m *Manager) RetrieveSnapshot() (*Snapshot, error) {
	drivers, err := m.mon.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Drivers: drivers}, nil
}
