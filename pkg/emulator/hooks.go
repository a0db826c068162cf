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
	"sort"

	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	log "github.com/sirupsen/logrus"
)

type driverHook struct {
	id       monitor.ObjectID
	drv      *driverObject
	settings monitor.DriverSettings
	devExt   bool
	active   bool
	// covered are the devices captured under the driver settings
	covered map[uint64]bool
	devices map[monitor.ObjectID]*deviceHook
}

type deviceHook struct {
	id     monitor.ObjectID
	driver *driverHook
	dev    *deviceObject
	irp    monitor.IRPMask
	fastIo monitor.FastIOMask
	active bool
}

func (h *driverHook) record() monitor.HookedDriver {
	r := monitor.HookedDriver{
		ObjectID:            h.id,
		DriverName:          h.drv.name,
		DriverObject:        h.drv.addr,
		Settings:            h.settings,
		DeviceExtensionHook: h.devExt,
		MonitoringActive:    h.active,
	}
	for _, dh := range h.devices {
		r.Devices = append(r.Devices, dh.record())
	}
	sort.Slice(r.Devices, func(i, j int) bool { return r.Devices[i].ObjectID < r.Devices[j].ObjectID })
	return r
}

func (dh *deviceHook) record() monitor.HookedDevice {
	return monitor.HookedDevice{
		ObjectID:         dh.id,
		DriverID:         dh.driver.id,
		DeviceAddress:    dh.dev.Address,
		DeviceName:       dh.dev.Name,
		IRPSettings:      dh.irp,
		FastIOSettings:   dh.fastIo,
		MonitoringActive: dh.active,
	}
}

// isCapturing determines if the driver or any of its devices capture requests.
func (h *driverHook) isCapturing() bool {
	if h.active {
		return true
	}
	for _, dh := range h.devices {
		if dh.active {
			return true
		}
	}
	return false
}

func (e *Emulator) hookDriver(drv *driverObject, settings monitor.DriverSettings, devExt bool) *driverHook {
	h := &driverHook{
		id:       e.objectID(),
		drv:      drv,
		settings: settings,
		devExt:   devExt,
		covered:  make(map[uint64]bool),
		devices:  make(map[monitor.ObjectID]*deviceHook),
	}
	for _, dev := range drv.devices {
		h.covered[dev.Address] = true
	}
	e.hooks[h.id] = h
	e.hookByAddr[drv.addr] = h
	return h
}

func (e *Emulator) releaseDriverHook(h *driverHook) {
	for id, dh := range h.devices {
		delete(e.devHooks, id)
		delete(e.devHookAddr, dh.dev.Address)
	}
	delete(e.hooks, h.id)
	delete(e.hookByAddr, h.drv.addr)
}

func (e *Emulator) driverHook(id monitor.ObjectID) (*driverHook, error) {
	h, ok := e.hooks[id]
	if !ok {
		return nil, errors.Wrapf(kerrors.ErrNotFound, "driver hook %v", id)
	}
	return h, nil
}

func (e *Emulator) deviceHook(id monitor.ObjectID) (*deviceHook, error) {
	dh, ok := e.devHooks[id]
	if !ok {
		return nil, errors.Wrapf(kerrors.ErrNotFound, "device hook %v", id)
	}
	return dh, nil
}

// HookDriver hooks the loaded driver. The capture is not started.
func (e *Emulator) HookDriver(name string, settings monitor.DriverSettings, deviceExtension bool) (monitor.ObjectID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	drv, ok := e.drivers[monitor.NormalizeDriverName(name)]
	if !ok {
		return 0, errors.Wrapf(kerrors.ErrNotFound, "driver %s", name)
	}
	if e.hookByAddr[drv.addr] != nil {
		return 0, errors.Wrapf(kerrors.ErrAlreadyHooked, "driver %s", name)
	}
	h := e.hookDriver(drv, settings, deviceExtension)
	log.Debugf("driver %s hooked with object id %v", drv.name, h.id)
	return h.id, nil
}

// UnhookDriver removes the driver hook along with all its device hooks.
func (e *Emulator) UnhookDriver(id monitor.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, err := e.driverHook(id)
	if err != nil {
		return err
	}
	if h.isCapturing() {
		return errors.Wrapf(kerrors.ErrMonitoringActive, "driver %s", h.drv.name)
	}
	e.releaseDriverHook(h)
	log.Debugf("driver %s unhooked", h.drv.name)
	return nil
}

// StartDriverMonitoring starts capturing the driver requests.
func (e *Emulator) StartDriverMonitoring(id monitor.ObjectID) error {
	return e.setDriverActive(id, true)
}

// StopDriverMonitoring stops capturing the driver requests.
func (e *Emulator) StopDriverMonitoring(id monitor.ObjectID) error {
	return e.setDriverActive(id, false)
}

func (e *Emulator) setDriverActive(id monitor.ObjectID, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, err := e.driverHook(id)
	if err != nil {
		return err
	}
	h.active = active
	return nil
}

// SetDriverInfo replaces the driver settings. Only the new devices flag
// is changed while the capture is running.
func (e *Emulator) SetDriverInfo(id monitor.ObjectID, settings monitor.DriverSettings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, err := e.driverHook(id)
	if err != nil {
		return err
	}
	if h.active {
		h.settings.MonitorNewDevices = settings.MonitorNewDevices
		return nil
	}
	h.settings = settings
	return nil
}

// DriverInfo returns the driver hook record.
func (e *Emulator) DriverInfo(id monitor.ObjectID) (monitor.HookedDriver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, err := e.driverHook(id)
	if err != nil {
		return monitor.HookedDriver{}, err
	}
	return h.record(), nil
}

// HookDevice hooks the device of the hooked driver. The device hook
// inherits the driver masks and starts with the capture disabled.
func (e *Emulator) HookDevice(name string, address uint64) (monitor.HookedDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dev, err := e.findDevice(name, address)
	if err != nil {
		return monitor.HookedDevice{}, err
	}
	h := e.hookByAddr[dev.driver.addr]
	if h == nil {
		return monitor.HookedDevice{}, errors.Wrapf(kerrors.ErrNotFound, "driver %s of device 0x%x is not hooked", dev.driver.name, dev.Address)
	}
	if e.devHookAddr[dev.Address] != nil {
		return monitor.HookedDevice{}, errors.Wrapf(kerrors.ErrAlreadyHooked, "device 0x%x", dev.Address)
	}
	dh := &deviceHook{
		id:     e.objectID(),
		driver: h,
		dev:    dev,
		irp:    h.settings.IRPSettings,
		fastIo: h.settings.FastIOSettings,
	}
	h.devices[dh.id] = dh
	e.devHooks[dh.id] = dh
	e.devHookAddr[dev.Address] = dh
	log.Debugf("device 0x%x of %s hooked with object id %v", dev.Address, dev.driver.name, dh.id)
	return dh.record(), nil
}

// UnhookDevice removes the device hook.
func (e *Emulator) UnhookDevice(id monitor.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	dh, err := e.deviceHook(id)
	if err != nil {
		return err
	}
	delete(dh.driver.devices, id)
	delete(e.devHooks, id)
	delete(e.devHookAddr, dh.dev.Address)
	return nil
}

// DeviceInfo returns the device hook record.
func (e *Emulator) DeviceInfo(id monitor.ObjectID) (monitor.HookedDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dh, err := e.deviceHook(id)
	if err != nil {
		return monitor.HookedDevice{}, err
	}
	return dh.record(), nil
}

// SetDeviceInfo updates the device hook masks and the capture state.
func (e *Emulator) SetDeviceInfo(id monitor.ObjectID, irp monitor.IRPMask, fastIo monitor.FastIOMask, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	dh, err := e.deviceHook(id)
	if err != nil {
		return err
	}
	dh.irp, dh.fastIo, dh.active = irp, fastIo, active
	return nil
}

// EnumerateHooks returns the hook table ordered by object identifiers.
func (e *Emulator) EnumerateHooks() []monitor.HookedDriver {
	e.mu.Lock()
	defer e.mu.Unlock()
	hooks := make([]monitor.HookedDriver, 0, len(e.hooks))
	for _, h := range e.hooks {
		hooks = append(hooks, h.record())
	}
	sort.Slice(hooks, func(i, j int) bool { return hooks[i].ObjectID < hooks[j].ObjectID })
	return hooks
}

// Snapshot returns all loaded drivers and their devices.
func (e *Emulator) Snapshot() []monitor.DriverInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// capture resolves the masks that apply to the requests sent to the
// device. The device hook takes precedence over the driver settings.
func (e *Emulator) capture(dev *deviceObject) (monitor.IRPMask, monitor.FastIOMask, bool, bool) {
	h := e.hookByAddr[dev.driver.addr]
	if h == nil || !h.active {
		return 0, 0, false, false
	}
	if dh := e.devHookAddr[dev.Address]; dh != nil {
		return dh.irp, dh.fastIo, h.settings.MonitorData, dh.active
	}
	if !h.covered[dev.Address] {
		return 0, 0, false, false
	}
	return h.settings.IRPSettings, h.settings.FastIOSettings, h.settings.MonitorData, true
}
