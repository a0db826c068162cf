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
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type driverObject struct {
	addr    uint64
	name    string
	devices []*deviceObject
}

type deviceObject struct {
	monitor.DeviceInfo
	driver *driverObject
}

func (d *driverObject) info() monitor.DriverInfo {
	di := monitor.DriverInfo{Address: d.addr, Name: d.name}
	for _, dev := range d.devices {
		di.Devices = append(di.Devices, dev.DeviceInfo)
	}
	return di
}

// Inventory is the set of emulated drivers and devices.
type Inventory struct {
	Drivers []monitor.DriverInfo `yaml:"drivers"`
}

// LoadInventory reads the inventory from the YAML file and loads every
// driver it declares.
func (e *Emulator) LoadInventory(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "unable to read inventory from %s", path)
	}
	return e.LoadInventoryBytes(b)
}

// LoadInventoryBytes loads the drivers declared in the YAML document.
func (e *Emulator) LoadInventoryBytes(b []byte) error {
	var inv Inventory
	if err := yaml.Unmarshal(b, &inv); err != nil {
		return errors.Wrap(err, "invalid inventory")
	}
	for _, drv := range inv.Drivers {
		if _, err := e.LoadDriver(drv); err != nil {
			return err
		}
	}
	return nil
}

func normalizeGUID(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	id, err := uuid.Parse(strings.Trim(s, "{}"))
	if err != nil {
		return "", errors.Wrapf(kerrors.ErrMalformed, "class guid %q: %v", s, err)
	}
	return id.String(), nil
}

// LoadDriver simulates the driver load. Zero addresses are assigned by
// the emulator. If a driver name watch matches the driver, the driver is
// hooked with the watch settings, the monitoring is started and the
// driver detected record is queued.
func (e *Emulator) LoadDriver(info monitor.DriverInfo) (monitor.DriverInfo, error) {
	if info.Name == "" {
		return monitor.DriverInfo{}, errors.Wrap(kerrors.ErrMalformed, "driver name is empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key := monitor.NormalizeDriverName(info.Name)
	if _, ok := e.drivers[key]; ok {
		return monitor.DriverInfo{}, errors.Wrapf(kerrors.ErrAlreadyExists, "driver %s", info.Name)
	}
	if info.Address == 0 {
		info.Address = e.address()
	}
	if _, ok := e.driversByAddr[info.Address]; ok {
		return monitor.DriverInfo{}, errors.Wrapf(kerrors.ErrAlreadyExists, "driver address 0x%x", info.Address)
	}
	drv := &driverObject{addr: info.Address, name: info.Name}
	devices := make([]*deviceObject, 0, len(info.Devices))
	for _, di := range info.Devices {
		dev, err := e.newDevice(drv, di)
		if err != nil {
			return monitor.DriverInfo{}, err
		}
		devices = append(devices, dev)
	}
	e.drivers[key] = drv
	e.driversByAddr[drv.addr] = drv
	for _, dev := range devices {
		e.addDevice(drv, dev)
	}
	log.Debugf("driver %s loaded at 0x%x with %d device(s)", drv.name, drv.addr, len(drv.devices))

	if w, ok := e.nameWatches[key]; ok && e.hookByAddr[drv.addr] == nil {
		h := e.hookDriver(drv, w.Settings, false)
		h.active = true
		log.Infof("driver %s hooked by name watch", drv.name)
		e.enqueueDriverDetected(drv, 0)
	}
	for _, dev := range devices {
		if e.isClassWatched(dev.ClassGUID) {
			e.enqueueDeviceDetected(dev, 0)
		}
	}
	return drv.info(), nil
}

func (e *Emulator) newDevice(drv *driverObject, di monitor.DeviceInfo) (*deviceObject, error) {
	guid, err := normalizeGUID(di.ClassGUID)
	if err != nil {
		return nil, err
	}
	di.ClassGUID = guid
	if di.Address == 0 {
		di.Address = e.address()
	}
	if _, ok := e.devices[di.Address]; ok {
		return nil, errors.Wrapf(kerrors.ErrAlreadyExists, "device address 0x%x", di.Address)
	}
	if di.Name != "" {
		if _, ok := e.devicesByName[strings.ToLower(di.Name)]; ok {
			return nil, errors.Wrapf(kerrors.ErrAlreadyExists, "device %s", di.Name)
		}
	}
	return &deviceObject{DeviceInfo: di, driver: drv}, nil
}

func (e *Emulator) addDevice(drv *driverObject, dev *deviceObject) {
	drv.devices = append(drv.devices, dev)
	e.devices[dev.Address] = dev
	if dev.Name != "" {
		e.devicesByName[strings.ToLower(dev.Name)] = dev
	}
}

// CreateDevice simulates the device creation by the loaded driver. The
// device is hooked right away if its driver is hooked with the new
// devices monitoring enabled.
func (e *Emulator) CreateDevice(driverName string, info monitor.DeviceInfo) (monitor.DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	drv, ok := e.drivers[monitor.NormalizeDriverName(driverName)]
	if !ok {
		return monitor.DeviceInfo{}, errors.Wrapf(kerrors.ErrNotFound, "driver %s", driverName)
	}
	dev, err := e.newDevice(drv, info)
	if err != nil {
		return monitor.DeviceInfo{}, err
	}
	e.addDevice(drv, dev)

	if h := e.hookByAddr[drv.addr]; h != nil {
		if h.settings.MonitorNewDevices {
			h.covered[dev.Address] = true
		}
		if h.active {
			e.enqueue(&request.Request{
				Header:  request.Header{DriverObject: drv.addr, DeviceObject: dev.Address},
				Payload: &request.AddDevice{},
			})
		}
	}
	if e.isClassWatched(dev.ClassGUID) {
		e.enqueueDeviceDetected(dev, 0)
	}
	return dev.DeviceInfo, nil
}

// UnloadDriver simulates the driver unload. The hook records of the
// driver and its devices are discarded.
func (e *Emulator) UnloadDriver(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := monitor.NormalizeDriverName(name)
	drv, ok := e.drivers[key]
	if !ok {
		return errors.Wrapf(kerrors.ErrNotFound, "driver %s", name)
	}
	if h := e.hookByAddr[drv.addr]; h != nil {
		if h.active {
			e.enqueue(&request.Request{
				Header:  request.Header{DriverObject: drv.addr},
				Payload: &request.DriverUnload{},
			})
		}
		e.releaseDriverHook(h)
	}
	for _, dev := range drv.devices {
		delete(e.devices, dev.Address)
		if dev.Name != "" {
			delete(e.devicesByName, strings.ToLower(dev.Name))
		}
	}
	delete(e.drivers, key)
	delete(e.driversByAddr, drv.addr)
	log.Debugf("driver %s unloaded", drv.name)
	return nil
}

func (e *Emulator) snapshot() []monitor.DriverInfo {
	drivers := make([]monitor.DriverInfo, 0, len(e.drivers))
	for _, drv := range e.drivers {
		drivers = append(drivers, drv.info())
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].Address < drivers[j].Address })
	return drivers
}

func (e *Emulator) sortedDrivers() []*driverObject {
	drivers := make([]*driverObject, 0, len(e.drivers))
	for _, drv := range e.drivers {
		drivers = append(drivers, drv)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].addr < drivers[j].addr })
	return drivers
}

func (e *Emulator) findDevice(name string, addr uint64) (*deviceObject, error) {
	if addr != 0 {
		if dev, ok := e.devices[addr]; ok {
			return dev, nil
		}
		return nil, errors.Wrapf(kerrors.ErrNotFound, "device at 0x%x", addr)
	}
	if dev, ok := e.devicesByName[strings.ToLower(name)]; ok {
		return dev, nil
	}
	return nil, errors.Wrapf(kerrors.ErrNotFound, "device %s", name)
}
