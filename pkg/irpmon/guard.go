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

package irpmon

import (
	"github.com/rabbitstack/irpmon/pkg/monitor"
)

// guard forwards calls to the attached monitor and fails them with
// ErrNotInitialized while the client is finalized.
type guard struct {
	c *Client
}

func (g *guard) HookDriver(name string, settings monitor.DriverSettings, deviceExtension bool) (monitor.ObjectID, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return 0, err
	}
	return mon.HookDriver(name, settings, deviceExtension)
}

func (g *guard) UnhookDriver(id monitor.ObjectID) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.UnhookDriver(id)
}

func (g *guard) StartDriverMonitoring(id monitor.ObjectID) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.StartDriverMonitoring(id)
}

func (g *guard) StopDriverMonitoring(id monitor.ObjectID) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.StopDriverMonitoring(id)
}

func (g *guard) SetDriverInfo(id monitor.ObjectID, settings monitor.DriverSettings) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.SetDriverInfo(id, settings)
}

func (g *guard) DriverInfo(id monitor.ObjectID) (monitor.HookedDriver, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return monitor.HookedDriver{}, err
	}
	return mon.DriverInfo(id)
}

func (g *guard) HookDeviceByName(name string) (monitor.HookedDevice, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return monitor.HookedDevice{}, err
	}
	return mon.HookDeviceByName(name)
}

func (g *guard) HookDeviceByAddress(address uint64) (monitor.HookedDevice, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return monitor.HookedDevice{}, err
	}
	return mon.HookDeviceByAddress(address)
}

func (g *guard) UnhookDevice(id monitor.ObjectID) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.UnhookDevice(id)
}

func (g *guard) DeviceInfo(id monitor.ObjectID) (monitor.HookedDevice, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return monitor.HookedDevice{}, err
	}
	return mon.DeviceInfo(id)
}

func (g *guard) SetDeviceInfo(id monitor.ObjectID, irp monitor.IRPMask, fastIo monitor.FastIOMask, active bool) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.SetDeviceInfo(id, irp, fastIo, active)
}

func (g *guard) EnumerateHooks() ([]monitor.HookedDriver, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return nil, err
	}
	return mon.EnumerateHooks()
}

func (g *guard) Snapshot() ([]monitor.DriverInfo, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return nil, err
	}
	return mon.Snapshot()
}

func (g *guard) Connect(counter monitor.Counter) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.Connect(counter)
}

func (g *guard) Disconnect() error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.Disconnect()
}

func (g *guard) ClearQueue() error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.ClearQueue()
}

func (g *guard) GetRequest(size int) ([]byte, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return nil, err
	}
	return mon.GetRequest(size)
}

func (g *guard) RegisterClassWatch(w monitor.ClassWatch) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.RegisterClassWatch(w)
}

func (g *guard) UnregisterClassWatch(w monitor.ClassWatch) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.UnregisterClassWatch(w)
}

func (g *guard) ClassWatches() ([]monitor.ClassWatch, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return nil, err
	}
	return mon.ClassWatches()
}

func (g *guard) RegisterDriverNameWatch(w monitor.DriverNameWatch) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.RegisterDriverNameWatch(w)
}

func (g *guard) UnregisterDriverNameWatch(name string) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.UnregisterDriverNameWatch(name)
}

func (g *guard) DriverNameWatches() ([]monitor.DriverNameWatch, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return nil, err
	}
	return mon.DriverNameWatches()
}

func (g *guard) EmulateDriverDevices() error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.EmulateDriverDevices()
}

func (g *guard) EmulateProcesses() error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.EmulateProcesses()
}

func (g *guard) QuerySettings() (monitor.Settings, error) {
	mon, err := g.c.monitor()
	if err != nil {
		return monitor.Settings{}, err
	}
	return mon.QuerySettings()
}

func (g *guard) SetSettings(settings monitor.Settings, persist bool) error {
	mon, err := g.c.monitor()
	if err != nil {
		return err
	}
	return mon.SetSettings(settings, persist)
}

// Close is owned by Finalize.
func (g *guard) Close() error { return nil }
