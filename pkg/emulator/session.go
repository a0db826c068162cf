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
	"sync/atomic"

	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
)

// Session is the client connection to the emulator. It implements
// monitor.Monitor, so the client can't tell it apart from the real
// kernel-mode monitor.
type Session struct {
	e      *Emulator
	id     uint64
	closed uint32
}

var _ monitor.Monitor = (*Session)(nil)

// ID returns the session identifier.
func (s *Session) ID() uint64 { return s.id }

func (s *Session) check() error {
	if atomic.LoadUint32(&s.closed) == 1 {
		return kerrors.ErrMonitorUnavailable
	}
	return nil
}

func (s *Session) HookDriver(name string, settings monitor.DriverSettings, deviceExtension bool) (monitor.ObjectID, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.e.HookDriver(name, settings, deviceExtension)
}

func (s *Session) UnhookDriver(id monitor.ObjectID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.UnhookDriver(id)
}

func (s *Session) StartDriverMonitoring(id monitor.ObjectID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.StartDriverMonitoring(id)
}

func (s *Session) StopDriverMonitoring(id monitor.ObjectID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.StopDriverMonitoring(id)
}

func (s *Session) SetDriverInfo(id monitor.ObjectID, settings monitor.DriverSettings) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.SetDriverInfo(id, settings)
}

func (s *Session) DriverInfo(id monitor.ObjectID) (monitor.HookedDriver, error) {
	if err := s.check(); err != nil {
		return monitor.HookedDriver{}, err
	}
	return s.e.DriverInfo(id)
}

func (s *Session) HookDeviceByName(name string) (monitor.HookedDevice, error) {
	if err := s.check(); err != nil {
		return monitor.HookedDevice{}, err
	}
	return s.e.HookDevice(name, 0)
}

func (s *Session) HookDeviceByAddress(address uint64) (monitor.HookedDevice, error) {
	if err := s.check(); err != nil {
		return monitor.HookedDevice{}, err
	}
	if address == 0 {
		return monitor.HookedDevice{}, kerrors.ErrNotFound
	}
	return s.e.HookDevice("", address)
}

func (s *Session) UnhookDevice(id monitor.ObjectID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.UnhookDevice(id)
}

func (s *Session) DeviceInfo(id monitor.ObjectID) (monitor.HookedDevice, error) {
	if err := s.check(); err != nil {
		return monitor.HookedDevice{}, err
	}
	return s.e.DeviceInfo(id)
}

func (s *Session) SetDeviceInfo(id monitor.ObjectID, irp monitor.IRPMask, fastIo monitor.FastIOMask, active bool) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.SetDeviceInfo(id, irp, fastIo, active)
}

func (s *Session) EnumerateHooks() ([]monitor.HookedDriver, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.e.EnumerateHooks(), nil
}

func (s *Session) Snapshot() ([]monitor.DriverInfo, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.e.Snapshot(), nil
}

func (s *Session) Connect(counter monitor.Counter) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.connect(s.id, counter)
}

func (s *Session) Disconnect() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.disconnect(s.id)
}

func (s *Session) ClearQueue() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.clear(s.id)
}

func (s *Session) GetRequest(size int) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.e.getRequest(s.id, size)
}

func (s *Session) RegisterClassWatch(w monitor.ClassWatch) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.registerClassWatch(s.id, w)
}

func (s *Session) UnregisterClassWatch(w monitor.ClassWatch) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.unregisterClassWatch(w)
}

func (s *Session) ClassWatches() ([]monitor.ClassWatch, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.e.enumClassWatches(), nil
}

func (s *Session) RegisterDriverNameWatch(w monitor.DriverNameWatch) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.registerDriverNameWatch(s.id, w)
}

func (s *Session) UnregisterDriverNameWatch(name string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.unregisterDriverNameWatch(name)
}

func (s *Session) DriverNameWatches() ([]monitor.DriverNameWatch, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.e.enumDriverNameWatches(), nil
}

func (s *Session) EmulateDriverDevices() error {
	if err := s.check(); err != nil {
		return err
	}
	s.e.EmulateDriverDevices()
	return nil
}

func (s *Session) EmulateProcesses() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.EmulateProcesses()
}

func (s *Session) QuerySettings() (monitor.Settings, error) {
	if err := s.check(); err != nil {
		return monitor.Settings{}, err
	}
	return s.e.QuerySettings(), nil
}

func (s *Session) SetSettings(settings monitor.Settings, persist bool) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.e.SetSettings(settings, persist)
}

// Close releases the queue connection and the watches owned by the session.
func (s *Session) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}
	_ = s.e.disconnect(s.id)
	s.e.dropWatches(s.id)
	return nil
}
