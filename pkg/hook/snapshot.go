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
	"sync/atomic"

	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
)

// Snapshot is the point-in-time listing of drivers and their devices.
type Snapshot struct {
	Drivers  []monitor.DriverInfo
	released uint32
}

// Release frees the snapshot. Releasing it again fails with ErrAlreadyReleased.
func (s *Snapshot) Release() error {
	if !atomic.CompareAndSwapUint32(&s.released, 0, 1) {
		return kerrors.ErrAlreadyReleased
	}
	s.Drivers = nil
	return nil
}

// Devices returns the total number of devices in the snapshot.
func (s *Snapshot) Devices() int {
	n := 0
	for _, drv := range s.Drivers {
		n += len(drv.Devices)
	}
	return n
}

// HookTable is the listing of hooked drivers with their hooked devices.
type HookTable struct {
	Drivers  []monitor.HookedDriver
	released uint32
}

// Release frees the hook table. Releasing it again fails with ErrAlreadyReleased.
func (t *HookTable) Release() error {
	if !atomic.CompareAndSwapUint32(&t.released, 0, 1) {
		return kerrors.ErrAlreadyReleased
	}
	t.Drivers = nil
	return nil
}

// Find returns the hooked driver by its object identifier.
func (t *HookTable) Find(oid monitor.ObjectID) (monitor.HookedDriver, bool) {
	for _, drv := range t.Drivers {
		if drv.ObjectID == oid {
			return drv, true
		}
	}
	return monitor.HookedDriver{}, false
}
