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
	"github.com/rabbitstack/irpmon/pkg/request"
)

type classWatch struct {
	monitor.ClassWatch
	owner uint64
}

type nameWatch struct {
	monitor.DriverNameWatch
	owner uint64
}

func (e *Emulator) isClassWatched(guid string) bool {
	if guid == "" {
		return false
	}
	for _, w := range e.classWatches {
		if w.ClassGUID == guid {
			return true
		}
	}
	return false
}

func (e *Emulator) registerClassWatch(sid uint64, w monitor.ClassWatch) error {
	guid, err := normalizeGUID(w.ClassGUID)
	if err != nil {
		return err
	}
	if guid == "" {
		return errors.Wrap(kerrors.ErrMalformed, "class guid is empty")
	}
	w.ClassGUID = guid
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cw := range e.classWatches {
		if cw.ClassWatch == w {
			return errors.Wrapf(kerrors.ErrAlreadyExists, "class watch %s", w)
		}
	}
	e.classWatches = append(e.classWatches, classWatch{ClassWatch: w, owner: sid})
	return nil
}

func (e *Emulator) unregisterClassWatch(w monitor.ClassWatch) error {
	guid, err := normalizeGUID(w.ClassGUID)
	if err != nil {
		return err
	}
	w.ClassGUID = guid
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cw := range e.classWatches {
		if cw.ClassWatch == w {
			e.classWatches = append(e.classWatches[:i], e.classWatches[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(kerrors.ErrNotFound, "class watch %s", w)
}

func (e *Emulator) enumClassWatches() []monitor.ClassWatch {
	e.mu.Lock()
	defer e.mu.Unlock()
	watches := make([]monitor.ClassWatch, 0, len(e.classWatches))
	for _, w := range e.classWatches {
		watches = append(watches, w.ClassWatch)
	}
	return watches
}

func (e *Emulator) registerDriverNameWatch(sid uint64, w monitor.DriverNameWatch) error {
	if w.DriverName == "" {
		return errors.Wrap(kerrors.ErrMalformed, "driver name is empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := monitor.NormalizeDriverName(w.DriverName)
	if _, ok := e.nameWatches[key]; ok {
		return errors.Wrapf(kerrors.ErrAlreadyExists, "driver name watch %s", w.DriverName)
	}
	e.nameWatches[key] = nameWatch{DriverNameWatch: w, owner: sid}
	return nil
}

func (e *Emulator) unregisterDriverNameWatch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := monitor.NormalizeDriverName(name)
	if _, ok := e.nameWatches[key]; !ok {
		return errors.Wrapf(kerrors.ErrNotFound, "driver name watch %s", name)
	}
	delete(e.nameWatches, key)
	return nil
}

func (e *Emulator) enumDriverNameWatches() []monitor.DriverNameWatch {
	e.mu.Lock()
	defer e.mu.Unlock()
	watches := make([]monitor.DriverNameWatch, 0, len(e.nameWatches))
	for _, w := range e.nameWatches {
		watches = append(watches, w.DriverNameWatch)
	}
	sort.Slice(watches, func(i, j int) bool { return watches[i].DriverName < watches[j].DriverName })
	return watches
}

// dropWatches removes the watches registered by the session.
func (e *Emulator) dropWatches(sid uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	watches := e.classWatches[:0]
	for _, w := range e.classWatches {
		if w.owner != sid {
			watches = append(watches, w)
		}
	}
	e.classWatches = watches
	for key, w := range e.nameWatches {
		if w.owner == sid {
			delete(e.nameWatches, key)
		}
	}
}

// emulateDriverDevices queues the emulated detected records for every
// loaded driver and its devices. The caller must hold the lock.
func (e *Emulator) emulateDriverDevices() {
	for _, drv := range e.sortedDrivers() {
		e.enqueueDriverDetected(drv, request.Emulated)
		for _, dev := range drv.devices {
			e.enqueueDeviceDetected(dev, request.Emulated)
		}
	}
}

// emulateProcesses queues the emulated creation records for running
// processes. The caller must hold the lock.
func (e *Emulator) emulateProcesses() error {
	procs, err := e.opts.Processes.Processes()
	if err != nil {
		return err
	}
	for _, p := range procs {
		e.enqueue(processCreated(p, request.Emulated))
	}
	return nil
}

// EmulateDriverDevices queues the detected records for all loaded drivers and devices.
func (e *Emulator) EmulateDriverDevices() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emulateDriverDevices()
}

// EmulateProcesses queues the creation records for running processes.
func (e *Emulator) EmulateProcesses() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emulateProcesses()
}
