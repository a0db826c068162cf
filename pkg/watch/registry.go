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

package watch

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	log "github.com/sirupsen/logrus"
)

// Registry manages the standing subscriptions that make the monitor
// report drivers and devices appearing in the future. Subscriptions are
// owned by the client session and vanish when it disconnects.
type Registry struct {
	mon monitor.Monitor
}

// NewRegistry creates the watch registry.
func NewRegistry(mon monitor.Monitor) *Registry {
	return &Registry{mon: mon}
}

// ParseClassGUID parses the device setup class identifier. Both braced
// and bare forms are accepted.
func ParseClassGUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.Trim(strings.TrimSpace(s), "{}"))
	if err != nil {
		return uuid.Nil, errors.Wrapf(kerrors.ErrMalformed, "invalid class guid %q", s)
	}
	return id, nil
}

// RegisterClassWatch subscribes to devices of the setup class. The
// filter position is given by the upper filter and beginning flags.
func (r *Registry) RegisterClassWatch(classGUID string, upperFilter, beginning bool) error {
	id, err := ParseClassGUID(classGUID)
	if err != nil {
		return err
	}
	w := monitor.ClassWatch{ClassGUID: id.String(), UpperFilter: upperFilter, Beginning: beginning}
	if err := r.mon.RegisterClassWatch(w); err != nil {
		return err
	}
	log.Debugf("registered class watch %s", w)
	return nil
}

// UnregisterClassWatch removes the class subscription.
func (r *Registry) UnregisterClassWatch(classGUID string, upperFilter, beginning bool) error {
	id, err := ParseClassGUID(classGUID)
	if err != nil {
		return err
	}
	return r.mon.UnregisterClassWatch(monitor.ClassWatch{ClassGUID: id.String(), UpperFilter: upperFilter, Beginning: beginning})
}

// RegisterDriverNameWatch subscribes to the load of the named driver.
// Once the driver loads, the monitor hooks it with the given settings.
func (r *Registry) RegisterDriverNameWatch(name string, settings monitor.DriverSettings) error {
	if name == "" {
		return errors.Wrap(kerrors.ErrMalformed, "driver name is empty")
	}
	if err := r.mon.RegisterDriverNameWatch(monitor.DriverNameWatch{DriverName: name, Settings: settings}); err != nil {
		return err
	}
	log.Debugf("registered driver name watch %s", name)
	return nil
}

// UnregisterDriverNameWatch removes the driver name subscription.
func (r *Registry) UnregisterDriverNameWatch(name string) error {
	return r.mon.UnregisterDriverNameWatch(name)
}

// EnumClassWatches lists the class subscriptions. The list must be released once.
func (r *Registry) EnumClassWatches() (*ClassWatches, error) {
	watches, err := r.mon.ClassWatches()
	if err != nil {
		return nil, err
	}
	return &ClassWatches{Watches: watches}, nil
}

// EnumDriverNameWatches lists the driver name subscriptions. The list must be released once.
func (r *Registry) EnumDriverNameWatches() (*DriverNameWatches, error) {
	watches, err := r.mon.DriverNameWatches()
	if err != nil {
		return nil, err
	}
	return &DriverNameWatches{Watches: watches}, nil
}

// EmulateDriverDevices asks the monitor to queue detected records for
// all drivers and devices that are already present.
func (r *Registry) EmulateDriverDevices() error { return r.mon.EmulateDriverDevices() }

// EmulateProcesses asks the monitor to queue creation records for all
// running processes.
func (r *Registry) EmulateProcesses() error { return r.mon.EmulateProcesses() }

// ClassWatches is the enumerated list of class subscriptions.
type ClassWatches struct {
	Watches  []monitor.ClassWatch
	released uint32
}

// Release frees the list. Releasing it again fails with ErrAlreadyReleased.
func (w *ClassWatches) Release() error {
	if !atomic.CompareAndSwapUint32(&w.released, 0, 1) {
		return kerrors.ErrAlreadyReleased
	}
	w.Watches = nil
	return nil
}

// DriverNameWatches is the enumerated list of driver name subscriptions.
type DriverNameWatches struct {
	Watches  []monitor.DriverNameWatch
	released uint32
}

// Release frees the list. Releasing it again fails with ErrAlreadyReleased.
func (w *DriverNameWatches) Release() error {
	if !atomic.CompareAndSwapUint32(&w.released, 0, 1) {
		return kerrors.ErrAlreadyReleased
	}
	w.Watches = nil
	return nil
}
