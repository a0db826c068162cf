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
	"context"
	"expvar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/emulator"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/handle"
	"github.com/rabbitstack/irpmon/pkg/hook"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/queue"
	"github.com/rabbitstack/irpmon/pkg/remote"
	"github.com/rabbitstack/irpmon/pkg/watch"
	log "github.com/sirupsen/logrus"
)

// defaultConnectTimeout bounds the dial when the init info doesn't specify the timeout
const defaultConnectTimeout = time.Second * 10

var (
	initializations   = expvar.NewInt("irpmon.initializations")
	defaultHookErrors = expvar.NewMap("irpmon.default.hook.errors")
)

// InitInfo describes how the client reaches the monitor. The first
// non-empty source wins: Monitor, then Emulator, then Endpoint.
type InitInfo struct {
	// Monitor is used as is.
	Monitor monitor.Monitor
	// Emulator makes the client attach a new session of the emulated monitor.
	Emulator *emulator.Emulator
	// Endpoint is the socket endpoint of the remote monitor (tcp://host:port or npipe:///name).
	Endpoint string
	// ConnectTimeout bounds the time spent dialing the endpoint.
	ConnectTimeout time.Duration
	// Drivers are hooked on connect with the DriverSettings.
	Drivers []string
	// DriverSettings are the settings of the drivers hooked on connect.
	DriverSettings monitor.DriverSettings
}

// Client is the process-wide entry point to the monitor. Initialize must
// precede all other operations. The hook, watch and queue services
// returned by the client stay valid across Finalize/Initialize cycles,
// but fail with ErrNotInitialized while the client is finalized and
// handles issued before Finalize are never valid again.
type Client struct {
	mu          sync.Mutex
	initialized atomic.Bool

	attachMu sync.RWMutex
	mon      monitor.Monitor

	reg     *handle.Registry
	hooks   *hook.Manager
	watches *watch.Registry
	queue   *queue.Channel

	defaults []handle.Handle
}

// New creates the finalized client.
func New() *Client {
	c := &Client{reg: handle.NewRegistry()}
	g := &guard{c: c}
	c.hooks = hook.NewManager(g, c.reg)
	c.watches = watch.NewRegistry(g)
	c.queue = queue.NewChannel(g)
	return c
}

// Initialize establishes the connection to the monitor and hooks the
// default drivers. Socket endpoints are dialed with exponential backoff
// until the connect timeout elapses.
func (c *Client) Initialize(info InitInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized.Load() {
		return kerrors.ErrAlreadyInitialized
	}

	mon, err := attach(info)
	if err != nil {
		return err
	}

	c.attachMu.Lock()
	c.mon = mon
	c.attachMu.Unlock()
	c.initialized.Store(true)
	initializations.Add(1)

	c.defaults = c.hookDefaults(info.Drivers, info.DriverSettings)

	log.Infof("irpmon client initialized. %d default driver(s) hooked", len(c.defaults))

	return nil
}

func attach(info InitInfo) (monitor.Monitor, error) {
	switch {
	case info.Monitor != nil:
		return info.Monitor, nil
	case info.Emulator != nil:
		return info.Emulator.Session(), nil
	case info.Endpoint != "":
		timeout := info.ConnectTimeout
		if timeout == 0 {
			timeout = defaultConnectTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return remote.Dial(ctx, info.Endpoint)
	default:
		return nil, errors.Wrap(kerrors.ErrMonitorUnavailable, "no monitor source given")
	}
}

// hookDefaults hooks the default drivers. Drivers that are already
// hooked by someone else are opened instead. Failures are logged but
// don't abort the initialization.
func (c *Client) hookDefaults(drivers []string, settings monitor.DriverSettings) []handle.Handle {
	if len(drivers) == 0 {
		return nil
	}
	handles := make([]handle.Handle, 0, len(drivers))
	for _, name := range drivers {
		h, _, err := c.hooks.HookDriver(name, settings, false)
		if errors.Is(err, kerrors.ErrAlreadyHooked) {
			h, err = c.openHooked(name)
		}
		if err != nil {
			defaultHookErrors.Add(name, 1)
			log.Warnf("unable to hook default driver %s: %v", name, err)
			continue
		}
		log.Debugf("default driver %s hooked", name)
		handles = append(handles, h)
	}
	return handles
}

func (c *Client) openHooked(name string) (handle.Handle, error) {
	table, err := c.hooks.EnumerateHooks()
	if err != nil {
		return 0, err
	}
	defer func() { _ = table.Release() }()
	for _, drv := range table.Drivers {
		if monitor.NormalizeDriverName(drv.DriverName) == monitor.NormalizeDriverName(name) {
			return c.hooks.OpenDriver(drv.ObjectID)
		}
	}
	return 0, errors.Wrapf(kerrors.ErrNotFound, "hooked driver %s", name)
}

// IsInitialized determines if the client is connected to the monitor.
func (c *Client) IsInitialized() bool { return c.initialized.Load() }

// Finalize disconnects from the event queue, invalidates all outstanding
// handles and tears down the monitor connection.
func (c *Client) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized.Load() {
		return kerrors.ErrNotInitialized
	}

	if err := c.queue.Close(); err != nil {
		log.Warnf("unable to disconnect from the event queue: %v", err)
	}

	c.attachMu.Lock()
	mon := c.mon
	c.mon = nil
	c.attachMu.Unlock()
	c.initialized.Store(false)

	c.reg.Reset()
	c.defaults = nil

	if err := mon.Close(); err != nil {
		return errors.Wrap(err, "unable to close the monitor connection")
	}
	log.Info("irpmon client finalized")
	return nil
}

// Hooks returns the hook lifecycle service.
func (c *Client) Hooks() *hook.Manager { return c.hooks }

// Watches returns the watch registry service.
func (c *Client) Watches() *watch.Registry { return c.watches }

// Queue returns the event queue channel.
func (c *Client) Queue() *queue.Channel { return c.queue }

// DefaultHooks returns the handles of the drivers hooked on connect.
func (c *Client) DefaultHooks() []handle.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	handles := make([]handle.Handle, len(c.defaults))
	copy(handles, c.defaults)
	return handles
}

// QuerySettings returns the global monitor settings.
func (c *Client) QuerySettings() (monitor.Settings, error) {
	mon, err := c.monitor()
	if err != nil {
		return monitor.Settings{}, err
	}
	return mon.QuerySettings()
}

// SetSettings applies the global monitor settings. The settings survive
// the monitor restart if persist is true.
func (c *Client) SetSettings(settings monitor.Settings, persist bool) error {
	mon, err := c.monitor()
	if err != nil {
		return err
	}
	return mon.SetSettings(settings, persist)
}

func (c *Client) monitor() (monitor.Monitor, error) {
	c.attachMu.RLock()
	defer c.attachMu.RUnlock()
	if c.mon == nil {
		return nil, kerrors.ErrNotInitialized
	}
	return c.mon, nil
}
