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

package remote

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	log "github.com/sirupsen/logrus"
)

// Client is the monitor reached over the stream connection. Calls are
// multiplexed over the single connection, so a blocked GetRequest
// doesn't hold up other calls.
type Client struct {
	conn net.Conn
	wmu  sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *frame
	nextID  uint64
	counter monitor.Counter
	err     error

	done chan struct{}
	once sync.Once
}

var _ monitor.Monitor = (*Client)(nil)

// Dial connects to the monitor server listening on the endpoint. The
// server may not be up yet, so the dial is retried with exponential
// backoff until it succeeds or the context is done.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 50,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Second * 2,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	for {
		conn, err := dial(ctx, endpoint)
		if err == nil {
			log.Infof("established connection to monitor at %s", endpoint)
			return NewClient(conn), nil
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, errors.Wrapf(kerrors.ErrMonitorUnavailable, "unable to dial %s: %v", endpoint, err)
		}
		log.Warnf("monitor at %s not ready: %v. Trying to dial in %v...", endpoint, err, wait)
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(kerrors.ErrMonitorUnavailable, "unable to dial %s: %v", endpoint, err)
		case <-time.After(wait):
		}
	}
}

// NewClient creates the client on top of the established connection.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan *frame),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		f, err := readFrame(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}
		if f.CallID == 0 {
			c.notify(f)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.CallID]
		delete(c.pending, f.CallID)
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) notify(f *frame) {
	var n notification
	if err := decodeBody(f.Body, &n); err != nil {
		log.Warnf("invalid counter notification: %v", err)
		return
	}
	c.mu.Lock()
	counter := c.counter
	c.mu.Unlock()
	if counter != nil {
		counter.Add(n.Count)
	}
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.pending = make(map[uint64]chan *frame)
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) call(op Op, args, reply any) error {
	body, err := encodeBody(args)
	if err != nil {
		return err
	}
	ch := make(chan *frame, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return errors.Wrap(kerrors.ErrMonitorUnavailable, c.err.Error())
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	c.wmu.Lock()
	err = writeFrame(c.conn, &frame{CallID: id, Op: op, Body: body})
	c.wmu.Unlock()
	if err != nil {
		c.shutdown(err)
		return errors.Wrap(kerrors.ErrMonitorUnavailable, err.Error())
	}

	select {
	case f := <-ch:
		if f.Status != kerrors.Success {
			return kerrors.FromStatus(f.Status, f.Error)
		}
		return decodeBody(f.Body, reply)
	case <-c.done:
		return errors.Wrap(kerrors.ErrMonitorUnavailable, "connection closed")
	}
}

func (c *Client) HookDriver(name string, settings monitor.DriverSettings, deviceExtension bool) (monitor.ObjectID, error) {
	var id monitor.ObjectID
	err := c.call(opHookDriver, hookDriverArgs{Name: name, Settings: settings, DeviceExtension: deviceExtension}, &id)
	return id, err
}

func (c *Client) UnhookDriver(id monitor.ObjectID) error {
	return c.call(opUnhookDriver, objectArgs{ID: id}, nil)
}

func (c *Client) StartDriverMonitoring(id monitor.ObjectID) error {
	return c.call(opStartDriverMonitoring, objectArgs{ID: id}, nil)
}

func (c *Client) StopDriverMonitoring(id monitor.ObjectID) error {
	return c.call(opStopDriverMonitoring, objectArgs{ID: id}, nil)
}

func (c *Client) SetDriverInfo(id monitor.ObjectID, settings monitor.DriverSettings) error {
	return c.call(opSetDriverInfo, setDriverArgs{ID: id, Settings: settings}, nil)
}

func (c *Client) DriverInfo(id monitor.ObjectID) (monitor.HookedDriver, error) {
	var drv monitor.HookedDriver
	err := c.call(opDriverInfo, objectArgs{ID: id}, &drv)
	return drv, err
}

func (c *Client) HookDeviceByName(name string) (monitor.HookedDevice, error) {
	var dev monitor.HookedDevice
	err := c.call(opHookDeviceByName, hookDeviceArgs{Name: name}, &dev)
	return dev, err
}

func (c *Client) HookDeviceByAddress(address uint64) (monitor.HookedDevice, error) {
	var dev monitor.HookedDevice
	err := c.call(opHookDeviceByAddress, hookDeviceArgs{Address: address}, &dev)
	return dev, err
}

func (c *Client) UnhookDevice(id monitor.ObjectID) error {
	return c.call(opUnhookDevice, objectArgs{ID: id}, nil)
}

func (c *Client) DeviceInfo(id monitor.ObjectID) (monitor.HookedDevice, error) {
	var dev monitor.HookedDevice
	err := c.call(opDeviceInfo, objectArgs{ID: id}, &dev)
	return dev, err
}

func (c *Client) SetDeviceInfo(id monitor.ObjectID, irp monitor.IRPMask, fastIo monitor.FastIOMask, active bool) error {
	return c.call(opSetDeviceInfo, setDeviceArgs{ID: id, IRP: irp, FastIo: fastIo, Active: active}, nil)
}

func (c *Client) EnumerateHooks() ([]monitor.HookedDriver, error) {
	var drivers []monitor.HookedDriver
	err := c.call(opEnumerateHooks, nil, &drivers)
	return drivers, err
}

func (c *Client) Snapshot() ([]monitor.DriverInfo, error) {
	var drivers []monitor.DriverInfo
	err := c.call(opSnapshot, nil, &drivers)
	return drivers, err
}

// Connect attaches to the event queue. The counter is installed before
// the call is made, since the server sends the backlog notification
// ahead of the call response.
func (c *Client) Connect(counter monitor.Counter) error {
	c.mu.Lock()
	prev := c.counter
	c.counter = counter
	c.mu.Unlock()
	if err := c.call(opConnect, connectArgs{Counter: counter != nil}, nil); err != nil {
		c.mu.Lock()
		c.counter = prev
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) Disconnect() error {
	err := c.call(opDisconnect, nil, nil)
	if err == nil {
		c.mu.Lock()
		c.counter = nil
		c.mu.Unlock()
	}
	return err
}

func (c *Client) ClearQueue() error { return c.call(opClearQueue, nil, nil) }

func (c *Client) GetRequest(size int) ([]byte, error) {
	var b []byte
	err := c.call(opGetRequest, getRequestArgs{Size: size}, &b)
	return b, err
}

func (c *Client) RegisterClassWatch(w monitor.ClassWatch) error {
	return c.call(opRegisterClassWatch, w, nil)
}

func (c *Client) UnregisterClassWatch(w monitor.ClassWatch) error {
	return c.call(opUnregisterClassWatch, w, nil)
}

func (c *Client) ClassWatches() ([]monitor.ClassWatch, error) {
	var watches []monitor.ClassWatch
	err := c.call(opClassWatches, nil, &watches)
	return watches, err
}

func (c *Client) RegisterDriverNameWatch(w monitor.DriverNameWatch) error {
	return c.call(opRegisterDriverNameWatch, w, nil)
}

func (c *Client) UnregisterDriverNameWatch(name string) error {
	return c.call(opUnregisterDriverNameWatch, nameArgs{Name: name}, nil)
}

func (c *Client) DriverNameWatches() ([]monitor.DriverNameWatch, error) {
	var watches []monitor.DriverNameWatch
	err := c.call(opDriverNameWatches, nil, &watches)
	return watches, err
}

func (c *Client) EmulateDriverDevices() error { return c.call(opEmulateDriverDevices, nil, nil) }

func (c *Client) EmulateProcesses() error { return c.call(opEmulateProcesses, nil, nil) }

func (c *Client) QuerySettings() (monitor.Settings, error) {
	var settings monitor.Settings
	err := c.call(opQuerySettings, nil, &settings)
	return settings, err
}

func (c *Client) SetSettings(settings monitor.Settings, persist bool) error {
	return c.call(opSetSettings, settingsArgs{Settings: settings, Persist: persist}, nil)
}

// Close closes the connection. The server releases the session state,
// including the queue connection and the registered watches.
func (c *Client) Close() error {
	c.shutdown(errors.New("client closed"))
	return nil
}
