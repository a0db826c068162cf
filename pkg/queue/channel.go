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

package queue

import (
	"context"
	"expvar"
	"sync"

	"github.com/pkg/errors"
	fsm "github.com/qmuntal/stateless"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	log "github.com/sirupsen/logrus"
)

// MaxRequestSize is the buffer size that fits any record the monitor produces.
const MaxRequestSize = request.MaxSize

var (
	// Disconnected is the initial state of the queue connection.
	Disconnected = fsm.State("disconnected")
	// Connected designates the calling process owns the event queue.
	Connected = fsm.State("connected")

	connectTrigger    = fsm.Trigger("connect")
	disconnectTrigger = fsm.Trigger("disconnect")

	requestsRetrieved = expvar.NewInt("queue.requests.retrieved")
	shortBufferReads  = expvar.NewInt("queue.short.buffer.reads")
)

// Channel is the consumer side of the event queue. The monitor enforces
// that at most one consumer is connected system-wide, while the channel
// guards the connection state against concurrent Connect/Disconnect
// calls from the same process.
type Channel struct {
	mu      sync.Mutex
	mon     monitor.Monitor
	fsm     *fsm.StateMachine
	counter monitor.Counter
}

// NewChannel creates the queue channel on top of the monitor.
func NewChannel(mon monitor.Monitor) *Channel {
	c := &Channel{
		mon: mon,
		fsm: fsm.NewStateMachine(Disconnected),
	}
	c.fsm.
		Configure(Disconnected).
		Permit(connectTrigger, Connected)
	c.fsm.
		Configure(Connected).
		Permit(disconnectTrigger, Disconnected)
	c.fsm.OnTransitioned(func(ctx context.Context, transition fsm.Transition) {
		log.Debugf("event queue transitioned from %v to %v", transition.Source, transition.Destination)
	})
	return c
}

// State returns the current connection state.
func (c *Channel) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState()
}

// IsConnected determines if the channel owns the event queue.
func (c *Channel) IsConnected() bool { return c.State() == Connected }

// Counter returns the notification counter supplied at connect time.
func (c *Channel) Counter() monitor.Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Connect attaches to the event queue. If the counter is given, the
// monitor advances it for every queued record, including the records
// that were waiting before the connection was established.
func (c *Channel) Connect(counter monitor.Counter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.MustState() == Connected {
		return kerrors.ErrAlreadyConnected
	}
	if err := c.mon.Connect(counter); err != nil {
		return errors.Wrap(err, "unable to connect to the event queue")
	}
	c.counter = counter
	return c.fsm.Fire(connectTrigger)
}

// Disconnect releases the event queue. Blocked GetRequest calls return
// with ErrNotConnected.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.MustState() != Connected {
		return kerrors.ErrNotConnected
	}
	err := c.mon.Disconnect()
	c.counter = nil
	if ferr := c.fsm.Fire(disconnectTrigger); ferr != nil {
		return ferr
	}
	if err != nil && !kerrors.IsNotConnected(err) {
		return errors.Wrap(err, "unable to disconnect from the event queue")
	}
	return nil
}

// ClearQueue discards all queued records.
func (c *Channel) ClearQueue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.MustState() != Connected {
		return kerrors.ErrNotConnected
	}
	return c.mon.ClearQueue()
}

// GetRequest blocks until the record is available and removes it from
// the queue. If the record is larger than size, ErrInsufficientBuffer is
// returned and the record remains queued. The only way to cancel the
// call is to Disconnect.
func (c *Channel) GetRequest(size int) (*request.Buffer, error) {
	if !c.IsConnected() {
		return nil, kerrors.ErrNotConnected
	}
	b, err := c.mon.GetRequest(size)
	if err != nil {
		if kerrors.IsInsufficientBuffer(err) {
			shortBufferReads.Add(1)
		}
		return nil, err
	}
	requestsRetrieved.Add(1)
	return request.FromBytes(b), nil
}

// Next retrieves and decodes the next record using the buffer large
// enough for any record.
func (c *Channel) Next() (*request.Request, error) {
	buf, err := c.GetRequest(MaxRequestSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = buf.Free() }()
	return buf.Decode()
}

// Close disconnects from the queue if connected.
func (c *Channel) Close() error {
	if c.IsConnected() {
		return c.Disconnect()
	}
	return nil
}
