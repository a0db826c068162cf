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
	"time"

	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// dropWarnLimiter keeps the queue overflow warnings from flooding the log
// when the consumer falls behind a busy producer.
var dropWarnLimiter = rate.NewLimiter(rate.Every(5*time.Second), 1)

// enqueue stamps the record and appends it to the event queue. The
// caller must hold the lock.
func (e *Emulator) enqueue(req *request.Request) bool {
	if e.owner == 0 && !e.settings.ReqQueueCollectWhenDisconnected {
		requestsDropped.Add(1)
		return false
	}
	e.nextReqID++
	req.ID = e.nextReqID
	req.Timestamp = e.timestamp()

	buf := req.Encode()
	defer func() { _ = buf.Free() }()
	if e.opts.Compression.IsValid() && buf.Len() >= e.opts.CompressThreshold {
		request.CompressWith(buf, e.opts.Compression)
	}
	raw := make([]byte, buf.Len())
	copy(raw, buf.Bytes())

	e.queue = append(e.queue, raw)
	e.trimQueue()
	requestsQueued.Add(1)
	if e.owner != 0 && e.counter != nil {
		e.counter.Add(1)
	}
	e.cond.Broadcast()
	return true
}

// trimQueue drops the oldest records beyond the maximum queue size.
func (e *Emulator) trimQueue() {
	limit := int(e.settings.ReqQueueMaxSize)
	if limit == 0 || len(e.queue) <= limit {
		return
	}
	n := len(e.queue) - limit
	for i := 0; i < n; i++ {
		e.queue[i] = nil
	}
	e.queue = e.queue[n:]
	requestsDropped.Add(int64(n))
	if dropWarnLimiter.Allow() {
		log.Warnf("event queue is full. Dropped %d oldest record(s). Total dropped: %d", n, requestsDropped.Value())
	}
}

func (e *Emulator) clearQueue() {
	for i := range e.queue {
		e.queue[i] = nil
	}
	e.queue = e.queue[:0]
}

func (e *Emulator) connect(sid uint64, counter monitor.Counter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner != 0 {
		return kerrors.ErrAlreadyConnected
	}
	e.owner = sid
	e.counter = counter
	if counter != nil && len(e.queue) > 0 {
		counter.Add(len(e.queue))
	}
	log.Debugf("session %d connected to the event queue. %d record(s) waiting", sid, len(e.queue))
	if e.settings.ProcessEmulateOnConnect {
		if err := e.emulateProcesses(); err != nil {
			log.Warnf("unable to emulate processes on connect: %v", err)
		}
	}
	if e.settings.DriverSnapshotEmulateOnConnect {
		e.emulateDriverDevices()
	}
	return nil
}

func (e *Emulator) disconnect(sid uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner != sid {
		return kerrors.ErrNotConnected
	}
	e.owner = 0
	e.counter = nil
	e.epoch++
	if e.settings.ReqQueueClearOnDisconnect {
		e.clearQueue()
	}
	e.cond.Broadcast()
	log.Debugf("session %d disconnected from the event queue", sid)
	return nil
}

func (e *Emulator) clear(sid uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner != sid {
		return kerrors.ErrNotConnected
	}
	e.clearQueue()
	return nil
}

// getRequest blocks until the record is queued or the session is
// disconnected. The oldest record is returned only if it fits into size
// bytes, otherwise it stays at the queue head.
func (e *Emulator) getRequest(sid uint64, size int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner != sid {
		return nil, kerrors.ErrNotConnected
	}
	epoch := e.epoch
	for {
		if e.owner != sid || e.epoch != epoch {
			return nil, kerrors.ErrNotConnected
		}
		if len(e.queue) > 0 {
			rec := e.queue[0]
			if len(rec) > size {
				return nil, errors.Wrapf(kerrors.ErrInsufficientBuffer, "record requires %d bytes, buffer has %d", len(rec), size)
			}
			e.queue[0] = nil
			e.queue = e.queue[1:]
			return rec, nil
		}
		e.cond.Wait()
	}
}
