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
	"expvar"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	log "github.com/sirupsen/logrus"
)

var (
	requestsQueued   = expvar.NewInt("emulator.requests.queued")
	requestsDropped  = expvar.NewInt("emulator.requests.dropped")
	requestsStripped = expvar.NewInt("emulator.requests.stripped")
)

const (
	// fileNameCacheSize is the maximum number of file object names the emulator remembers
	fileNameCacheSize = 8192
	// baseAddress is the first address handed out to the emulated kernel objects
	baseAddress uint64 = 0xffffa00000001000
)

// Options tweak the emulator behaviour.
type Options struct {
	// Settings are the initial global settings. They are overridden by the persisted settings, if any.
	Settings monitor.Settings
	// SettingsFile is the path where the persistent settings are stored.
	SettingsFile string
	// Processes enumerates running processes for process emulation. The live system is used by default.
	Processes ProcessSource
	// Compression is the algorithm used to compress queued records.
	Compression request.Algorithm
	// CompressThreshold is the minimum record size eligible for compression.
	CompressThreshold int
}

// Emulator is the in-process stand-in for the kernel-mode monitor. It
// keeps the inventory of emulated driver and device objects, the hook
// table, the watch registrations and the event queue. All state is
// guarded by a single mutex, so the hook table mutations are serialized
// exactly like in the kernel component. Clients attach to the emulator
// through sessions.
type Emulator struct {
	mu   sync.Mutex
	cond *sync.Cond

	opts     Options
	settings monitor.Settings

	drivers       map[string]*driverObject
	driversByAddr map[uint64]*driverObject
	devices       map[uint64]*deviceObject
	devicesByName map[string]*deviceObject

	hooks       map[monitor.ObjectID]*driverHook
	hookByAddr  map[uint64]*driverHook
	devHooks    map[monitor.ObjectID]*deviceHook
	devHookAddr map[uint64]*deviceHook

	classWatches []classWatch
	nameWatches  map[string]nameWatch

	queue   [][]byte
	owner   uint64
	counter monitor.Counter
	epoch   uint64

	fileNames *lru.Cache

	nextObjectID uint64
	nextAddress  uint64
	nextSession  uint64
	nextReqID    uint64
	lastTS       int64
}

// New creates the emulator with an empty object inventory.
func New(opts Options) (*Emulator, error) {
	if opts.Settings == (monitor.Settings{}) {
		opts.Settings = monitor.DefaultSettings()
	}
	if opts.Processes == nil {
		opts.Processes = SystemProcesses{}
	}
	e := &Emulator{
		opts:          opts,
		settings:      opts.Settings,
		drivers:       make(map[string]*driverObject),
		driversByAddr: make(map[uint64]*driverObject),
		devices:       make(map[uint64]*deviceObject),
		devicesByName: make(map[string]*deviceObject),
		hooks:         make(map[monitor.ObjectID]*driverHook),
		hookByAddr:    make(map[uint64]*driverHook),
		devHooks:      make(map[monitor.ObjectID]*deviceHook),
		devHookAddr:   make(map[uint64]*deviceHook),
		nameWatches:   make(map[string]nameWatch),
		fileNames:     lru.New(fileNameCacheSize),
		nextAddress:   baseAddress,
	}
	e.cond = sync.NewCond(&e.mu)
	if opts.SettingsFile != "" {
		settings, ok, err := loadSettings(opts.SettingsFile)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Infof("loaded persisted monitor settings from %s", opts.SettingsFile)
			e.settings = settings
		}
	}
	return e, nil
}

// Session opens a new client session. Every session acts as a separate
// client process: the event queue can be owned by one session at most.
func (e *Emulator) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSession++
	return &Session{e: e, id: e.nextSession}
}

// Queued returns the number of records waiting in the event queue.
func (e *Emulator) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Emulator) objectID() monitor.ObjectID {
	e.nextObjectID++
	return monitor.ObjectID(e.nextObjectID)
}

func (e *Emulator) address() uint64 {
	addr := e.nextAddress
	e.nextAddress += 0x1000
	return addr
}

// timestamp returns strictly increasing timestamps so the queue order
// always agrees with the record time.
func (e *Emulator) timestamp() int64 {
	ts := time.Now().UnixNano()
	if ts <= e.lastTS {
		ts = e.lastTS + 1
	}
	e.lastTS = ts
	return ts
}
