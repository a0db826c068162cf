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

package handle

import (
	"expvar"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
)

var (
	handleOpenCount    = expvar.NewInt("handle.open.count")
	handleCascadeCount = expvar.NewInt("handle.cascade.count")

	registryIDs uint32
)

// Kind identifies the type of the hook record the handle refers to.
type Kind uint8

const (
	// Driver designates the driver hook handle.
	Driver Kind = iota + 1
	// Device designates the device hook handle.
	Device
)

func (k Kind) String() string {
	switch k {
	case Driver:
		return "driver"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// Handle is the opaque, process-local reference to the hook record. The
// handle packs the registry tag, the slot generation and the slot index,
// so stale handles and handles minted by other registries never resolve.
// The zero value is never a valid handle.
type Handle uint64

func makeHandle(tag uint16, gen uint16, slot uint32) Handle {
	return Handle(uint64(tag)<<48 | uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) tag() uint16  { return uint16(h >> 48) }
func (h Handle) gen() uint16  { return uint16(h >> 32) }
func (h Handle) slot() uint32 { return uint32(h) - 1 }

func (h Handle) String() string { return fmt.Sprintf("%#x", uint64(h)) }

// Entry is the registry view of the hook record the handle is bound to.
type Entry struct {
	Kind     Kind
	ObjectID monitor.ObjectID
	// Parent is the object identifier of the owning driver. Zero for driver entries.
	Parent monitor.ObjectID
}

type slot struct {
	gen  uint16
	used bool
	Entry
}

// Registry maps client handles to the stable object identifiers issued by
// the monitor. Slots are recycled, but each release bumps the slot
// generation, so a released handle keeps failing with InvalidHandle even
// after the slot is reused.
type Registry struct {
	mu    sync.RWMutex
	tag   uint16
	slots []slot
	free  []uint32
	// retired counts the slots whose generations are exhausted
	retired int
}

// NewRegistry creates an empty handle registry.
func NewRegistry() *Registry {
	return &Registry{tag: uint16(atomic.AddUint32(&registryIDs, 1))}
}

// Insert binds a new handle to the object. Parent is the owning driver
// object for device entries. Multiple handles may be bound to the same
// object at once.
func (r *Registry) Insert(kind Kind, oid, parent monitor.ObjectID) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{gen: 1})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.used = true
	s.Entry = Entry{Kind: kind, ObjectID: oid, Parent: parent}
	handleOpenCount.Add(1)
	return makeHandle(r.tag, s.gen, idx)
}

func (r *Registry) resolve(h Handle) (*slot, bool) {
	if h == 0 || h.tag() != r.tag {
		return nil, false
	}
	idx := h.slot()
	if int(idx) >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[idx]
	if !s.used || s.gen != h.gen() {
		return nil, false
	}
	return s, true
}

// Lookup resolves the handle of the given kind. Unknown, stale and
// closed handles, as well as handles of another kind, fail with
// ErrInvalidHandle.
func (r *Registry) Lookup(h Handle, kind Kind) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.resolve(h)
	if !ok || s.Kind != kind {
		return Entry{}, kerrors.ErrInvalidHandle
	}
	return s.Entry, nil
}

// Close releases the handle. The hook record on the monitor side is left intact.
func (r *Registry) Close(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.resolve(h)
	if !ok {
		return kerrors.ErrInvalidHandle
	}
	r.release(h.slot(), s)
	return nil
}

// CloseKind is like Close, but also verifies the handle kind.
func (r *Registry) CloseKind(h Handle, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.resolve(h)
	if !ok || s.Kind != kind {
		return kerrors.ErrInvalidHandle
	}
	r.release(h.slot(), s)
	return nil
}

// release invalidates the slot. A slot that used up its last generation
// is retired for good, so its handles can never resolve again.
func (r *Registry) release(idx uint32, s *slot) {
	s.used = false
	s.Entry = Entry{}
	if s.gen == math.MaxUint16 {
		r.retired++
		return
	}
	s.gen++
	r.free = append(r.free, idx)
}

// ReleaseObject invalidates all handles bound to the object and all
// handles of objects it owns. It returns the number of released handles.
func (r *Registry) ReleaseObject(oid monitor.ObjectID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.slots {
		s := &r.slots[i]
		if !s.used {
			continue
		}
		if s.ObjectID == oid || (s.Parent != 0 && s.Parent == oid) {
			if s.ObjectID != oid {
				handleCascadeCount.Add(1)
			}
			r.release(uint32(i), s)
			n++
		}
	}
	return n
}

// Reset invalidates every outstanding handle.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if r.slots[i].used {
			r.release(uint32(i), &r.slots[i])
		}
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.free) - r.retired
}
