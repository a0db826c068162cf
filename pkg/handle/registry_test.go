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
	"math"
	"testing"

	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertLookup(t *testing.T) {
	r := NewRegistry()
	drv := r.Insert(Driver, 10, 0)
	dev := r.Insert(Device, 11, 10)
	require.NotEqual(t, Handle(0), drv)
	require.NotEqual(t, drv, dev)

	e, err := r.Lookup(drv, Driver)
	require.NoError(t, err)
	assert.Equal(t, Entry{Kind: Driver, ObjectID: 10}, e)

	e, err = r.Lookup(dev, Device)
	require.NoError(t, err)
	assert.Equal(t, Entry{Kind: Device, ObjectID: 11, Parent: 10}, e)

	// kind mismatch
	_, err = r.Lookup(drv, Device)
	assert.ErrorIs(t, err, kerrors.ErrInvalidHandle)
	_, err = r.Lookup(0, Driver)
	assert.ErrorIs(t, err, kerrors.ErrInvalidHandle)
	assert.Equal(t, 2, r.Len())
}

func TestCloseTwice(t *testing.T) {
	r := NewRegistry()
	h := r.Insert(Driver, 1, 0)
	require.NoError(t, r.Close(h))
	assert.ErrorIs(t, r.Close(h), kerrors.ErrInvalidHandle)
	_, err := r.Lookup(h, Driver)
	assert.ErrorIs(t, err, kerrors.ErrInvalidHandle)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	r := NewRegistry()
	h1 := r.Insert(Driver, 1, 0)
	require.NoError(t, r.Close(h1))
	h2 := r.Insert(Driver, 2, 0)
	assert.Equal(t, h1.slot(), h2.slot())
	assert.NotEqual(t, h1, h2)

	_, err := r.Lookup(h1, Driver)
	assert.ErrorIs(t, err, kerrors.ErrInvalidHandle)
	e, err := r.Lookup(h2, Driver)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), uint64(e.ObjectID))
}

func TestSlotRetiredWhenGenerationExhausted(t *testing.T) {
	r := NewRegistry()
	stale := r.Insert(Driver, 1, 0)
	require.NoError(t, r.Close(stale))

	for i := 0; i < math.MaxUint16+10; i++ {
		h := r.Insert(Driver, 2, 0)
		if h == stale {
			t.Fatalf("stale handle %v issued again after %d cycles", stale, i)
		}
		require.NoError(t, r.Close(h))
	}
	_, err := r.Lookup(stale, Driver)
	assert.ErrorIs(t, err, kerrors.ErrInvalidHandle)
	assert.Equal(t, 0, r.Len())

	h := r.Insert(Driver, 3, 0)
	assert.NotEqual(t, stale.slot(), h.slot())
	assert.Equal(t, 1, r.Len())
}

func TestForeignHandle(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()
	h := r1.Insert(Driver, 1, 0)
	r2.Insert(Driver, 1, 0)
	_, err := r2.Lookup(h, Driver)
	assert.ErrorIs(t, err, kerrors.ErrInvalidHandle)
	assert.ErrorIs(t, r2.Close(h), kerrors.ErrInvalidHandle)
}

func TestReleaseObjectCascade(t *testing.T) {
	r := NewRegistry()
	drv := r.Insert(Driver, 100, 0)
	drv2 := r.Insert(Driver, 100, 0)
	dev1 := r.Insert(Device, 101, 100)
	dev2 := r.Insert(Device, 102, 100)
	other := r.Insert(Driver, 200, 0)
	otherDev := r.Insert(Device, 201, 200)

	assert.Equal(t, 4, r.ReleaseObject(100))
	for _, h := range []Handle{drv, drv2, dev1, dev2} {
		assert.ErrorIs(t, r.Close(h), kerrors.ErrInvalidHandle)
	}
	_, err := r.Lookup(other, Driver)
	require.NoError(t, err)
	_, err = r.Lookup(otherDev, Device)
	require.NoError(t, err)

	// releasing a single device leaves the driver alone
	assert.Equal(t, 1, r.ReleaseObject(201))
	_, err = r.Lookup(other, Driver)
	require.NoError(t, err)
}

func TestCloseKind(t *testing.T) {
	r := NewRegistry()
	h := r.Insert(Device, 5, 4)
	assert.ErrorIs(t, r.CloseKind(h, Driver), kerrors.ErrInvalidHandle)
	require.NoError(t, r.CloseKind(h, Device))
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	hs := []Handle{r.Insert(Driver, 1, 0), r.Insert(Device, 2, 1), r.Insert(Driver, 3, 0)}
	r.Reset()
	assert.Equal(t, 0, r.Len())
	for _, h := range hs {
		assert.ErrorIs(t, r.Close(h), kerrors.ErrInvalidHandle)
	}
}
