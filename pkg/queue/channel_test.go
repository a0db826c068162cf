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
	"sync"
	"testing"
	"time"

	"github.com/rabbitstack/irpmon/pkg/emulator"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmulator(t *testing.T) *emulator.Emulator {
	e, err := emulator.New(emulator.Options{Processes: emulator.StaticProcesses{}})
	require.NoError(t, err)
	return e
}

func TestConnectTwice(t *testing.T) {
	e := newEmulator(t)
	c := NewChannel(e.Session())
	assert.Equal(t, Disconnected, c.State())
	require.NoError(t, c.Connect(nil))
	assert.True(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(nil), kerrors.ErrAlreadyConnected)

	// the first connection remains usable
	e.ExitProcess(42)
	req, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), req.Payload.(*request.ProcessExitted).ProcessID)

	// another process can't connect either
	other := NewChannel(e.Session())
	assert.ErrorIs(t, other.Connect(nil), kerrors.ErrAlreadyConnected)
	assert.Equal(t, Disconnected, other.State())

	require.NoError(t, c.Disconnect())
	assert.ErrorIs(t, c.Disconnect(), kerrors.ErrNotConnected)
	require.NoError(t, other.Connect(nil))
}

func TestOperationsWithoutConnection(t *testing.T) {
	c := NewChannel(newEmulator(t).Session())
	assert.ErrorIs(t, c.ClearQueue(), kerrors.ErrNotConnected)
	_, err := c.GetRequest(MaxRequestSize)
	assert.ErrorIs(t, err, kerrors.ErrNotConnected)
	require.NoError(t, c.Close())
}

func TestGetRequestInsufficientBuffer(t *testing.T) {
	e := newEmulator(t)
	c := NewChannel(e.Session())
	require.NoError(t, c.Connect(nil))
	e.AssignFileName(0xfa, `\Users\admin\ntuser.dat`)

	_, err := c.GetRequest(request.HeaderSize + 4)
	require.True(t, kerrors.IsInsufficientBuffer(err))

	buf, err := c.GetRequest(MaxRequestSize)
	require.NoError(t, err)
	defer buf.Free()
	req, err := buf.Decode()
	require.NoError(t, err)
	assert.Equal(t, `\Users\admin\ntuser.dat`, req.Payload.(*request.FileNameAssigned).FileName)
}

func TestSemaphoreCounter(t *testing.T) {
	e := newEmulator(t)
	e.ExitProcess(1)
	e.ExitProcess(2)

	sem := NewSemaphore()
	c := NewChannel(e.Session())
	require.NoError(t, c.Connect(sem))
	assert.Equal(t, sem, c.Counter())
	// backlog predating the connection
	assert.Equal(t, 2, sem.Count())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		require.NoError(t, sem.Wait(ctx))
		_, err := c.Next()
		require.NoError(t, err)
	}
	assert.False(t, sem.TryWait())

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sem.Wait(ctx), context.DeadlineExceeded)

	e.ExitProcess(3)
	assert.True(t, sem.TryWait())
}

func TestDisconnectCancelsGetRequest(t *testing.T) {
	c := NewChannel(newEmulator(t).Session())
	require.NoError(t, c.Connect(nil))

	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err = c.GetRequest(MaxRequestSize)
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Disconnect())
	wg.Wait()
	assert.True(t, kerrors.IsNotConnected(err))
}

func TestClearQueue(t *testing.T) {
	e := newEmulator(t)
	c := NewChannel(e.Session())
	require.NoError(t, c.Connect(NewSemaphore()))
	e.ExitProcess(1)
	require.NoError(t, c.ClearQueue())
	assert.Equal(t, 0, e.Queued())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
