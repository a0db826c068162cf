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
	"testing"

	"github.com/rabbitstack/irpmon/pkg/emulator"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/queue"
	"github.com/rabbitstack/irpmon/pkg/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyboardClass = "4D36E96B-E325-11CE-BFC1-08002BE10318"

func newRegistry(t *testing.T) (*Registry, *emulator.Emulator, *emulator.Session) {
	t.Helper()
	e, err := emulator.New(emulator.Options{Processes: emulator.StaticProcesses{
		{PID: 4, Exe: "System"},
		{PID: 880, PPID: 4, Exe: `C:\Windows\System32\csrss.exe`, Cmdline: "csrss.exe ObjectDirectory=\\Windows"},
	}})
	require.NoError(t, err)
	s := e.Session()
	t.Cleanup(func() { _ = s.Close() })
	return NewRegistry(s), e, s
}

func TestParseClassGUID(t *testing.T) {
	id, err := ParseClassGUID("{" + keyboardClass + "}")
	require.NoError(t, err)
	assert.Equal(t, "4d36e96b-e325-11ce-bfc1-08002be10318", id.String())
	_, err = ParseClassGUID("not-a-guid")
	assert.ErrorIs(t, err, kerrors.ErrMalformed)
}

func TestClassWatches(t *testing.T) {
	r, _, _ := newRegistry(t)
	require.NoError(t, r.RegisterClassWatch(keyboardClass, true, false))
	assert.ErrorIs(t, r.RegisterClassWatch("{"+keyboardClass+"}", true, false), kerrors.ErrAlreadyExists)
	require.NoError(t, r.RegisterClassWatch(keyboardClass, false, false))
	require.NoError(t, r.RegisterClassWatch(keyboardClass, true, true))
	assert.ErrorIs(t, r.RegisterClassWatch("}{", true, true), kerrors.ErrMalformed)

	watches, err := r.EnumClassWatches()
	require.NoError(t, err)
	assert.Len(t, watches.Watches, 3)
	require.NoError(t, watches.Release())
	assert.ErrorIs(t, watches.Release(), kerrors.ErrAlreadyReleased)

	require.NoError(t, r.UnregisterClassWatch(keyboardClass, false, false))
	assert.ErrorIs(t, r.UnregisterClassWatch(keyboardClass, false, false), kerrors.ErrNotFound)
}

func TestDriverNameWatches(t *testing.T) {
	r, _, _ := newRegistry(t)
	require.NoError(t, r.RegisterDriverNameWatch(`\Driver\kbdclass`, monitor.DefaultDriverSettings()))
	assert.ErrorIs(t, r.RegisterDriverNameWatch(`\Driver\KbdClass`, monitor.DefaultDriverSettings()), kerrors.ErrAlreadyExists)
	assert.ErrorIs(t, r.RegisterDriverNameWatch("", monitor.DefaultDriverSettings()), kerrors.ErrMalformed)

	watches, err := r.EnumDriverNameWatches()
	require.NoError(t, err)
	require.Len(t, watches.Watches, 1)
	assert.Equal(t, monitor.DefaultDriverSettings(), watches.Watches[0].Settings)
	require.NoError(t, watches.Release())

	require.NoError(t, r.UnregisterDriverNameWatch(`\Driver\kbdclass`))
	assert.ErrorIs(t, r.UnregisterDriverNameWatch(`\Driver\kbdclass`), kerrors.ErrNotFound)
}

func TestNewFilterScenario(t *testing.T) {
	r, e, s := newRegistry(t)
	q := queue.NewChannel(s)
	require.NoError(t, q.Connect(nil))
	defer q.Close()

	require.NoError(t, r.RegisterDriverNameWatch(`\Driver\NewFilter`, monitor.DefaultDriverSettings()))
	drv, err := e.LoadDriver(monitor.DriverInfo{Name: `\Driver\NewFilter`})
	require.NoError(t, err)

	req, err := q.Next()
	require.NoError(t, err)
	require.Equal(t, request.TypeDriverDetected, req.Type)
	assert.Equal(t, `\Driver\NewFilter`, req.Payload.(*request.DriverDetected).DriverName)
	assert.Equal(t, drv.Address, req.DriverObject)

	// hooked without calling HookDriver
	hooks, err := s.EnumerateHooks()
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, `\Driver\NewFilter`, hooks[0].DriverName)
}

func TestClassWatchDeviceDetected(t *testing.T) {
	r, e, s := newRegistry(t)
	q := queue.NewChannel(s)
	require.NoError(t, q.Connect(nil))
	defer q.Close()

	_, err := e.LoadDriver(monitor.DriverInfo{Name: `\Driver\i8042prt`})
	require.NoError(t, err)
	require.NoError(t, r.RegisterClassWatch(keyboardClass, true, false))
	dev, err := e.CreateDevice(`\Driver\i8042prt`, monitor.DeviceInfo{Name: `\Device\KeyboardPort0`, ClassGUID: keyboardClass})
	require.NoError(t, err)

	req, err := q.Next()
	require.NoError(t, err)
	require.Equal(t, request.TypeDeviceDetected, req.Type)
	assert.Equal(t, dev.Address, req.DeviceObject)
	assert.Equal(t, `\Device\KeyboardPort0`, req.Payload.(*request.DeviceDetected).DeviceName)
}

func TestBulkEmulation(t *testing.T) {
	r, e, s := newRegistry(t)
	_, err := e.LoadDriver(monitor.DriverInfo{Name: `\Driver\Beep`, Devices: []monitor.DeviceInfo{{Name: `\Device\Beep`}}})
	require.NoError(t, err)

	q := queue.NewChannel(s)
	require.NoError(t, q.Connect(nil))
	defer q.Close()

	require.NoError(t, r.EmulateProcesses())
	require.NoError(t, r.EmulateDriverDevices())

	var types []request.Type
	for i := 0; i < 4; i++ {
		req, err := q.Next()
		require.NoError(t, err)
		assert.True(t, req.Flags.IsEmulated())
		types = append(types, req.Type)
	}
	assert.Equal(t, []request.Type{request.TypeProcessCreated, request.TypeProcessCreated, request.TypeDriverDetected, request.TypeDeviceDetected}, types)
}

func TestEmulateBuilders(t *testing.T) {
	bufs := []*request.Buffer{
		EmulateDriverDetected(0xffffa000, `\Driver\Beep`),
		EmulateDeviceDetected(0xffffa000, 0xffffb000, `\Device\Beep`),
		EmulateFileNameAssigned(0x1, `\Windows\win.ini`),
		EmulateFileNameDeleted(0x1),
		EmulateProcessCreated(100, 4, "smss.exe", `\SystemRoot\System32\smss.exe`),
		EmulateProcessExitted(100),
	}
	for _, buf := range bufs {
		assert.Equal(t, buf.Len(), buf.Size())
		req, err := buf.Decode()
		require.NoError(t, err)
		assert.True(t, req.Flags.IsEmulated(), req.Type.String())
		require.NoError(t, buf.Free())
	}

	buf := EmulateDeviceDetected(0xffffa000, 0xffffb000, `\Device\Beep`)
	defer buf.Free()
	req, err := buf.Decode()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xffffa000), req.DriverObject)
	assert.Equal(t, uint64(0xffffb000), req.DeviceObject)
	assert.Equal(t, `\Device\Beep`, req.Payload.(*request.DeviceDetected).DeviceName)
}
