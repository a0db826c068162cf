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
	"path/filepath"
	"testing"
	"time"

	"github.com/rabbitstack/irpmon/pkg/emulator"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/queue"
	"github.com/rabbitstack/irpmon/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmulator(t *testing.T, opts emulator.Options) *emulator.Emulator {
	t.Helper()
	if opts.Processes == nil {
		opts.Processes = emulator.StaticProcesses{{PID: 4, Exe: "System"}}
	}
	e, err := emulator.New(opts)
	require.NoError(t, err)
	_, err = e.LoadDriver(monitor.DriverInfo{
		Name:    `\Driver\DiskDriver1`,
		Devices: []monitor.DeviceInfo{{Name: `\Device\Disk1`}, {Name: `\Device\Disk2`}},
	})
	require.NoError(t, err)
	return e
}

func TestLifecycle(t *testing.T) {
	c := New()
	assert.False(t, c.IsInitialized())
	assert.ErrorIs(t, c.Finalize(), kerrors.ErrNotInitialized)

	_, _, err := c.Hooks().HookDriver(`\Driver\DiskDriver1`, monitor.DefaultDriverSettings(), false)
	assert.ErrorIs(t, err, kerrors.ErrNotInitialized)
	_, err = c.QuerySettings()
	assert.ErrorIs(t, err, kerrors.ErrNotInitialized)
	assert.ErrorIs(t, c.Queue().Connect(nil), kerrors.ErrNotInitialized)
	_, err = c.Watches().EnumClassWatches()
	assert.ErrorIs(t, err, kerrors.ErrNotInitialized)

	e := newEmulator(t, emulator.Options{})
	require.NoError(t, c.Initialize(InitInfo{Emulator: e}))
	assert.True(t, c.IsInitialized())
	assert.ErrorIs(t, c.Initialize(InitInfo{Emulator: e}), kerrors.ErrAlreadyInitialized)

	require.NoError(t, c.Finalize())
	assert.False(t, c.IsInitialized())
	_, err = c.Hooks().RetrieveSnapshot()
	assert.ErrorIs(t, err, kerrors.ErrNotInitialized)
}

func TestNoMonitorSource(t *testing.T) {
	c := New()
	err := c.Initialize(InitInfo{})
	require.Error(t, err)
	assert.True(t, kerrors.IsMonitorUnavailable(err))
	assert.False(t, c.IsInitialized())
}

func TestFinalizeInvalidatesHandles(t *testing.T) {
	e := newEmulator(t, emulator.Options{})
	c := New()
	require.NoError(t, c.Initialize(InitInfo{Emulator: e}))

	h, _, err := c.Hooks().HookDriver(`\Driver\DiskDriver1`, monitor.DefaultDriverSettings(), false)
	require.NoError(t, err)
	require.NoError(t, c.Hooks().StartMonitoring(h))

	require.NoError(t, c.Finalize())
	require.NoError(t, c.Initialize(InitInfo{Emulator: e}))
	defer c.Finalize()

	assert.ErrorIs(t, c.Hooks().StopMonitoring(h), kerrors.ErrInvalidHandle)

	// the hook itself survives in the monitor
	table, err := c.Hooks().EnumerateHooks()
	require.NoError(t, err)
	require.Len(t, table.Drivers, 1)
	assert.True(t, table.Drivers[0].MonitoringActive)
	require.NoError(t, table.Release())
}

func TestFinalizeReleasesQueue(t *testing.T) {
	e := newEmulator(t, emulator.Options{})
	c := New()
	require.NoError(t, c.Initialize(InitInfo{Emulator: e}))
	require.NoError(t, c.Queue().Connect(queue.NewSemaphore()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.Queue().GetRequest(queue.MaxRequestSize)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.Finalize())
	select {
	case err := <-errs:
		assert.True(t, kerrors.IsNotConnected(err))
	case <-time.After(5 * time.Second):
		t.Fatal("GetRequest is still blocked")
	}
	assert.False(t, c.Queue().IsConnected())

	other := New()
	require.NoError(t, other.Initialize(InitInfo{Emulator: e}))
	defer other.Finalize()
	require.NoError(t, other.Queue().Connect(nil))
}

func TestDefaultDrivers(t *testing.T) {
	e := newEmulator(t, emulator.Options{})
	settings := monitor.DriverSettings{IRPSettings: monitor.AllIRP, MonitorData: true}

	c := New()
	require.NoError(t, c.Initialize(InitInfo{
		Emulator:       e,
		Drivers:        []string{`\Driver\DiskDriver1`, `\Driver\Missing`},
		DriverSettings: settings,
	}))
	defer c.Finalize()
	hooks := c.DefaultHooks()
	require.Len(t, hooks, 1)

	drv, err := c.Hooks().GetDriverInfo(hooks[0])
	require.NoError(t, err)
	assert.Equal(t, settings, drv.Settings)

	// the second client opens the existing hook
	other := New()
	require.NoError(t, other.Initialize(InitInfo{Emulator: e, Drivers: []string{`\driver\diskdriver1`}, DriverSettings: settings}))
	defer other.Finalize()
	require.Len(t, other.DefaultHooks(), 1)
	same, err := other.Hooks().GetDriverInfo(other.DefaultHooks()[0])
	require.NoError(t, err)
	assert.Equal(t, drv.ObjectID, same.ObjectID)
}

func TestPersistSettings(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.yml")
	c := New()
	require.NoError(t, c.Initialize(InitInfo{Emulator: newEmulator(t, emulator.Options{SettingsFile: file})}))

	settings, err := c.QuerySettings()
	require.NoError(t, err)
	settings.ReqQueueMaxSize = 128
	settings.StripData = true
	require.NoError(t, c.SetSettings(settings, true))
	require.NoError(t, c.Finalize())

	// the fresh monitor picks up the persisted settings
	require.NoError(t, c.Initialize(InitInfo{Emulator: newEmulator(t, emulator.Options{SettingsFile: file})}))
	defer c.Finalize()
	got, err := c.QuerySettings()
	require.NoError(t, err)
	assert.Equal(t, settings, got)
}

func TestInitializeRemote(t *testing.T) {
	e := newEmulator(t, emulator.Options{})
	ln, err := remote.Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	srv := remote.NewServer(func() (monitor.Monitor, error) { return e.Session(), nil })
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	c := New()
	require.NoError(t, c.Initialize(InitInfo{
		Endpoint:       "tcp://" + ln.Addr().String(),
		ConnectTimeout: 5 * time.Second,
		Drivers:        []string{`\Driver\DiskDriver1`},
		DriverSettings: monitor.DefaultDriverSettings(),
	}))
	require.Len(t, c.DefaultHooks(), 1)

	snap, err := c.Hooks().RetrieveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Devices())
	require.NoError(t, snap.Release())
	require.NoError(t, c.Finalize())
}

func TestInitializeUnreachableEndpoint(t *testing.T) {
	c := New()
	err := c.Initialize(InitInfo{Endpoint: "tcp://127.0.0.1:1", ConnectTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, kerrors.IsMonitorUnavailable(err))
	assert.False(t, c.IsInitialized())
}

func TestFinalizeClosesMonitor(t *testing.T) {
	mon := new(monitor.MonitorMock)
	mon.On("Close").Return(nil)

	c := New()
	require.NoError(t, c.Initialize(InitInfo{Monitor: mon}))
	require.NoError(t, c.Finalize())
	mon.AssertCalled(t, "Close")
	mon.AssertNotCalled(t, "Disconnect")
}
