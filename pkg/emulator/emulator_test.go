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
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diskClass = "4d36e967-e325-11ce-bfc1-08002be10318"

type counter struct{ n int64 }

func (c *counter) Add(n int) { atomic.AddInt64(&c.n, int64(n)) }
func (c *counter) get() int  { return int(atomic.LoadInt64(&c.n)) }

func newEmulator(t *testing.T, opts Options) *Emulator {
	t.Helper()
	if opts.Processes == nil {
		opts.Processes = StaticProcesses{{PID: 4, Exe: "System"}, {PID: 568, PPID: 4, Exe: "smss.exe", Cmdline: "smss.exe"}}
	}
	e, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, e.LoadInventory(filepath.Join("_fixtures", "inventory.yml")))
	return e
}

func next(t *testing.T, s *Session) *request.Request {
	t.Helper()
	b, err := s.GetRequest(request.MaxSize)
	require.NoError(t, err)
	req, err := request.Decode(b)
	require.NoError(t, err)
	return req
}

func TestLoadInventory(t *testing.T) {
	e := newEmulator(t, Options{})
	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, `\Driver\DiskDriver1`, snap[0].Name)
	assert.Len(t, snap[0].Devices, 2)
	assert.Equal(t, diskClass, snap[0].Devices[0].ClassGUID)
	assert.Equal(t, uint64(0xffffb00000010000), snap[1].Address)
	assert.Equal(t, uint64(0xffffb00000020000), snap[1].Devices[0].Address)

	_, err := e.LoadDriver(monitor.DriverInfo{Name: `\driver\tcpip`})
	assert.ErrorIs(t, err, kerrors.ErrAlreadyExists)
	assert.Error(t, e.LoadInventoryBytes([]byte("drivers: [")))
}

func TestCaptureRules(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()

	irp := IRPEvent{Target: Target{DeviceName: `\Device\Harddisk0\DR0`}, Major: request.MajorRead}

	// not hooked
	ok, err := e.DispatchIRP(irp)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := s.HookDriver(`\Driver\DiskDriver1`, monitor.DefaultDriverSettings(), false)
	require.NoError(t, err)
	// hooked, but inactive
	ok, _ = e.DispatchIRP(irp)
	assert.False(t, ok)

	require.NoError(t, s.StartDriverMonitoring(id))
	ok, _ = e.DispatchIRP(irp)
	assert.True(t, ok)

	// major function filtered out
	settings := monitor.DefaultDriverSettings()
	settings.IRPSettings = settings.IRPSettings.Without(request.MajorRead)
	require.NoError(t, s.StopDriverMonitoring(id))
	require.NoError(t, s.SetDriverInfo(id, settings))
	require.NoError(t, s.StartDriverMonitoring(id))
	ok, _ = e.DispatchIRP(irp)
	assert.False(t, ok)

	// the device hook takes over the driver settings, but starts inactive
	dev, err := s.HookDeviceByName(`\Device\Harddisk0\DR0`)
	require.NoError(t, err)
	assert.False(t, dev.MonitoringActive)
	assert.Equal(t, settings.IRPSettings, dev.IRPSettings)
	ok, _ = e.DispatchIRP(irp)
	assert.False(t, ok)
	require.NoError(t, s.SetDeviceInfo(dev.ObjectID, monitor.AllIRP, monitor.AllFastIO, true))
	ok, _ = e.DispatchIRP(irp)
	assert.True(t, ok)

	ok, err = e.DispatchFastIo(FastIoEvent{Target: Target{DeviceAddress: dev.DeviceAddress}, FastIoType: request.FastIoRead})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.DispatchIRP(IRPEvent{Target: Target{DeviceName: `\Device\Nope`}})
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
}

func TestNewDevicesMonitoring(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	id, err := s.HookDriver(`\Driver\Tcpip`, monitor.DefaultDriverSettings(), false)
	require.NoError(t, err)
	require.NoError(t, s.StartDriverMonitoring(id))

	_, err = e.CreateDevice(`\Driver\Tcpip`, monitor.DeviceInfo{Name: `\Device\Udp`})
	require.NoError(t, err)
	assert.Equal(t, request.TypeAddDevice, next(t, s).Type)

	ok, _ := e.DispatchIRP(IRPEvent{Target: Target{DeviceName: `\Device\Udp`}})
	assert.False(t, ok, "devices created after the hook are not monitored")

	settings := monitor.DefaultDriverSettings()
	settings.MonitorNewDevices = true
	require.NoError(t, s.SetDriverInfo(id, settings))
	_, err = e.CreateDevice(`\Driver\Tcpip`, monitor.DeviceInfo{Name: `\Device\RawIp`})
	require.NoError(t, err)
	ok, _ = e.DispatchIRP(IRPEvent{Target: Target{DeviceName: `\Device\RawIp`}})
	assert.True(t, ok)
}

func TestQueueBacklogAndFIFO(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()

	e.AssignFileName(0x10, `\Windows\System32\ntdll.dll`)
	e.AssignFileName(0x20, `\Windows\System32\kernel32.dll`)
	assert.Equal(t, 2, e.Queued())

	c := &counter{}
	require.NoError(t, s.Connect(c))
	assert.Equal(t, 2, c.get())

	e.ExitProcess(1234)
	assert.Equal(t, 3, c.get())

	first, second, third := next(t, s), next(t, s), next(t, s)
	assert.Equal(t, request.TypeFileNameAssigned, first.Type)
	assert.Equal(t, uint64(0x10), first.Payload.(*request.FileNameAssigned).FileObject)
	assert.Equal(t, uint64(0x20), second.Payload.(*request.FileNameAssigned).FileObject)
	assert.Equal(t, request.TypeProcessExitted, third.Type)
	assert.Less(t, first.Timestamp, second.Timestamp)
	assert.Less(t, first.ID, second.ID)
}

func TestQueueExclusivity(t *testing.T) {
	e := newEmulator(t, Options{})
	s1, s2 := e.Session(), e.Session()
	defer s1.Close()
	defer s2.Close()

	require.NoError(t, s1.Connect(nil))
	assert.ErrorIs(t, s2.Connect(nil), kerrors.ErrAlreadyConnected)
	assert.ErrorIs(t, s1.Connect(nil), kerrors.ErrAlreadyConnected)
	assert.ErrorIs(t, s2.Disconnect(), kerrors.ErrNotConnected)
	assert.ErrorIs(t, s2.ClearQueue(), kerrors.ErrNotConnected)

	e.ExitProcess(1)
	assert.Equal(t, request.TypeProcessExitted, next(t, s1).Type)

	// closing the session releases the queue
	require.NoError(t, s1.Close())
	require.NoError(t, s2.Connect(nil))
	_, err := s1.GetRequest(request.MaxSize)
	assert.ErrorIs(t, err, kerrors.ErrMonitorUnavailable)
}

func TestInsufficientBuffer(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	e.AssignFileName(0x10, `\Windows\notepad.exe`)
	_, err := s.GetRequest(request.HeaderSize)
	require.ErrorIs(t, err, kerrors.ErrInsufficientBuffer)
	assert.Equal(t, 1, e.Queued())

	req := next(t, s)
	assert.Equal(t, `\Windows\notepad.exe`, req.Payload.(*request.FileNameAssigned).FileName)
	assert.Equal(t, 0, e.Queued())
}

func TestDisconnectUnblocksGetRequest(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	errs := make(chan error, 1)
	go func() {
		_, err := s.GetRequest(request.MaxSize)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Disconnect())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, kerrors.ErrNotConnected)
	case <-time.After(5 * time.Second):
		t.Fatal("GetRequest is still blocked after disconnect")
	}
}

func TestCounterAheadOfClearedQueue(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()
	c := &counter{}
	require.NoError(t, s.Connect(c))

	e.ExitProcess(10)
	e.ExitProcess(20)
	require.NoError(t, s.ClearQueue())
	assert.Equal(t, 0, e.Queued())
	// cleared records stay counted
	assert.Equal(t, 2, c.get())

	e.ExitProcess(30)
	assert.Equal(t, 3, c.get())
	req := next(t, s)
	assert.Equal(t, uint32(30), req.Payload.(*request.ProcessExitted).ProcessID)
}

func TestQueueSettings(t *testing.T) {
	settings := monitor.DefaultSettings()
	settings.ReqQueueMaxSize = 2
	settings.ReqQueueCollectWhenDisconnected = false
	settings.ReqQueueClearOnDisconnect = true
	e := newEmulator(t, Options{Settings: settings})
	s := e.Session()
	defer s.Close()

	assert.False(t, e.ExitProcess(1))
	assert.Equal(t, 0, e.Queued())

	require.NoError(t, s.Connect(nil))
	for pid := uint32(1); pid <= 3; pid++ {
		e.ExitProcess(pid)
	}
	assert.Equal(t, 2, e.Queued())
	assert.Equal(t, uint32(2), next(t, s).Payload.(*request.ProcessExitted).ProcessID)

	require.NoError(t, s.Disconnect())
	assert.Equal(t, 0, e.Queued())

	require.NoError(t, s.Connect(nil))
	e.ExitProcess(10)
	require.NoError(t, s.ClearQueue())
	assert.Equal(t, 0, e.Queued())
}

func TestDataStripping(t *testing.T) {
	settings := monitor.DefaultSettings()
	settings.StripData = true
	settings.DataStripThreshold = 16
	e := newEmulator(t, Options{Settings: settings})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	id, err := s.HookDriver(`\Driver\DiskDriver1`, monitor.DefaultDriverSettings(), false)
	require.NoError(t, err)
	require.NoError(t, s.StartDriverMonitoring(id))

	target := Target{DeviceName: `\Device\Harddisk1\DR1`}
	_, err = e.DispatchIRP(IRPEvent{Target: target, Major: request.MajorWrite, Data: make([]byte, 64)})
	require.NoError(t, err)
	_, err = e.DispatchIRP(IRPEvent{Target: target, Major: request.MajorWrite, Data: []byte("small")})
	require.NoError(t, err)

	stripped := next(t, s)
	assert.NotZero(t, stripped.Flags&request.DataStripped)
	assert.Nil(t, stripped.Payload.(*request.IRP).Data)
	kept := next(t, s)
	assert.Zero(t, kept.Flags&request.DataStripped)
	assert.Equal(t, []byte("small"), kept.Payload.(*request.IRP).Data)
}

func TestCompressedQueue(t *testing.T) {
	e := newEmulator(t, Options{Compression: request.LZ4, CompressThreshold: 256})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	id, err := s.HookDriver(`\Driver\DiskDriver1`, monitor.DefaultDriverSettings(), false)
	require.NoError(t, err)
	require.NoError(t, s.StartDriverMonitoring(id))
	data := make([]byte, 4096)
	_, err = e.DispatchIRP(IRPEvent{Target: Target{DeviceName: `\Device\Harddisk0\DR0`}, Major: request.MajorRead, Data: data})
	require.NoError(t, err)

	b, err := s.GetRequest(request.MaxSize)
	require.NoError(t, err)
	h, err := request.ReadHeader(b)
	require.NoError(t, err)
	assert.True(t, h.Flags.IsCompressed())
	assert.Less(t, len(b), len(data))

	req, err := request.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, data, req.Payload.(*request.IRP).Data)
}

func TestFileNameDeleted(t *testing.T) {
	e := newEmulator(t, Options{})
	assert.False(t, e.DeleteFileName(0x99))
	e.AssignFileName(0x99, `\Temp\x.tmp`)
	assert.True(t, e.DeleteFileName(0x99))
	assert.False(t, e.DeleteFileName(0x99))
	assert.Equal(t, 2, e.Queued())
}

func TestDriverNameWatch(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	require.NoError(t, s.RegisterDriverNameWatch(monitor.DriverNameWatch{DriverName: `\Driver\NewFilter`, Settings: monitor.DefaultDriverSettings()}))
	err := s.RegisterDriverNameWatch(monitor.DriverNameWatch{DriverName: `\driver\newfilter`})
	assert.ErrorIs(t, err, kerrors.ErrAlreadyExists)

	drv, err := e.LoadDriver(monitor.DriverInfo{Name: `\Driver\NewFilter`, Devices: []monitor.DeviceInfo{{Name: `\Device\NewFilter0`}}})
	require.NoError(t, err)

	req := next(t, s)
	assert.Equal(t, request.TypeDriverDetected, req.Type)
	assert.Equal(t, drv.Address, req.DriverObject)
	assert.Equal(t, `\Driver\NewFilter`, req.Payload.(*request.DriverDetected).DriverName)
	assert.False(t, req.Flags.IsEmulated())

	hooks := e.EnumerateHooks()
	require.Len(t, hooks, 1)
	assert.True(t, hooks[0].MonitoringActive)

	require.NoError(t, s.UnregisterDriverNameWatch(`\DRIVER\NewFilter`))
	assert.ErrorIs(t, s.UnregisterDriverNameWatch(`\Driver\NewFilter`), kerrors.ErrNotFound)
}

func TestClassWatch(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	require.NoError(t, s.Connect(nil))

	w := monitor.ClassWatch{ClassGUID: "{4D36E967-E325-11CE-BFC1-08002BE10318}", UpperFilter: true}
	require.NoError(t, s.RegisterClassWatch(w))
	assert.ErrorIs(t, s.RegisterClassWatch(w), kerrors.ErrAlreadyExists)
	require.NoError(t, s.RegisterClassWatch(monitor.ClassWatch{ClassGUID: diskClass}))
	assert.ErrorIs(t, s.RegisterClassWatch(monitor.ClassWatch{ClassGUID: "bogus"}), kerrors.ErrMalformed)

	dev, err := e.CreateDevice(`\Driver\DiskDriver1`, monitor.DeviceInfo{Name: `\Device\Harddisk2\DR2`, ClassGUID: diskClass})
	require.NoError(t, err)
	req := next(t, s)
	assert.Equal(t, request.TypeDeviceDetected, req.Type)
	assert.Equal(t, dev.Address, req.DeviceObject)

	watches, err := s.ClassWatches()
	require.NoError(t, err)
	assert.Len(t, watches, 2)

	// the watches go away with the session
	require.NoError(t, s.Close())
	assert.Empty(t, e.enumClassWatches())
}

func TestDriverSnapshotEventsSetting(t *testing.T) {
	settings := monitor.DefaultSettings()
	settings.DriverSnapshotEventsCollect = false
	e := newEmulator(t, Options{Settings: settings})
	s := e.Session()
	defer s.Close()
	require.NoError(t, s.Connect(nil))

	require.NoError(t, s.RegisterDriverNameWatch(monitor.DriverNameWatch{DriverName: `\Driver\NewFilter`, Settings: monitor.DefaultDriverSettings()}))
	require.NoError(t, s.RegisterClassWatch(monitor.ClassWatch{ClassGUID: diskClass}))

	_, err := e.LoadDriver(monitor.DriverInfo{Name: `\Driver\NewFilter`, Devices: []monitor.DeviceInfo{{Name: `\Device\NewFilter0`, ClassGUID: diskClass}}})
	require.NoError(t, err)
	_, err = e.CreateDevice(`\Driver\DiskDriver1`, monitor.DeviceInfo{Name: `\Device\Harddisk2\DR2`, ClassGUID: diskClass})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Queued())

	// the watch still hooks the driver
	hooks := e.EnumerateHooks()
	require.Len(t, hooks, 1)
	assert.True(t, hooks[0].MonitoringActive)

	// explicitly requested records are queued regardless
	require.NoError(t, s.EmulateDriverDevices())
	require.NotZero(t, e.Queued())
	assert.True(t, next(t, s).Flags.IsEmulated())
}

func TestEmulation(t *testing.T) {
	settings := monitor.DefaultSettings()
	settings.ProcessEmulateOnConnect = true
	e := newEmulator(t, Options{Settings: settings})
	s := e.Session()
	defer s.Close()

	c := &counter{}
	require.NoError(t, s.Connect(c))
	assert.Equal(t, 2, c.get())
	proc := next(t, s)
	assert.True(t, proc.Flags.IsEmulated())
	assert.Equal(t, "System", proc.Payload.(*request.ProcessCreated).ImageName)
	next(t, s)

	require.NoError(t, s.EmulateDriverDevices())
	// two drivers with three devices in total
	assert.Equal(t, 5, e.Queued())
	req := next(t, s)
	assert.Equal(t, request.TypeDriverDetected, req.Type)
	assert.True(t, req.Flags.IsEmulated())
}

func TestUnloadDriverReleasesHooks(t *testing.T) {
	e := newEmulator(t, Options{})
	s := e.Session()
	defer s.Close()

	id, err := s.HookDriver(`\Driver\Tcpip`, monitor.DefaultDriverSettings(), false)
	require.NoError(t, err)
	dev, err := s.HookDeviceByAddress(0xffffb00000020000)
	require.NoError(t, err)
	assert.Equal(t, id, dev.DriverID)

	require.NoError(t, e.UnloadDriver(`\Driver\Tcpip`))
	_, err = s.DriverInfo(id)
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
	_, err = s.DeviceInfo(dev.ObjectID)
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
	_, err = s.HookDriver(`\Driver\Tcpip`, monitor.DefaultDriverSettings(), false)
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
}

func TestPersistSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	e := newEmulator(t, Options{SettingsFile: path})

	settings := e.QuerySettings()
	settings.ReqQueueMaxSize = 77
	settings.StripData = true
	require.NoError(t, e.SetSettings(settings, false))
	assert.NoFileExists(t, path)

	require.NoError(t, e.SetSettings(settings, true))
	assert.FileExists(t, path)

	e2, err := New(Options{SettingsFile: path, Processes: StaticProcesses{}})
	require.NoError(t, err)
	assert.Equal(t, settings, e2.QuerySettings())
}
