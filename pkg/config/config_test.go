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

package config

import (
	"testing"
	"time"

	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromYamlFile(t *testing.T) {
	c := NewWithOpts(WithServe())

	err := c.flags.Parse([]string{"--config-file=_fixtures/irpmon.yml"})
	require.NoError(t, err)
	require.NoError(t, c.viper.BindPFlags(c.flags))
	require.NoError(t, c.TryLoadFile(c.GetConfigFile()))

	require.NoError(t, c.Init())
	require.NoError(t, c.Validate())

	assert.Equal(t, Net, c.Monitor.Connector)
	assert.Equal(t, "tcp://127.0.0.1:4555", c.Monitor.Endpoint)
	assert.Equal(t, time.Second*3, c.Monitor.ConnectTimeout)
	assert.Equal(t, "_fixtures/inventory.yml", c.Monitor.Inventory)
	assert.Equal(t, 256, c.Monitor.CompressThreshold)
	assert.Equal(t, []string{`\Driver\DiskDriver1`}, c.Monitor.Defaults.Drivers)

	settings, err := c.Monitor.Defaults.Settings()
	require.NoError(t, err)
	assert.True(t, settings.IRPSettings.Has(request.MajorCreate))
	assert.True(t, settings.IRPSettings.Has(request.MajorRead))
	assert.True(t, settings.IRPSettings.Has(request.MajorWrite))
	assert.False(t, settings.IRPSettings.Has(request.MajorDeviceControl))
	assert.Equal(t, monitor.FastIOMask(0).With(request.FastIoRead), settings.FastIOSettings)
	assert.True(t, settings.MonitorNewDevices)
	assert.False(t, settings.MonitorData)

	assert.Equal(t, 8192, c.Queue.BufferSize)
	assert.Equal(t, request.LZ4, c.Queue.Compression)
	assert.Equal(t, "npipe:///irpmon", c.Server.Listen)

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "text", c.Log.Formatter)
	assert.Equal(t, 5, c.Log.MaxBackups)

	assert.Contains(t, c.Print(), "monitor.endpoint")
}

func TestDefaults(t *testing.T) {
	c := NewWithOpts()
	require.NoError(t, c.flags.Parse([]string{}))
	require.NoError(t, c.viper.BindPFlags(c.flags))
	require.NoError(t, c.Init())

	assert.Equal(t, Local, c.Monitor.Connector)
	assert.Equal(t, DefaultEndpoint, c.Monitor.Endpoint)
	assert.Equal(t, time.Second*10, c.Monitor.ConnectTimeout)
	assert.Equal(t, request.MaxSize, c.Queue.BufferSize)
	assert.Equal(t, request.None, c.Queue.Compression)
	assert.Empty(t, c.Server.Listen)

	settings, err := c.Monitor.Defaults.Settings()
	require.NoError(t, err)
	assert.Equal(t, monitor.AllIRP, settings.IRPSettings)
	assert.Equal(t, monitor.AllFastIO, settings.FastIOSettings)
	assert.True(t, settings.MonitorData)
}

func TestInitErrors(t *testing.T) {
	var tests = []struct {
		args []string
		err  string
	}{
		{[]string{"--monitor.connector=kernel"}, "unknown monitor connector"},
		{[]string{"--monitor.connector=net", "--monitor.endpoint="}, "required by the net connector"},
		{[]string{"--monitor.defaults.irp=create,bogus"}, "unknown IRP major function"},
		{[]string{"--monitor.defaults.fastio=FastIoNothing"}, "unknown fast I/O routine"},
		{[]string{"--queue.compression=gzip"}, "unknown compression algorithm"},
		{[]string{"--queue.buffer-size=10"}, "must be at least"},
	}

	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			c := NewWithOpts()
			require.NoError(t, c.flags.Parse(tt.args))
			require.NoError(t, c.viper.BindPFlags(c.flags))
			err := c.Init()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestValidateInvalidFile(t *testing.T) {
	c := NewWithOpts(WithValidate())
	require.NoError(t, c.flags.Parse([]string{"--config-file=_fixtures/invalid.yml"}))
	require.NoError(t, c.viper.BindPFlags(c.flags))
	require.NoError(t, c.TryLoadFile(c.GetConfigFile()))

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor.connector")
}

func TestParseIRPMask(t *testing.T) {
	mask, err := ParseIRPMask([]string{"irp_mj_create", "Pnp"})
	require.NoError(t, err)
	assert.Equal(t, monitor.IRPMask(0).With(request.MajorCreate).With(request.MajorPnp), mask)

	mask, err = ParseIRPMask(nil)
	require.NoError(t, err)
	assert.Equal(t, monitor.IRPMask(0), mask)

	mask, err = ParseIRPMask([]string{"create", "*"})
	require.NoError(t, err)
	assert.Equal(t, monitor.AllIRP, mask)
}
