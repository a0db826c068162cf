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
	"fmt"
	"strings"
	"time"

	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	connector         = "monitor.connector"
	endpoint          = "monitor.endpoint"
	connectTimeout    = "monitor.connect-timeout"
	inventory         = "monitor.inventory"
	settingsFile      = "monitor.settings-file"
	compressThreshold = "monitor.compress-threshold"

	defaultsIRP               = "monitor.defaults.irp"
	defaultsFastIO            = "monitor.defaults.fastio"
	defaultsMonitorNewDevices = "monitor.defaults.monitor-new-devices"
	defaultsMonitorData       = "monitor.defaults.monitor-data"
	defaultsDrivers           = "monitor.defaults.drivers"

	// DefaultEndpoint is the address the socket server listens on when none is given.
	DefaultEndpoint = "tcp://127.0.0.1:4440"
)

// Connector identifies how the client reaches the monitor.
type Connector string

const (
	// Local runs the emulated monitor inside the client process.
	Local Connector = "local"
	// Net reaches the monitor through the socket connector.
	Net Connector = "net"
)

// MonitorConfig contains the monitor connection settings.
type MonitorConfig struct {
	// Connector designates the monitor transport (local|net).
	Connector Connector `json:"monitor.connector" yaml:"monitor.connector"`
	// Endpoint is the socket address of the remote monitor.
	Endpoint string `json:"monitor.endpoint" yaml:"monitor.endpoint"`
	// ConnectTimeout bounds the time spent establishing the connection.
	ConnectTimeout time.Duration `json:"monitor.connect-timeout" yaml:"monitor.connect-timeout"`
	// Inventory is the YAML file with the emulated driver and device objects.
	Inventory string `json:"monitor.inventory" yaml:"monitor.inventory"`
	// SettingsFile is the path where the persistent monitor settings are stored.
	SettingsFile string `json:"monitor.settings-file" yaml:"monitor.settings-file"`
	// CompressThreshold is the minimum record size eligible for compression.
	CompressThreshold int `json:"monitor.compress-threshold" yaml:"monitor.compress-threshold"`
	// Defaults are the driver settings applied on first connect.
	Defaults DriverDefaults `json:"monitor.defaults" yaml:"monitor.defaults"`
}

// DriverDefaults describes the drivers hooked on first connect and the settings they get.
type DriverDefaults struct {
	// IRP lists the captured IRP major functions. The asterisk enables all of them.
	IRP []string
	// FastIO lists the captured fast I/O routines. The asterisk enables all of them.
	FastIO []string
	// MonitorNewDevices indicates if devices created after the hook are monitored.
	MonitorNewDevices bool
	// MonitorData indicates if the IRP data buffers are captured.
	MonitorData bool
	// Drivers contains the names of the drivers to hook.
	Drivers []string
}

// Settings builds the driver settings from the defaults.
func (d DriverDefaults) Settings() (monitor.DriverSettings, error) {
	irp, err := ParseIRPMask(d.IRP)
	if err != nil {
		return monitor.DriverSettings{}, err
	}
	fastIo, err := ParseFastIOMask(d.FastIO)
	if err != nil {
		return monitor.DriverSettings{}, err
	}
	return monitor.DriverSettings{
		IRPSettings:       irp,
		FastIOSettings:    fastIo,
		MonitorNewDevices: d.MonitorNewDevices,
		MonitorData:       d.MonitorData,
	}, nil
}

func (c *MonitorConfig) initFromViper(v *viper.Viper) {
	c.Connector = Connector(strings.ToLower(v.GetString(connector)))
	c.Endpoint = v.GetString(endpoint)
	c.ConnectTimeout = v.GetDuration(connectTimeout)
	c.Inventory = v.GetString(inventory)
	c.SettingsFile = v.GetString(settingsFile)
	c.CompressThreshold = v.GetInt(compressThreshold)
	c.Defaults = DriverDefaults{
		IRP:               v.GetStringSlice(defaultsIRP),
		FastIO:            v.GetStringSlice(defaultsFastIO),
		MonitorNewDevices: v.GetBool(defaultsMonitorNewDevices),
		MonitorData:       v.GetBool(defaultsMonitorData),
		Drivers:           v.GetStringSlice(defaultsDrivers),
	}
}

func (c *MonitorConfig) validate() error {
	switch c.Connector {
	case Local, Net:
	default:
		return fmt.Errorf("unknown monitor connector %q. Allowed values are local and net", c.Connector)
	}
	if c.Connector == Net && c.Endpoint == "" {
		return fmt.Errorf("%s is required by the net connector", endpoint)
	}
	_, err := c.Defaults.Settings()
	return err
}

func (c *MonitorConfig) addFlags(flags *pflag.FlagSet) {
	flags.String(connector, string(Local), "Designates how the monitor is reached (local|net). The local connector runs the emulated monitor in-process")
	flags.String(endpoint, DefaultEndpoint, "Specifies the socket endpoint of the remote monitor. Named pipes are given as npipe:///name")
	flags.Duration(connectTimeout, time.Second*10, "Determines how long the client keeps trying to establish the monitor connection")
	flags.String(inventory, "", "Specifies the YAML file with the driver and device objects known to the emulated monitor")
	flags.String(settingsFile, "", "Specifies the file where persistent monitor settings are stored")
	flags.Int(compressThreshold, 512, "Records larger than this size are compressed when the queue compression is enabled")
	flags.StringSlice(defaultsIRP, []string{"*"}, "Comma-separated list of IRP major functions captured on drivers hooked at startup")
	flags.StringSlice(defaultsFastIO, []string{"*"}, "Comma-separated list of fast I/O routines captured on drivers hooked at startup")
	flags.Bool(defaultsMonitorNewDevices, false, "Indicates if devices created after the startup hook are monitored")
	flags.Bool(defaultsMonitorData, true, "Indicates if the IRP data buffers are captured")
	flags.StringSlice(defaultsDrivers, []string{}, "Comma-separated list of driver names hooked on first connect")
}

// ParseIRPMask builds the IRP mask from major function names. Names
// are accepted with or without the IRP_MJ_ prefix.
func ParseIRPMask(names []string) (monitor.IRPMask, error) {
	var mask monitor.IRPMask
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "*" {
			return monitor.AllIRP, nil
		}
		if !strings.HasPrefix(name, "IRP_MJ_") {
			name = "IRP_MJ_" + name
		}
		found := false
		for major := uint8(0); major <= request.MajorMaximum; major++ {
			if request.MajorName(major) == name {
				mask = mask.With(major)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown IRP major function: %s", name)
		}
	}
	return mask, nil
}

// ParseFastIOMask builds the fast I/O mask from routine names.
func ParseFastIOMask(names []string) (monitor.FastIOMask, error) {
	var mask monitor.FastIOMask
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "*" {
			return monitor.AllFastIO, nil
		}
		found := false
		for t := request.FastIoType(0); t < request.FastIoMax; t++ {
			if strings.EqualFold(t.String(), name) {
				mask = mask.With(t)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown fast I/O routine: %s", name)
		}
	}
	return mask, nil
}
