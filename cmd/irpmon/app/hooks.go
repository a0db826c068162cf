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

package app

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/config"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/handle"
	"github.com/rabbitstack/irpmon/pkg/irpmon"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/spf13/cobra"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "List, add or remove driver and device hooks",
	RunE:  listHooks,
}

var addHookCmd = &cobra.Command{
	Use:   "add DRIVER",
	Short: "Hook the driver with the default settings and optionally start the capture",
	Args:  cobra.ExactArgs(1),
	RunE:  addHook,
}

var removeHookCmd = &cobra.Command{
	Use:   "remove DRIVER",
	Short: "Stop the capture and unhook the driver along with its devices",
	Args:  cobra.ExactArgs(1),
	RunE:  removeHook,
}

var (
	hooksConfig = config.NewWithOpts()

	hookDevices []string
	hookStart   bool
)

func init() {
	hooksConfig.MustViperize(hooksCmd)
	addHookCmd.Flags().StringSliceVar(&hookDevices, "device", []string{}, "Names of the driver devices to hook")
	addHookCmd.Flags().BoolVar(&hookStart, "start", false, "Start capturing requests once the driver is hooked")
	hooksCmd.AddCommand(addHookCmd)
	hooksCmd.AddCommand(removeHookCmd)
}

func listHooks(cmd *cobra.Command, args []string) error {
	app, client, err := connect(hooksConfig)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	hooks, err := client.Hooks().EnumerateHooks()
	if err != nil {
		return err
	}
	defer hooks.Release()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Driver / Device", "IRP", "Fast I/O", "New devices", "Data", "Active"})
	for _, drv := range hooks.Drivers {
		s := drv.Settings
		t.AppendRow(table.Row{drv.ObjectID, drv.DriverName, mask(uint32(s.IRPSettings)), mask(uint32(s.FastIOSettings)), s.MonitorNewDevices, s.MonitorData, drv.MonitoringActive})
		for _, dev := range drv.Devices {
			t.AppendRow(table.Row{dev.ObjectID, "  " + dev.DeviceName, mask(uint32(dev.IRPSettings)), mask(uint32(dev.FastIOSettings)), "", "", dev.MonitoringActive})
		}
	}
	t.Render()
	return nil
}

func addHook(cmd *cobra.Command, args []string) error {
	app, client, err := connect(hooksConfig)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	settings, err := hooksConfig.Monitor.Defaults.Settings()
	if err != nil {
		return err
	}
	hooks := client.Hooks()
	h, oid, err := hooks.HookDriver(args[0], settings, false)
	if err != nil {
		return err
	}
	for _, name := range hookDevices {
		dh, _, err := hooks.HookDeviceByName(name)
		if err != nil {
			return errors.Wrapf(err, "unable to hook %s device", name)
		}
		if err := hooks.SetDeviceInfo(dh, settings.IRPSettings, settings.FastIOSettings, true); err != nil {
			return err
		}
	}
	if hookStart {
		if err := hooks.StartMonitoring(h); err != nil {
			return err
		}
	}
	fmt.Printf("%s hooked with identifier %s\n", args[0], oid)
	return nil
}

func removeHook(cmd *cobra.Command, args []string) error {
	app, client, err := connect(hooksConfig)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	h, drv, err := openHookedDriver(client, args[0])
	if err != nil {
		return err
	}
	hooks := client.Hooks()
	if err := hooks.StopMonitoring(h); err != nil {
		return err
	}
	for _, dev := range drv.Devices {
		dh, err := hooks.OpenDevice(dev.ObjectID)
		if err != nil {
			return err
		}
		if err := hooks.SetDeviceInfo(dh, dev.IRPSettings, dev.FastIOSettings, false); err != nil {
			return err
		}
	}
	if err := hooks.UnhookDriver(h); err != nil {
		return err
	}
	fmt.Printf("%s unhooked\n", args[0])
	return nil
}

func openHookedDriver(client *irpmon.Client, name string) (handle.Handle, monitor.HookedDriver, error) {
	hooks, err := client.Hooks().EnumerateHooks()
	if err != nil {
		return 0, monitor.HookedDriver{}, err
	}
	defer hooks.Release()
	for _, drv := range hooks.Drivers {
		if monitor.NormalizeDriverName(drv.DriverName) == monitor.NormalizeDriverName(name) {
			h, err := client.Hooks().OpenDriver(drv.ObjectID)
			return h, drv, err
		}
	}
	return 0, monitor.HookedDriver{}, errors.Wrapf(kerrors.ErrNotFound, "%s is not hooked", name)
}

func mask(m uint32) string { return fmt.Sprintf("%#08x", m) }
