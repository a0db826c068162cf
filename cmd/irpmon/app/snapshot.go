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

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/irpmon/pkg/config"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "List the drivers and devices present in the system",
	RunE:  snapshot,
}

var snapshotConfig = config.NewWithOpts()

func init() {
	snapshotConfig.MustViperize(snapshotCmd)
}

func snapshot(cmd *cobra.Command, args []string) error {
	app, client, err := connect(snapshotConfig)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	snap, err := client.Hooks().RetrieveSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Driver", "Device", "Address", "Class", "Attached", "Lower"})
	for _, drv := range snap.Drivers {
		t.AppendRow(table.Row{drv.Name, "", fmt.Sprintf("%#x", drv.Address), "", "", ""})
		for _, dev := range drv.Devices {
			t.AppendRow(table.Row{"", dev.Name, fmt.Sprintf("%#x", dev.Address), dev.ClassGUID, hex(dev.AttachedDevice), hex(dev.LowerDevice)})
		}
	}
	t.AppendFooter(table.Row{
		humanize.Comma(int64(len(snap.Drivers))) + " drivers",
		humanize.Comma(int64(snap.Devices())) + " devices",
	})
	t.Render()
	return nil
}

func hex(addr uint64) string {
	if addr == 0 {
		return ""
	}
	return fmt.Sprintf("%#x", addr)
}
