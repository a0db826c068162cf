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
	"github.com/spf13/cobra"
)

// RootCmd is the entrance to the irpmon CLI
var RootCmd = &cobra.Command{
	Use:   "irpmon",
	Short: "Driver request monitor client",
	Long: `
	irpmon hooks kernel drivers and devices and captures the I/O request packets,
	fast I/O calls and the related process, image and file name events
	they produce. The commands talk to the monitor either in-process or
	through the socket exposed by the serve command.
	`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(snapshotCmd)
	RootCmd.AddCommand(hooksCmd)
	RootCmd.AddCommand(listenCmd)
	RootCmd.AddCommand(settingsCmd)
	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(versionCmd)
}
