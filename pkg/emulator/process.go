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
	"github.com/shirou/gopsutil/v3/process"
)

// Process is the running process as seen by the process emulation.
type Process struct {
	PID     uint32 `yaml:"pid"`
	PPID    uint32 `yaml:"ppid"`
	Exe     string `yaml:"exe"`
	Cmdline string `yaml:"cmdline"`
}

// ProcessSource enumerates running processes.
type ProcessSource interface {
	Processes() ([]Process, error)
}

// SystemProcesses enumerates the processes running on the local system.
type SystemProcesses struct{}

// Processes returns the live processes. Processes that exit during
// the enumeration are skipped.
func (SystemProcesses) Processes() ([]Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	ps := make([]Process, 0, len(procs))
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		exe, err := p.Exe()
		if err != nil {
			exe, _ = p.Name()
		}
		cmdline, _ := p.Cmdline()
		ps = append(ps, Process{PID: uint32(p.Pid), PPID: uint32(ppid), Exe: exe, Cmdline: cmdline})
	}
	return ps, nil
}

// StaticProcesses is the fixed process list.
type StaticProcesses []Process

// Processes returns the process list.
func (s StaticProcesses) Processes() ([]Process, error) { return s, nil }
