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
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	createSemaphore  = kernel32.NewProc("CreateSemaphoreW")
	releaseSemaphore = kernel32.NewProc("ReleaseSemaphore")
)

const maxSemaphoreCount = 0x7fffffff

// Win32Semaphore is the counter backed by the Windows semaphore object.
// The handle can be waited on together with other kernel objects.
type Win32Semaphore windows.Handle

// NewWin32Semaphore creates the unnamed semaphore with the zero count.
func NewWin32Semaphore() (Win32Semaphore, error) {
	handle, _, err := createSemaphore.Call(0, 0, uintptr(maxSemaphoreCount), 0)
	if handle == 0 {
		return Win32Semaphore(0), os.NewSyscallError("CreateSemaphoreW", err)
	}
	return Win32Semaphore(handle), nil
}

// Add releases the semaphore n times.
func (s Win32Semaphore) Add(n int) {
	if n <= 0 {
		return
	}
	var prev int32
	_, _, _ = releaseSemaphore.Call(uintptr(s), uintptr(n), uintptr(unsafe.Pointer(&prev)))
}

// Wait waits for the semaphore to be signaled. Zero timeout waits forever.
func (s Win32Semaphore) Wait(timeout time.Duration) (bool, error) {
	ms := uint32(windows.INFINITE)
	if timeout > 0 {
		ms = uint32(timeout.Milliseconds())
	}
	ev, err := windows.WaitForSingleObject(windows.Handle(s), ms)
	if err != nil {
		return false, os.NewSyscallError("WaitForSingleObject", err)
	}
	return ev == windows.WAIT_OBJECT_0, nil
}

// Handle returns the raw semaphore handle.
func (s Win32Semaphore) Handle() windows.Handle { return windows.Handle(s) }

// Close closes the semaphore handle.
func (s Win32Semaphore) Close() error {
	return windows.CloseHandle(windows.Handle(s))
}
