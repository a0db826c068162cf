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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle is returned when the hook handle is stale, foreign or was already closed.
	ErrInvalidHandle = errors.New("invalid hook handle")
	// ErrNotFound signals the named driver, device, object or watch doesn't exist
	ErrNotFound = errors.New("object not found")
	// ErrAlreadyExists is returned on duplicate watch registration
	ErrAlreadyExists = errors.New("object already exists")
	// ErrAlreadyHooked is returned when the driver is already tracked by the monitor
	ErrAlreadyHooked = errors.New("driver is already hooked")
	// ErrAlreadyConnected signals another consumer is connected to the event queue
	ErrAlreadyConnected = errors.New("event queue already has a connected consumer")
	// ErrMonitoringActive is returned when the operation is forbidden while the capture is running
	ErrMonitoringActive = errors.New("operation is not permitted while monitoring is active")
	// ErrNotConnected is returned for queue operations without an active connection
	ErrNotConnected = errors.New("not connected to the event queue")
	// ErrInsufficientBuffer signals the buffer can't hold the next record. The record stays queued
	ErrInsufficientBuffer = errors.New("buffer is too small to hold the request")
	// ErrMonitorUnavailable is returned when the monitor can't be reached
	ErrMonitorUnavailable = errors.New("monitor is unavailable")
	// ErrMalformed signals an unrecognized or corrupted request record
	ErrMalformed = errors.New("malformed request record")
	// ErrNotInitialized is returned when the client is used before Initialize or after Finalize
	ErrNotInitialized = errors.New("client is not initialized")
	// ErrAlreadyInitialized is returned on a second Initialize
	ErrAlreadyInitialized = errors.New("client is already initialized")
	// ErrAlreadyReleased is returned when a one-shot resource such as snapshot or enumeration is released twice
	ErrAlreadyReleased = errors.New("resource was already released")
)

// Status is the wire representation of the error class. It travels
// in the response frames exchanged with the remote monitor.
type Status uint32

const (
	// Success denotes the operation succeeded.
	Success Status = iota
	InvalidHandle
	NotFound
	AlreadyExists
	AlreadyHooked
	AlreadyConnected
	MonitoringActive
	NotConnected
	InsufficientBuffer
	MonitorUnavailable
	Malformed
	NotInitialized
	AlreadyInitialized
	AlreadyReleased
	// Unknown is used for failures that don't map to any status class.
	Unknown Status = 0xffff
)

var statuses = map[Status]error{
	InvalidHandle:      ErrInvalidHandle,
	NotFound:           ErrNotFound,
	AlreadyExists:      ErrAlreadyExists,
	AlreadyHooked:      ErrAlreadyHooked,
	AlreadyConnected:   ErrAlreadyConnected,
	MonitoringActive:   ErrMonitoringActive,
	NotConnected:       ErrNotConnected,
	InsufficientBuffer: ErrInsufficientBuffer,
	MonitorUnavailable: ErrMonitorUnavailable,
	Malformed:          ErrMalformed,
	NotInitialized:     ErrNotInitialized,
	AlreadyInitialized: ErrAlreadyInitialized,
	AlreadyReleased:    ErrAlreadyReleased,
}

// String returns the status name.
func (s Status) String() string {
	if s == Success {
		return "success"
	}
	if err, ok := statuses[s]; ok {
		return err.Error()
	}
	return fmt.Sprintf("unknown status (%d)", uint32(s))
}

// StatusOf classifies the error into its wire status. Wrapped
// errors are classified by the sentinel they wrap.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	for status, e := range statuses {
		if errors.Is(err, e) {
			return status
		}
	}
	return Unknown
}

// FromStatus turns the wire status back into an error. The message
// is attached for statuses that don't map to a sentinel error.
func FromStatus(s Status, msg string) error {
	if s == Success {
		return nil
	}
	err, ok := statuses[s]
	if !ok {
		return fmt.Errorf("monitor failure: %s", msg)
	}
	if msg != "" && msg != err.Error() {
		return &RemoteError{Status: s, Msg: msg}
	}
	return err
}

// RemoteError carries the original message produced by the remote
// monitor while still matching the sentinel error of its status.
type RemoteError struct {
	Status Status
	Msg    string
}

// Error returns the error message.
func (e *RemoteError) Error() string { return e.Msg }

// Unwrap returns the sentinel error for the status class.
func (e *RemoteError) Unwrap() error { return statuses[e.Status] }

// IsInvalidHandle determines if the error denotes a stale or unknown handle.
func IsInvalidHandle(err error) bool { return errors.Is(err, ErrInvalidHandle) }

// IsNotFound determines if the error denotes a missing object.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInsufficientBuffer determines if the retrieval can be retried with a larger buffer.
func IsInsufficientBuffer(err error) bool { return errors.Is(err, ErrInsufficientBuffer) }

// IsNotConnected determines if the error originates from a queue operation without connection.
func IsNotConnected(err error) bool { return errors.Is(err, ErrNotConnected) }

// IsMonitorUnavailable determines if the monitor is unreachable.
func IsMonitorUnavailable(err error) bool { return errors.Is(err, ErrMonitorUnavailable) }
