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

package remote

import (
	"encoding/binary"
	"expvar"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/request"
)

const (
	// maxFrameSize bounds the frame length to guard against corrupted length prefixes.
	maxFrameSize = 2*request.MaxSize + 4096
	// maxBodySize leaves room for the frame fields around the body.
	maxBodySize = maxFrameSize - 256
	// maxRecordSize is the largest record that fits into the reply body
	// once wrapped into the CBOR byte string.
	maxRecordSize = maxBodySize - 16
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	framesWritten = expvar.NewInt("remote.frames.written")
	framesRead    = expvar.NewInt("remote.frames.read")
	frameErrors   = expvar.NewInt("remote.frame.errors")
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("remote: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("remote: CBOR decoder initialization failed: " + err.Error())
	}
}

// Op is the monitor operation carried by the frame.
type Op uint16

const (
	opNotify Op = iota
	opHookDriver
	opUnhookDriver
	opStartDriverMonitoring
	opStopDriverMonitoring
	opSetDriverInfo
	opDriverInfo
	opHookDeviceByName
	opHookDeviceByAddress
	opUnhookDevice
	opDeviceInfo
	opSetDeviceInfo
	opEnumerateHooks
	opSnapshot
	opConnect
	opDisconnect
	opClearQueue
	opGetRequest
	opRegisterClassWatch
	opUnregisterClassWatch
	opClassWatches
	opRegisterDriverNameWatch
	opUnregisterDriverNameWatch
	opDriverNameWatches
	opEmulateDriverDevices
	opEmulateProcesses
	opQuerySettings
	opSetSettings
)

// frame is the unit exchanged between the client and the server. The
// call identifier pairs responses with requests, since calls are served
// concurrently. Frames with zero call identifier are counter notifications.
type frame struct {
	CallID uint64          `cbor:"1,keyasint"`
	Op     Op              `cbor:"2,keyasint"`
	Status kerrors.Status  `cbor:"3,keyasint,omitempty"`
	Error  string          `cbor:"4,keyasint,omitempty"`
	Body   cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

type hookDriverArgs struct {
	Name            string                 `cbor:"1,keyasint"`
	Settings        monitor.DriverSettings `cbor:"2,keyasint"`
	DeviceExtension bool                   `cbor:"3,keyasint"`
}

type objectArgs struct {
	ID monitor.ObjectID `cbor:"1,keyasint"`
}

type setDriverArgs struct {
	ID       monitor.ObjectID       `cbor:"1,keyasint"`
	Settings monitor.DriverSettings `cbor:"2,keyasint"`
}

type hookDeviceArgs struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	Address uint64 `cbor:"2,keyasint,omitempty"`
}

type setDeviceArgs struct {
	ID     monitor.ObjectID   `cbor:"1,keyasint"`
	IRP    monitor.IRPMask    `cbor:"2,keyasint"`
	FastIo monitor.FastIOMask `cbor:"3,keyasint"`
	Active bool               `cbor:"4,keyasint"`
}

type connectArgs struct {
	Counter bool `cbor:"1,keyasint"`
}

type getRequestArgs struct {
	Size int `cbor:"1,keyasint"`
}

type nameArgs struct {
	Name string `cbor:"1,keyasint"`
}

type settingsArgs struct {
	Settings monitor.Settings `cbor:"1,keyasint"`
	Persist  bool             `cbor:"2,keyasint"`
}

type notification struct {
	Count int `cbor:"1,keyasint"`
}

func writeFrame(w io.Writer, f *frame) error {
	data, err := encMode.Marshal(f)
	if err != nil {
		return err
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame size %d exceeds maximum %d", len(data), maxFrameSize)
	}
	b := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(b[:4], uint32(len(data)))
	copy(b[4:], data)
	if _, err := w.Write(b); err != nil {
		return err
	}
	framesWritten.Add(1)
	return nil
}

func readFrame(r io.Reader) (*frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameSize {
		frameErrors.Add(1)
		return nil, fmt.Errorf("frame size %d exceeds maximum %d", n, maxFrameSize)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	var f frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		frameErrors.Add(1)
		return nil, fmt.Errorf("invalid frame: %v", err)
	}
	framesRead.Add(1)
	return &f, nil
}

func encodeBody(v any) (cbor.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return encMode.Marshal(v)
}

func decodeBody(b cbor.RawMessage, v any) error {
	if v == nil || len(b) == 0 {
		return nil
	}
	return decMode.Unmarshal(b, v)
}
