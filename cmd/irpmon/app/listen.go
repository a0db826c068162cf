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
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rabbitstack/irpmon/pkg/config"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/queue"
	"github.com/rabbitstack/irpmon/pkg/request"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to the event queue and print the captured requests",
	RunE:  listen,
}

var (
	listenConfig = config.NewWithOpts()

	listenMax              int
	listenEmulateProcesses bool
	listenEmulateDrivers   bool
	listenClear            bool
)

func init() {
	listenConfig.MustViperize(listenCmd)
	listenCmd.Flags().IntVarP(&listenMax, "max", "n", 0, "Stop after printing this many requests. Zero means no limit")
	listenCmd.Flags().BoolVar(&listenEmulateProcesses, "emulate-processes", false, "Enqueue creation requests for all running processes after connecting")
	listenCmd.Flags().BoolVar(&listenEmulateDrivers, "emulate-drivers", false, "Enqueue detection requests for all drivers and devices after connecting")
	listenCmd.Flags().BoolVar(&listenClear, "clear", false, "Discard the queued backlog after connecting")
}

func listen(cmd *cobra.Command, args []string) error {
	app, client, err := connect(listenConfig)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	q := client.Queue()
	sem := queue.NewSemaphore()
	if err := q.Connect(sem); err != nil {
		return err
	}
	if listenClear {
		if err := q.ClearQueue(); err != nil {
			return err
		}
	}
	if listenEmulateProcesses {
		if err := client.Watches().EmulateProcesses(); err != nil {
			return err
		}
	}
	if listenEmulateDrivers {
		if err := client.Watches().EmulateDriverDevices(); err != nil {
			return err
		}
	}

	// the blocked retrieval is canceled by disconnecting
	ctx := app.Context()
	go func() {
		<-ctx.Done()
		_ = q.Disconnect()
	}()

	size := listenConfig.Queue.BufferSize
	for n := 0; listenMax == 0 || n < listenMax; n++ {
		if err := sem.Wait(ctx); err != nil {
			return nil
		}
		buf, err := q.GetRequest(size)
		if kerrors.IsInsufficientBuffer(err) {
			log.Warnf("request doesn't fit into %s buffer. Retrying with the maximum size", humanize.Bytes(uint64(size)))
			size = queue.MaxRequestSize
			buf, err = q.GetRequest(size)
		}
		if err != nil {
			if kerrors.IsNotConnected(err) {
				return nil
			}
			return err
		}
		req, err := buf.Decode()
		_ = buf.Free()
		if err != nil {
			log.Warnf("unable to decode request: %v", err)
			continue
		}
		printRequest(os.Stdout, req)
	}
	return nil
}

func printRequest(w io.Writer, req *request.Request) {
	ts := req.Time().Format("15:04:05.000000")
	switch p := req.Payload.(type) {
	case *request.IRP:
		_, _ = fmt.Fprintf(w, "%s %s %s pid=%d device=%#x file=%#x data=%s\n", ts, req.Type, request.MajorName(p.Major), req.ProcessID, req.DeviceObject, p.FileObject, humanize.Bytes(uint64(len(p.Data))))
	case *request.IRPCompletion:
		_, _ = fmt.Fprintf(w, "%s %s irp=%#x status=%#x information=%d data=%s\n", ts, req.Type, p.IrpAddress, p.Status, p.Information, humanize.Bytes(uint64(len(p.Data))))
	case *request.FastIo:
		_, _ = fmt.Fprintf(w, "%s %s %s pid=%d device=%#x status=%#x\n", ts, req.Type, p.FastIoType, req.ProcessID, req.DeviceObject, p.Status)
	case *request.ProcessCreated:
		_, _ = fmt.Fprintf(w, "%s %s pid=%d ppid=%d image=%s cmdline=%q\n", ts, req.Type, p.ProcessID, p.ParentID, p.ImageName, p.CommandLine)
	case *request.ProcessExitted:
		_, _ = fmt.Fprintf(w, "%s %s pid=%d\n", ts, req.Type, p.ProcessID)
	case *request.ImageLoad:
		_, _ = fmt.Fprintf(w, "%s %s pid=%d image=%s base=%#x size=%s\n", ts, req.Type, req.ProcessID, p.ImageName, p.ImageBase, humanize.Bytes(p.ImageSize))
	case *request.FileNameAssigned:
		_, _ = fmt.Fprintf(w, "%s %s file=%#x name=%s\n", ts, req.Type, p.FileObject, p.FileName)
	case *request.FileNameDeleted:
		_, _ = fmt.Fprintf(w, "%s %s file=%#x\n", ts, req.Type, p.FileObject)
	case *request.DriverDetected:
		_, _ = fmt.Fprintf(w, "%s %s driver=%#x name=%s\n", ts, req.Type, req.DriverObject, p.DriverName)
	case *request.DeviceDetected:
		_, _ = fmt.Fprintf(w, "%s %s device=%#x name=%s\n", ts, req.Type, req.DeviceObject, p.DeviceName)
	default:
		_, _ = fmt.Fprintln(w, ts, req.String())
	}
}
