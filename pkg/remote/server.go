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
	"expvar"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	kerrors "github.com/rabbitstack/irpmon/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	log "github.com/sirupsen/logrus"
)

var (
	sessionCount = expvar.NewInt("remote.sessions")
	callErrors   = expvar.NewMap("remote.call.errors")
)

// SessionFactory opens the monitor session for the accepted connection.
type SessionFactory func() (monitor.Monitor, error)

// Server exposes the monitor to remote clients. Each connection is
// served by its own monitor session, and calls within the connection
// are dispatched concurrently.
type Server struct {
	factory SessionFactory

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates the server that obtains monitor sessions from the factory.
func NewServer(factory SessionFactory) *Server {
	return &Server{factory: factory, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections on the listener until the server is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting connections and tears down all sessions.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

type session struct {
	conn net.Conn
	mon  monitor.Monitor
	wmu  sync.Mutex

	// counter increments waiting to be sent to the client
	nmu     sync.Mutex
	pending int
	// fmu orders the flushed notifications with the replies
	fmu    sync.Mutex
	wakeup chan struct{}
	done   chan struct{}
}

func newSession(conn net.Conn, mon monitor.Monitor) *session {
	return &session{
		conn:   conn,
		mon:    mon,
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *session) write(f *frame) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := writeFrame(s.conn, f); err != nil {
		log.Debugf("unable to write frame to %s: %v", s.conn.RemoteAddr(), err)
	}
}

// Add implements the monitor counter. The monitor calls it with its
// locks held, so Add never touches the connection. The increments are
// coalesced and forwarded to the client by the notifier.
func (s *session) Add(n int) {
	s.nmu.Lock()
	s.pending += n
	s.nmu.Unlock()
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *session) notifier() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wakeup:
			s.flush()
		}
	}
}

// flush sends the pending counter increments as the notification frame.
func (s *session) flush() {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.nmu.Lock()
	n := s.pending
	s.pending = 0
	s.nmu.Unlock()
	if n == 0 {
		return
	}
	body, err := encodeBody(notification{Count: n})
	if err != nil {
		return
	}
	s.write(&frame{Op: opNotify, Body: body})
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	mon, err := s.factory()
	if err != nil {
		log.Errorf("unable to open monitor session for %s: %v", conn.RemoteAddr(), err)
		return
	}
	sessionCount.Add(1)
	defer sessionCount.Add(-1)

	sess := newSession(conn, mon)
	go sess.notifier()
	defer close(sess.done)
	var calls sync.WaitGroup
	for {
		f, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warnf("closing session for %s: %v", conn.RemoteAddr(), err)
			}
			break
		}
		calls.Add(1)
		go func(f *frame) {
			defer calls.Done()
			sess.write(sess.dispatch(f))
		}(f)
	}
	// closing the session disconnects the queue, which unblocks pending retrievals
	_ = mon.Close()
	calls.Wait()
}

func (s *session) dispatch(f *frame) *frame {
	reply, err := s.handle(f)
	resp := &frame{CallID: f.CallID, Op: f.Op}
	if err == nil {
		resp.Body, err = encodeBody(reply)
	}
	if err == nil && len(resp.Body) > maxBodySize {
		err = errors.Wrapf(kerrors.ErrInsufficientBuffer, "reply of %d bytes exceeds the maximum frame size", len(resp.Body))
		resp.Body = nil
	}
	if err != nil {
		resp.Status = kerrors.StatusOf(err)
		resp.Error = err.Error()
		callErrors.Add(resp.Status.String(), 1)
	}
	return resp
}

func (s *session) handle(f *frame) (any, error) {
	switch f.Op {
	case opHookDriver:
		var args hookDriverArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return s.mon.HookDriver(args.Name, args.Settings, args.DeviceExtension)
	case opUnhookDriver, opStartDriverMonitoring, opStopDriverMonitoring, opDriverInfo, opUnhookDevice, opDeviceInfo:
		var args objectArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return s.handleObject(f.Op, args.ID)
	case opSetDriverInfo:
		var args setDriverArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return nil, s.mon.SetDriverInfo(args.ID, args.Settings)
	case opHookDeviceByName:
		var args hookDeviceArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return s.mon.HookDeviceByName(args.Name)
	case opHookDeviceByAddress:
		var args hookDeviceArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return s.mon.HookDeviceByAddress(args.Address)
	case opSetDeviceInfo:
		var args setDeviceArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return nil, s.mon.SetDeviceInfo(args.ID, args.IRP, args.FastIo, args.Active)
	case opEnumerateHooks:
		return s.mon.EnumerateHooks()
	case opSnapshot:
		return s.mon.Snapshot()
	case opConnect:
		var args connectArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		if !args.Counter {
			return nil, s.mon.Connect(nil)
		}
		err := s.mon.Connect(s)
		// the backlog reaches the client ahead of the reply
		s.flush()
		return nil, err
	case opDisconnect:
		return nil, s.mon.Disconnect()
	case opClearQueue:
		return nil, s.mon.ClearQueue()
	case opGetRequest:
		var args getRequestArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		// larger records stay queued rather than being lost to the oversized reply
		if args.Size > maxRecordSize {
			args.Size = maxRecordSize
		}
		return s.mon.GetRequest(args.Size)
	case opRegisterClassWatch, opUnregisterClassWatch:
		var w monitor.ClassWatch
		if err := decodeBody(f.Body, &w); err != nil {
			return nil, err
		}
		if f.Op == opRegisterClassWatch {
			return nil, s.mon.RegisterClassWatch(w)
		}
		return nil, s.mon.UnregisterClassWatch(w)
	case opClassWatches:
		return s.mon.ClassWatches()
	case opRegisterDriverNameWatch:
		var w monitor.DriverNameWatch
		if err := decodeBody(f.Body, &w); err != nil {
			return nil, err
		}
		return nil, s.mon.RegisterDriverNameWatch(w)
	case opUnregisterDriverNameWatch:
		var args nameArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return nil, s.mon.UnregisterDriverNameWatch(args.Name)
	case opDriverNameWatches:
		return s.mon.DriverNameWatches()
	case opEmulateDriverDevices:
		return nil, s.mon.EmulateDriverDevices()
	case opEmulateProcesses:
		return nil, s.mon.EmulateProcesses()
	case opQuerySettings:
		return s.mon.QuerySettings()
	case opSetSettings:
		var args settingsArgs
		if err := decodeBody(f.Body, &args); err != nil {
			return nil, err
		}
		return nil, s.mon.SetSettings(args.Settings, args.Persist)
	default:
		return nil, kerrors.ErrMalformed
	}
}

func (s *session) handleObject(op Op, id monitor.ObjectID) (any, error) {
	switch op {
	case opUnhookDriver:
		return nil, s.mon.UnhookDriver(id)
	case opStartDriverMonitoring:
		return nil, s.mon.StartDriverMonitoring(id)
	case opStopDriverMonitoring:
		return nil, s.mon.StopDriverMonitoring(id)
	case opDriverInfo:
		return s.mon.DriverInfo(id)
	case opUnhookDevice:
		return nil, s.mon.UnhookDevice(id)
	default:
		return s.mon.DeviceInfo(id)
	}
}
