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

package bootstrap

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rabbitstack/irpmon/pkg/config"
	"github.com/rabbitstack/irpmon/pkg/emulator"
	"github.com/rabbitstack/irpmon/pkg/irpmon"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/rabbitstack/irpmon/pkg/remote"
	"github.com/rabbitstack/irpmon/pkg/util/version"
	log "github.com/sirupsen/logrus"
)

// App wires the monitor, the client and the socket server from the
// configuration given by the commands.
type App struct {
	config *config.Config
	emu    *emulator.Emulator
	client *irpmon.Client
	server *remote.Server
	addr   net.Addr

	ctx    context.Context
	cancel context.CancelFunc
}

// Option enables changing the behaviour of the bootstrap application.
type Option func(*opts)

type opts struct {
	installSignals bool
	emulator       bool
}

// WithSignals installs signal handlers.
func WithSignals() Option {
	return func(o *opts) {
		o.installSignals = true
	}
}

// WithEmulator forces the in-process emulated monitor regardless of the connector.
func WithEmulator() Option {
	return func(o *opts) {
		o.emulator = true
	}
}

// NewApp constructs a new bootstrap application with the specified configuration
// and a list of options.
func NewApp(cfg *config.Config, options ...Option) (*App, error) {
	if err := InitConfigAndLogger(cfg); err != nil {
		return nil, err
	}
	var opts opts
	for _, opt := range options {
		opt(&opts)
	}

	app := &App{config: cfg}
	if opts.installSignals {
		app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	} else {
		app.ctx, app.cancel = context.WithCancel(context.Background())
	}

	if opts.emulator || cfg.Monitor.Connector == config.Local {
		emu, err := NewEmulator(cfg)
		if err != nil {
			app.cancel()
			return nil, err
		}
		app.emu = emu
	}
	return app, nil
}

// NewEmulator builds the emulated monitor and loads its object inventory.
func NewEmulator(cfg *config.Config) (*emulator.Emulator, error) {
	emu, err := emulator.New(emulator.Options{
		SettingsFile:      cfg.Monitor.SettingsFile,
		Compression:       cfg.Queue.Compression,
		CompressThreshold: cfg.Monitor.CompressThreshold,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Monitor.Inventory != "" {
		if err := emu.LoadInventory(cfg.Monitor.Inventory); err != nil {
			return nil, err
		}
	}
	return emu, nil
}

// Context returns the context that is canceled on the termination signal or Shutdown.
func (a *App) Context() context.Context { return a.ctx }

// Emulator returns the in-process monitor if the application runs one.
func (a *App) Emulator() *emulator.Emulator { return a.emu }

// Client initializes the client against the configured monitor. The
// default drivers are hooked on the first call.
func (a *App) Client() (*irpmon.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg := a.config
	settings, err := cfg.Monitor.Defaults.Settings()
	if err != nil {
		return nil, err
	}
	info := irpmon.InitInfo{
		ConnectTimeout: cfg.Monitor.ConnectTimeout,
		Drivers:        cfg.Monitor.Defaults.Drivers,
		DriverSettings: settings,
	}
	if a.emu != nil {
		info.Emulator = a.emu
	} else {
		info.Endpoint = cfg.Monitor.Endpoint
	}
	client := irpmon.New()
	if err := client.Initialize(info); err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// Serve exposes the emulated monitor on the configured endpoint.
func (a *App) Serve() error {
	if a.emu == nil {
		return errors.New("serve requires the emulated monitor")
	}
	ln, err := remote.Listen(a.config.Server.Listen)
	if err != nil {
		return err
	}
	a.server = remote.NewServer(func() (monitor.Monitor, error) { return a.emu.Session(), nil })
	a.addr = ln.Addr()
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Errorf("monitor server stopped: %v", err)
			a.cancel()
		}
	}()
	log.Infof("bootstrapping with pid %d. Version: %s", os.Getpid(), version.Get())
	log.Infof("monitor server listening on %s", a.addr)
	return nil
}

// Addr returns the address the server is listening on.
func (a *App) Addr() net.Addr { return a.addr }

// Wait waits for the app to receive the termination signal.
func (a *App) Wait() {
	<-a.ctx.Done()
}

// Shutdown is responsible for tearing down everything gracefully.
func (a *App) Shutdown() error {
	a.cancel()
	errs := make([]error, 0)
	if a.client != nil && a.client.IsInitialized() {
		if err := a.client.Finalize(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.server != nil {
		if err := a.server.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
