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
	"github.com/rabbitstack/irpmon/internal/bootstrap"
	"github.com/rabbitstack/irpmon/pkg/config"
	"github.com/rabbitstack/irpmon/pkg/irpmon"
	"github.com/rabbitstack/irpmon/pkg/util/spinner"
)

// connect bootstraps the application and initializes the client. The
// spinner is shown while the remote monitor is dialed.
func connect(cfg *config.Config) (*bootstrap.App, *irpmon.Client, error) {
	app, err := bootstrap.NewApp(cfg, bootstrap.WithSignals())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Monitor.Connector == config.Net {
		s := spinner.Show("Connecting to " + cfg.Monitor.Endpoint)
		defer s.Stop()
	}
	client, err := app.Client()
	if err != nil {
		_ = app.Shutdown()
		return nil, nil, err
	}
	return app, client, nil
}
