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
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emulated monitor and expose it on the socket endpoint",
	RunE:  serve,
}

var serveConfig = config.NewWithOpts(config.WithServe())

func init() {
	serveConfig.MustViperize(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.NewApp(serveConfig, bootstrap.WithSignals(), bootstrap.WithEmulator())
	if err != nil {
		return err
	}
	if err := app.Serve(); err != nil {
		return err
	}
	app.Wait()
	return app.Shutdown()
}
