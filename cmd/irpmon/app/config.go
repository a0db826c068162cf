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

	"github.com/rabbitstack/irpmon/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and print the effective configuration",
	RunE:  printConfig,
}

var validateConfig = config.NewWithOpts(config.WithValidate())

func init() {
	validateConfig.MustViperize(configCmd)
}

func printConfig(cmd *cobra.Command, args []string) error {
	if err := validateConfig.TryLoadFile(validateConfig.File()); err != nil {
		return err
	}
	if err := validateConfig.Init(); err != nil {
		return err
	}
	if err := validateConfig.Validate(); err != nil {
		return err
	}
	fmt.Println(validateConfig.Print())
	return nil
}
