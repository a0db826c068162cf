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
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/irpmon/pkg/config"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the global monitor settings",
	RunE:  settings,
}

var (
	settingsConfig = config.NewWithOpts()

	settingsSet     []string
	settingsPersist bool
)

func init() {
	settingsConfig.MustViperize(settingsCmd)
	settingsCmd.Flags().StringArrayVar(&settingsSet, "set", []string{}, "Setting to change in the key=value form, e.g. --set strip-data=true")
	settingsCmd.Flags().BoolVar(&settingsPersist, "persist", false, "Persist the changed settings so the monitor picks them up after the restart")
}

func settings(cmd *cobra.Command, args []string) error {
	app, client, err := connect(settingsConfig)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	s, err := client.QuerySettings()
	if err != nil {
		return err
	}
	if len(settingsSet) > 0 {
		s, err = applySettings(s, settingsSet)
		if err != nil {
			return err
		}
		if err := client.SetSettings(s, settingsPersist); err != nil {
			return err
		}
	}
	return renderSettings(s)
}

// applySettings overlays the key=value pairs on top of the settings.
// Keys are the YAML names of the settings fields.
func applySettings(s monitor.Settings, pairs []string) (monitor.Settings, error) {
	known, err := settingsMap(s)
	if err != nil {
		return s, err
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return s, fmt.Errorf("%q is not in the key=value form", pair)
		}
		key = strings.TrimSpace(key)
		if _, ok := known[key]; !ok {
			return s, fmt.Errorf("unknown monitor setting: %s", key)
		}
		if err := yaml.Unmarshal([]byte(key+": "+strings.TrimSpace(value)), &s); err != nil {
			return s, fmt.Errorf("invalid %s value: %v", key, err)
		}
	}
	return s, nil
}

func settingsMap(s monitor.Settings) (map[string]interface{}, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func renderSettings(s monitor.Settings) error {
	m, err := settingsMap(s)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Setting", "Value"})
	for _, k := range keys {
		t.AppendRow(table.Row{k, m[k]})
	}
	t.Render()
	return nil
}
