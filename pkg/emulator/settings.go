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

package emulator

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rabbitstack/irpmon/pkg/monitor"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func loadSettings(path string) (monitor.Settings, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return monitor.Settings{}, false, nil
		}
		return monitor.Settings{}, false, errors.Wrapf(err, "unable to read settings from %s", path)
	}
	var settings monitor.Settings
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return monitor.Settings{}, false, errors.Wrapf(err, "invalid settings file %s", path)
	}
	return settings, true, nil
}

func saveSettings(path string, settings monitor.Settings) error {
	b, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// QuerySettings returns the global settings.
func (e *Emulator) QuerySettings() monitor.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetSettings applies the global settings. The settings are written to
// the settings file when persist is requested.
func (e *Emulator) SetSettings(settings monitor.Settings, persist bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if persist {
		if e.opts.SettingsFile == "" {
			log.Warn("settings file is not configured. Settings are applied to the current session only")
		} else if err := saveSettings(e.opts.SettingsFile, settings); err != nil {
			return errors.Wrap(err, "unable to persist settings")
		}
	}
	e.settings = settings
	e.trimQueue()
	return nil
}
