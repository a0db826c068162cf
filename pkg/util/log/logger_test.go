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

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFromConfig(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, InitFromConfig(Config{Path: dir, Level: "verbose"}, "irpmon.log"))
	require.NoError(t, InitFromConfig(Config{Path: dir, Level: "info", Formatter: "text", MaxSize: 1, MaxBackups: 1}, "irpmon.log"))

	logrus.Info("irpmon initialized")

	b, err := os.ReadFile(filepath.Join(dir, "irpmon.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "irpmon initialized")
	assert.Contains(t, string(b), "source=")
}

func TestInitCreatesLogsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	require.NoError(t, InitFromConfig(Config{Path: dir, Level: "warn"}, "irpmon.log"))
	_, err := os.Stat(dir)
	require.NoError(t, err)
}
