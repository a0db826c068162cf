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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	v, err := New("1.4.2-rc1", "3bd1f2a", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, "1.4.2-rc1", v.String())
	assert.Equal(t, "rc1", v.Semver.Prerelease())

	v, err = New("", "3bd1f2a", "")
	require.NoError(t, err)
	assert.Equal(t, "dev", v.String())

	_, err = New("not-a-version", "", "")
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	Set("")
	assert.True(t, IsDev())
	assert.Equal(t, "dev", Get())
	assert.Equal(t, "irpmon/dev", ProductToken())
	assert.Equal(t, "0.0.0", Sem().String())
}
