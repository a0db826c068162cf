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
	"fmt"
	"os"
	"runtime"
	"sync"

	semver "github.com/hashicorp/go-version"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Version stores the release information along with the commit that
// produced the release.
type Version struct {
	Semver *semver.Version
	Commit string
	Date   string
}

var version string

var once sync.Once
var sem *semver.Version

// Set initializes the version string as global variable.
func Set(v string) { version = v }

// Get returns the version string.
func Get() string {
	if IsDev() {
		return "dev"
	}
	return version
}

// IsDev determines if this is a dev version.
func IsDev() bool { return version == "0.0.0" || version == "" }

// Sem returns a semver spec. Dev builds are reported as 0.0.0.
func Sem() *semver.Version {
	once.Do(func() {
		v := version
		if IsDev() {
			v = "0.0.0"
		}
		var err error
		sem, err = semver.NewSemver(v)
		if err != nil {
			panic(err)
		}
	})
	return sem
}

// ProductToken returns the tag identifying the client.
func ProductToken() string { return fmt.Sprintf("irpmon/%s", Get()) }

// New parses the version string and returns the version instance.
func New(v, commit, date string) (Version, error) {
	if v == "" {
		v = "0.0.0"
	}
	s, err := semver.NewVersion(v)
	if err != nil {
		return Version{}, fmt.Errorf("invalid semver release %s: %v", v, err)
	}
	return Version{Semver: s, Commit: commit, Date: date}, nil
}

// String returns the release version or dev for unreleased builds.
func (v Version) String() string {
	if v.Semver == nil || v.Semver.Equal(semver.Must(semver.NewVersion("0.0.0"))) {
		return "dev"
	}
	return v.Semver.String()
}

// Render dumps the version information to stdout.
func (v Version) Render() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"Version", v.String()})
	if v.Semver != nil && v.Semver.Prerelease() != "" {
		t.AppendRow(table.Row{"Prerelease", v.Semver.Prerelease()})
	}
	t.AppendRow(table.Row{"Commit", v.Commit})
	t.AppendRow(table.Row{"Build date", v.Date})

	t.AppendSeparator()

	t.AppendRow(table.Row{"Go compiler", runtime.Version()})

	t.Render()
}
