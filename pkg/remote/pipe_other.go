//go:build !windows
// +build !windows

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
	"context"
	"errors"
	"net"
)

var errPipeUnsupported = errors.New("named pipes are only supported on Windows")

func listenPipe(string) (net.Listener, error) { return nil, errPipeUnsupported }

func dialPipe(context.Context, string) (net.Conn, error) { return nil, errPipeUnsupported }
