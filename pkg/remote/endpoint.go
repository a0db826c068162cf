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
	"fmt"
	"net"
	"strings"
)

const (
	tcpScheme  = "tcp://"
	pipeScheme = "npipe:///"
	pipePrefix = `\\.\pipe\`
)

// isPipe determines if the endpoint designates the named pipe.
func isPipe(endpoint string) bool {
	return strings.HasPrefix(endpoint, pipeScheme) || strings.HasPrefix(endpoint, pipePrefix)
}

// transformPipePath takes the pipe endpoint defined as URI like npipe:///irpmon
// and transforms it into \\.\pipe\irpmon.
func transformPipePath(name string) string {
	if strings.HasPrefix(name, pipeScheme) {
		return pipePrefix + strings.TrimPrefix(name, pipeScheme)
	}
	return name
}

func tcpAddr(endpoint string) (string, error) {
	addr := strings.TrimPrefix(endpoint, tcpScheme)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %v", endpoint, err)
	}
	return addr, nil
}

// Listen creates the listener for the endpoint. Endpoints are either
// tcp://host:port or named pipes given as npipe:///name.
func Listen(endpoint string) (net.Listener, error) {
	if isPipe(endpoint) {
		return listenPipe(transformPipePath(endpoint))
	}
	addr, err := tcpAddr(endpoint)
	if err != nil {
		return nil, err
	}
	return net.Listen("tcp", addr)
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	if isPipe(endpoint) {
		return dialPipe(ctx, transformPipePath(endpoint))
	}
	addr, err := tcpAddr(endpoint)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
