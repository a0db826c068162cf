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

	"github.com/Microsoft/go-winio"
)

// pipeSecurityDescriptor grants access to administrators and the local system only.
const pipeSecurityDescriptor = "D:P(A;;GA;;;BA)(A;;GA;;;SY)"

func listenPipe(npipe string) (net.Listener, error) {
	l, err := winio.ListenPipe(npipe, &winio.PipeConfig{SecurityDescriptor: pipeSecurityDescriptor})
	if err != nil {
		return nil, fmt.Errorf("fail to listen on the %q pipe: %v", npipe, err)
	}
	return l, nil
}

func dialPipe(ctx context.Context, npipe string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, npipe)
}
