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

package config

import (
	"fmt"

	"github.com/rabbitstack/irpmon/pkg/request"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	bufferSize  = "queue.buffer-size"
	compression = "queue.compression"
)

// QueueConfig contains the event queue consumer options.
type QueueConfig struct {
	// BufferSize is the size of the buffer passed to each request retrieval.
	BufferSize int `json:"queue.buffer-size" yaml:"queue.buffer-size"`
	// Compression is the algorithm used to compress the queued records (none|zstd|lz4).
	Compression request.Algorithm `json:"queue.compression" yaml:"queue.compression"`

	compression string
}

func (c *QueueConfig) initFromViper(v *viper.Viper) {
	c.BufferSize = v.GetInt(bufferSize)
	c.compression = v.GetString(compression)
}

func (c *QueueConfig) validate() error {
	alg, err := request.ParseAlgorithm(c.compression)
	if err != nil {
		return err
	}
	c.Compression = alg
	if c.BufferSize != 0 && c.BufferSize < request.HeaderSize {
		return fmt.Errorf("%s must be at least %d bytes", bufferSize, request.HeaderSize)
	}
	if c.BufferSize == 0 {
		c.BufferSize = request.MaxSize
	}
	return nil
}

func (c *QueueConfig) addFlags(flags *pflag.FlagSet) {
	flags.Int(bufferSize, request.MaxSize, "Specifies the size of the buffer used to retrieve the queued requests")
	flags.String(compression, "none", "Specifies the algorithm used to compress the queued records (none|zstd|lz4)")
}
