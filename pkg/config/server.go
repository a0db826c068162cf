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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	listen = "server.listen"
)

// ServerConfig stores the options of the socket server exposing the monitor.
type ServerConfig struct {
	// Listen is the endpoint the server accepts connections on.
	Listen string `json:"server.listen" yaml:"server.listen"`
}

func (c *ServerConfig) initFromViper(v *viper.Viper) {
	c.Listen = v.GetString(listen)
}

func (c *ServerConfig) addFlags(flags *pflag.FlagSet) {
	flags.String(listen, DefaultEndpoint, "Specifies the endpoint the monitor server listens on (tcp://host:port or npipe:///name)")
}
