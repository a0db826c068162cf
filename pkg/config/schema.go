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
	"bytes"
	"text/template"

	"github.com/rabbitstack/irpmon/pkg/request"
)

var schema = `
{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"config-file":		{"type": "string"},
		"monitor": {
			"type": "object",
			"properties": {
				"connector":			{"type": "string", "enum": ["local", "net"]},
				"endpoint":				{"type": "string", "pattern": "^(tcp://.+:[0-9]+|npipe:///.+)$"},
				"connect-timeout":		{"type": "string", "minLength": 2, "pattern": "[0-9]+(ms|s|m)"},
				"inventory":			{"type": "string"},
				"settings-file":		{"type": "string"},
				"compress-threshold":	{"type": "integer", "minimum": 0},
				"defaults": {
					"type": "object",
					"properties": {
						"irp":					{"type": ["array", "null"], "items": {"type": "string", "minLength": 1}},
						"fastio":				{"type": ["array", "null"], "items": {"type": "string", "minLength": 1}},
						"monitor-new-devices":	{"type": "boolean"},
						"monitor-data":			{"type": "boolean"},
						"drivers":				{"type": ["array", "null"], "items": {"type": "string", "pattern": "^\\\\"}}
					},
					"additionalProperties": false
				}
			},
			"additionalProperties": false
		},
		"queue": {
			"type": "object",
			"properties": {
				"buffer-size":	{"type": "integer", "minimum": {{ .MinBufferSize }}, "maximum": {{ .MaxBufferSize }}},
				"compression":	{"type": "string", "enum": ["none", "zstd", "lz4"]}
			},
			"additionalProperties": false
		},
		"server": {
			"type": "object",
			"properties": {
				"listen":		{"type": "string", "pattern": "^(tcp://.+:[0-9]+|npipe:///.+)$"}
			},
			"additionalProperties": false
		},
		"logging": {
			"type": "object",
			"properties": {
				"level":			{"type": "string", "enum": ["debug", "info", "warn", "warning", "error", "DEBUG", "INFO", "WARN", "WARNING", "ERROR"]},
				"max-age":			{"type": "integer", "minimum": 0},
				"max-backups":		{"type": "integer", "minimum": 1},
				"max-size":			{"type": "integer", "minimum": 1},
				"formatter":		{"type": "string", "enum": ["json", "text"]},
				"path":				{"type": "string"},
				"compress":			{"type": "boolean"},
				"log-stdout":		{"type": "boolean"}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}
`

type schemaConfig struct {
	MinBufferSize int
	MaxBufferSize int
}

func interpolateSchema() string {
	tmpl := template.Must(template.New("schema").Parse(schema))

	var b bytes.Buffer
	err := tmpl.Execute(&b, &schemaConfig{
		MinBufferSize: request.HeaderSize,
		MaxBufferSize: request.MaxSize * 16,
	})
	if err != nil {
		return ""
	}

	return b.String()
}
