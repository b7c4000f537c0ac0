/*
 * Copyright 2020-2021 by Nedim Sabic Sabic
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
)

var schema = `
{
	"$schema": "http://json-schema.org/draft-07/schema#",

	"type": "object",
	"properties": {
		"snapshot": {
			"type": "object",
			"properties": {
				"page-size":	{"type": ["string", "number"]},
				"eager-copy":	{"type": ["string", "boolean"]},
				"max-pages":	{"type": ["string", "number"]}
			},
			"additionalProperties": false
		},
		"api": {
			"type": "object",
			"properties": {
				"transport":	{"type": "string", "minLength": 3},
				"timeout":		{"type": "string", "minLength": 2, "pattern": "[0-9]+(ms|s|m)"}
			},
			"additionalProperties": false
		},
		"logging": {
			"type": "object",
			"properties": {
				"level": 		{"type": "string", "enum": ["debug", "info", "warn", "warning", "error", "fatal", "panic", "trace"]},
				"max-age": 		{"type": ["string", "number"]},
				"max-backups": 	{"type": ["string", "number"]},
				"max-size": 	{"type": ["string", "number"]},
				"formatter": 	{"type": "string", "enum": [{{ .Formatters }}]},
				"path": 		{"type": "string"},
				"log-stdout": 	{"type": ["string", "boolean"]}
			},
			"additionalProperties": false
		},
		"config-file": {"type": "string"}
	},
	"additionalProperties": false
}
`

// interpolateSchema injects the variable parts into the config schema definition.
func interpolateSchema() string {
	tmpl := template.Must(template.New("schema").Parse(schema))
	var b bytes.Buffer
	err := tmpl.Execute(&b, struct {
		Formatters string
	}{
		`"json", "text"`,
	})
	if err != nil {
		panic(err)
	}
	return b.String()
}
