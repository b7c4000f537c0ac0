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
	"fmt"
	"sort"
	"strings"
)

func (c *Config) printLine(buffer *bytes.Buffer, maxLength int, key string, value string) {
	if value != "" {
		buffer.WriteString("\n\t")
		buffer.WriteString(key)
		buffer.WriteString(" ")
		buffer.WriteString(strings.Repeat(".", maxLength-len(key)+5))
		buffer.WriteString(" ")
		buffer.WriteString(value)
	}
}

// Print returns the string with all the config options pretty-printed.
func (c *Config) Print() string {
	settings := c.viper.AllSettings()
	flat := make(map[string]string)
	flatten("", settings, flat)

	keys := make([]string, 0, len(flat))
	maxLength := 0
	for k := range flat {
		keys = append(keys, k)
		if len(k) > maxLength {
			maxLength = len(k)
		}
	}
	sort.Strings(keys)

	var buffer bytes.Buffer
	for _, k := range keys {
		c.printLine(&buffer, maxLength, k, flat[k])
	}
	return buffer.String()
}

func flatten(prefix string, value interface{}, flat map[string]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, entry := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, entry, flat)
		}
	default:
		flat[prefix] = fmt.Sprintf("%v", v)
	}
}
