/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
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
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
)

func decode(input, output interface{}) error {
	var decoderConfig = &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			byteSizeDecodeHook(),
		),
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// byteSizeDecodeHook permits expressing sizes, such as the page frame
// granularity, in human notation, e.g. `4KB`.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() == reflect.String && to.Kind() == reflect.Uint64 {
			n, err := humanize.ParseBytes(data.(string))
			if err != nil {
				return nil, err
			}
			return n, nil
		}
		return data, nil
	}
}

// tryDecodeSnapshot decodes the snapshot section map. Unlike plain Viper
// value lookups, the decoder tolerates human-readable byte sizes.
func (c *Config) tryDecodeSnapshot() error {
	m := c.viper.GetStringMap("snapshot")
	if len(m) == 0 {
		return nil
	}
	return decode(m, &c.Snapshot)
}
