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

package common

import (
	"github.com/rabbitstack/memctx/pkg/config"
	"github.com/rabbitstack/memctx/pkg/util/log"
)

// Init initializes the configuration and optionally sets up the logger.
func Init(cfg *config.Config, setupLogger bool) error {
	if err := cfg.TryLoadFile(cfg.File()); err != nil {
		return err
	}
	if err := cfg.Init(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if setupLogger {
		return log.InitFromConfig(cfg.Log)
	}
	return nil
}
