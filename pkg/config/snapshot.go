/*
 * Copyright 2021-2022 by Nedim Sabic Sabic
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
	snapshotPageSize  = "snapshot.page-size"
	snapshotEagerCopy = "snapshot.eager-copy"
	snapshotMaxPages  = "snapshot.max-pages"
)

// SnapshotConfig stores the settings that influence the behaviour of the
// memory snapshot machinery.
type SnapshotConfig struct {
	// PageSize denotes the page frame granularity at which the write
	// protection is applied and page content is saved.
	PageSize uint64 `json:"snapshot.page-size" yaml:"snapshot.page-size" mapstructure:"page-size"`
	// EagerCopy dictates the capture policy. When enabled, every present
	// page of the eligible regions is copied into the vault at snapshot
	// time. By default pages are write-protected and lazily copied on the
	// first write fault.
	EagerCopy bool `json:"snapshot.eager-copy" yaml:"snapshot.eager-copy" mapstructure:"eager-copy"`
	// MaxPages caps the number of saved pages the vault can accumulate
	// within a single snapshot generation. Zero means no limit.
	MaxPages int `json:"snapshot.max-pages" yaml:"snapshot.max-pages" mapstructure:"max-pages"`
}

func (c *SnapshotConfig) initFromViper(v *viper.Viper) {
	c.PageSize = v.GetUint64(snapshotPageSize)
	c.EagerCopy = v.GetBool(snapshotEagerCopy)
	c.MaxPages = v.GetInt(snapshotMaxPages)
}

// AddFlags registers the snapshot machinery flags.
func (c *SnapshotConfig) AddFlags(flags *pflag.FlagSet) {
	flags.Uint64(snapshotPageSize, 4096, "Denotes the page frame granularity at which the write protection is applied")
	flags.Bool(snapshotEagerCopy, false, "Dictates whether all present pages are copied at snapshot time instead of being lazily captured on write faults")
	flags.Int(snapshotMaxPages, 0, "Caps the number of saved pages accumulated within a single snapshot generation. Zero means no limit")
}
