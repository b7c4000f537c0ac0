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

package app

import (
	"github.com/spf13/cobra"
)

// RootCmd is the entrance to memctx CLI
var RootCmd = &cobra.Command{
	Use:   "memctx",
	Short: "Process memory snapshot and restore facility",
	Long: `
	Memctx captures the writable anonymous portion of the process address
	space at a point in time. The process keeps executing and mutating its
	memory, while the pre-write content of every dirtied page is saved on
	the first write fault. The saved state is later either restored, undoing
	all the writes accumulated since the snapshot, or discarded, committing
	them.
	`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(versionCmd)
}
