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
	"encoding/json"
	"os"
	"reflect"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/memctx/pkg/config"
	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/util/rest"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime stats",
	RunE:  stats,
}

var statsConfig = config.NewWithOpts(config.WithStats())

func init() {
	statsConfig.MustViperize(statsCmd)
}

// Stats stores runtime statistics that are retrieved from the expvar endpoint.
type Stats struct {
	LoggerErrors                  map[string]int `json:"logger.errors"`
	SnapshotsTaken                int            `json:"snapshot.taken.count"`
	SnapshotFaultsHandled         int            `json:"snapshot.faults.handled"`
	SnapshotFaultsUnhandled       int            `json:"snapshot.faults.unhandled"`
	SnapshotSetupRollbacks        int            `json:"snapshot.setup.rollbacks"`
	SnapshotCaptureErrors         map[string]int `json:"snapshot.capture.errors"`
	SnapshotTransitionErrors      int            `json:"snapshot.transition.errors"`
	SnapshotEagerCopiedPages      int            `json:"snapshot.eager.copied.pages"`
	SnapshotSweeperProtectedPages int            `json:"snapshot.sweeper.protected.pages"`
	SnapshotSweeperUnprotectErrs  map[string]int `json:"snapshot.sweeper.unprotect.errors"`
	SnapshotVaultCaptures         int            `json:"snapshot.vault.captures"`
	SnapshotVaultDupCaptures      int            `json:"snapshot.vault.dup.captures"`
	SnapshotVaultRestoredPages    int            `json:"snapshot.vault.restored.pages"`
	SnapshotVaultDiscardedPages   int            `json:"snapshot.vault.discarded.pages"`
}

func stats(cmd *cobra.Command, args []string) error {
	c := statsConfig.API
	body, err := rest.Get(rest.WithTransport(c.Transport), rest.WithURI("debug/vars"))
	if err != nil {
		return kerrors.ErrHTTPServerUnavailable(c.Transport, err)
	}
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Value"})
	t.SetStyle(table.StyleLight)

	typ := reflect.TypeOf(stats)
	val := reflect.ValueOf(stats)

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("json")

		if tag == "" {
			continue
		}

		if !val.Field(i).CanInterface() {
			continue
		}

		t.AppendRow(table.Row{tag, val.Field(i).Interface()})
	}

	t.Render()

	return nil
}
