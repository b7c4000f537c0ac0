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
	"bytes"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitstack/memctx/cmd/memctx/common"
	"github.com/rabbitstack/memctx/pkg/api"
	"github.com/rabbitstack/memctx/pkg/config"
	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/snapshot"
	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/rabbitstack/memctx/pkg/vm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the snapshot workload over the simulated address space along with the API server",
	RunE:  run,
}

var cfg = config.NewWithOpts(config.WithRun())

var (
	restore bool
	// pid of the synthetic process owning the simulated address space
	pid uint32
)

const maxEndRetries = 3

func init() {
	cfg.MustViperize(runCmd)
	runCmd.Flags().BoolVar(&restore, "restore", true, "Restores the saved memory state when the snapshot is deactivated")
	runCmd.Flags().Uint32Var(&pid, "pid", 4242, "Denotes the process identifier bound to the simulated address space")
}

func run(cmd *cobra.Command, args []string) error {
	if err := common.Init(cfg, true); err != nil {
		return err
	}
	log.Infof("running with config settings %s", cfg.Print())
	if err := api.StartServer(cfg); err != nil {
		return err
	}

	pageSize := cfg.Snapshot.PageSize
	sim := vm.NewSim(pageSize)

	heap := vm.Region{Base: va.Address(16 * pageSize), End: va.Address(32 * pageSize)}
	stack := vm.Region{Base: va.Address(64 * pageSize), End: va.Address(72 * pageSize), Stack: true}
	mapped := vm.Region{Base: va.Address(128 * pageSize), End: va.Address(132 * pageSize), FileBacked: true}
	sim.MapRegion(pid, heap)
	sim.MapRegion(pid, stack)
	sim.MapRegion(pid, mapped)

	// stamp each heap page with a distinct pattern
	for addr := heap.Base; addr < heap.End; addr = addr.Inc(pageSize) {
		pattern := byte(addr.PageIndex(heap.Base, pageSize))
		if err := sim.WritePage(addr, bytes.Repeat([]byte{pattern}, int(pageSize))); err != nil {
			return err
		}
	}

	snap := snapshot.NewSnapshotter(sim, sim, cfg)
	defer snap.Close()
	sim.RegisterHandler(snap)

	if err := snap.Begin(pid); err != nil {
		return err
	}

	// dirty half of the heap pages. Each store traps into the fault
	// handler which captures the pre-write page content into the vault
	for addr := heap.Base; addr < heap.End; addr = addr.Inc(2 * pageSize) {
		if err := sim.Write(pid, addr, bytes.Repeat([]byte{0xFF}, int(pageSize))); err != nil {
			return err
		}
	}

	end := func() error {
		err := snap.End(pid, restore)
		if err != nil && kerrors.IsRestoreWriteFailed(err) {
			log.Warnf("retrying snapshot restore: %v", err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(end, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxEndRetries)); err != nil {
		return err
	}

	log.Infof("snapshot workload finished for pid %d. Press Ctrl-C to exit", pid)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	return api.CloseServer()
}
