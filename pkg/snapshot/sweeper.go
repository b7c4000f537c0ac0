/*
 * Copyright 2021-present by Nedim Sabic Sabic
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

package snapshot

import (
	"expvar"

	"github.com/bits-and-blooms/bitset"
	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/vm"
	log "github.com/sirupsen/logrus"
)

var (
	sweeperProtectedPages  = expvar.NewInt("snapshot.sweeper.protected.pages")
	sweeperUnprotectErrors = expvar.NewMap("snapshot.sweeper.unprotect.errors")
)

// Sweeper walks a region page by page and revokes the write permission of
// every present page so a subsequent store traps into the fault handler.
// The sweep covers the half-open [Base, End) range with a page-aligned
// stride. The sweep is idempotent on pages already read-only.
type Sweeper struct {
	mgr      vm.Manager
	pageSize uint64
}

// NewSweeper creates a protection sweeper on top of the virtual memory manager.
func NewSweeper(mgr vm.Manager, pageSize uint64) *Sweeper {
	return &Sweeper{mgr: mgr, pageSize: pageSize}
}

// Protect marks every present page of the region read-only. The returned
// set records the indexes of the pages that were protected, so the exact
// same pages can be reverted on rollback. If a page table entry can't be
// resolved, all pages protected so far within this region are reverted
// and the sweep fails.
func (s *Sweeper) Protect(rgn vm.Region) (*bitset.BitSet, error) {
	pages := bitset.New(rgn.Pages(s.pageSize))
	for addr := rgn.Base.PageAlign(s.pageSize); addr < rgn.End; addr = addr.Inc(s.pageSize) {
		present, err := s.mgr.PagePresent(addr)
		if err != nil {
			log.Warnf("page table walk failed at %s in region %s: %v", addr, rgn, err)
			s.Unprotect(rgn, pages)
			return nil, kerrors.ErrRegionUnmapped
		}
		if !present {
			continue
		}
		if err := s.mgr.SetPageWritable(addr, false); err != nil {
			s.Unprotect(rgn, pages)
			return nil, err
		}
		pages.Set(addr.PageIndex(rgn.Base, s.pageSize))
		sweeperProtectedPages.Add(1)
	}
	return pages, nil
}

// Unprotect grants back the write permission on every page in the set.
func (s *Sweeper) Unprotect(rgn vm.Region, pages *bitset.BitSet) {
	for i, ok := pages.NextSet(0); ok; i, ok = pages.NextSet(i + 1) {
		addr := rgn.Base.PageAlign(s.pageSize).Inc(uint64(i) * s.pageSize)
		if err := s.mgr.SetPageWritable(addr, true); err != nil {
			sweeperUnprotectErrors.Add(err.Error(), 1)
			log.Errorf("unable to lift write protection at %s: %v", addr, err)
		}
	}
}
