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
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	fsm "github.com/qmuntal/stateless"
	"github.com/rabbitstack/memctx/pkg/config"
	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/rabbitstack/memctx/pkg/vm"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// inactiveState designates the state with no snapshot in flight
	inactiveState = fsm.State("inactive")
	// activeState designates the state with an outstanding snapshot generation
	activeState = fsm.State("active")

	// transitions for begin, end, and clear triggers
	beginTransition = fsm.Trigger("begin")
	endTransition   = fsm.Trigger("end")
	clearTransition = fsm.Trigger("clear")
)

var (
	snapshotsTaken   = expvar.NewInt("snapshot.taken.count")
	faultsHandled    = expvar.NewInt("snapshot.faults.handled")
	faultsUnhandled  = expvar.NewInt("snapshot.faults.unhandled")
	setupRollbacks   = expvar.NewInt("snapshot.setup.rollbacks")
	captureErrors    = expvar.NewMap("snapshot.capture.errors")
	transitionErrors = expvar.NewInt("snapshot.transition.errors")
	eagerCopiedPages = expvar.NewInt("snapshot.eager.copied.pages")
)

const (
	burst = 500 // fault log limiter initial bucket size
	limit = 300 // rate of 300 fault log records per second
)

// sweptRegion associates the region with the set of pages
// the sweeper protected within this snapshot generation.
// Bits are cleared as pages fault and get captured, so on
// teardown only the never-written pages are left to revert.
type sweptRegion struct {
	rgn   vm.Region
	pages *bitset.BitSet
}

// Controller drives the snapshot lifecycle of a single process. The
// lifecycle is modelled as a deterministic finite state machine with the
// inactive and active states. Begin protects the eligible regions and
// transitions to active. End drains the vault, either restoring the saved
// content or discarding it, and transitions back to inactive. Clear is
// the forced teardown fired when the process exits with a snapshot still
// in flight. A single per-process lock serializes the lifecycle
// operations and the write fault handling, since concurrent sweeping
// while faulting could race on the page protection bits.
type Controller struct {
	pid  uint32
	mu   sync.Mutex
	fsm  *fsm.StateMachine
	asm  vm.AddressSpace
	mgr  vm.Manager
	swp  *Sweeper
	vlt  *Vault
	conf config.SnapshotConfig

	// gen identifies the outstanding snapshot generation in log context
	gen   uuid.UUID
	swept []sweptRegion
	lim   *rate.Limiter
}

// NewController builds the snapshot controller for the given process.
func NewController(pid uint32, asm vm.AddressSpace, mgr vm.Manager, conf config.SnapshotConfig) *Controller {
	c := &Controller{
		pid:  pid,
		asm:  asm,
		mgr:  mgr,
		swp:  NewSweeper(mgr, conf.PageSize),
		vlt:  NewVault(),
		conf: conf,
		lim:  rate.NewLimiter(limit, burst),
	}

	c.fsm = fsm.NewStateMachine(inactiveState)
	c.fsm.Configure(inactiveState).
		Permit(beginTransition, activeState).
		PermitReentry(clearTransition)
	c.fsm.Configure(activeState).
		Permit(endTransition, inactiveState).
		Permit(clearTransition, inactiveState)

	return c
}

// Active determines if a snapshot generation is in flight.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isActive()
}

// Vault returns the saved page store of this controller.
func (c *Controller) Vault() *Vault { return c.vlt }

// Begin activates a new snapshot generation. All eligible regions get
// their present pages write-protected, or eagerly copied into the vault
// when the eager copy policy is enabled. The snapshot setup is
// all-or-nothing. If the sweep fails on any region, the protection
// applied to the prior regions is rolled back and the controller remains
// in the inactive state.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isActive() {
		return kerrors.ErrAlreadyActive
	}

	regions, err := c.asm.Regions(c.pid)
	if err != nil {
		return &kerrors.SnapshotSetupError{Err: err}
	}

	if c.conf.EagerCopy {
		err = c.copyRegions(regions)
	} else {
		err = c.protectRegions(regions)
	}
	if err != nil {
		setupRollbacks.Add(1)
		return &kerrors.SnapshotSetupError{Err: err}
	}

	c.gen = uuid.New()
	c.fire(beginTransition)
	snapshotsTaken.Add(1)

	log.Infof("activated snapshot %s for pid %d: %d region(s), %d page(s) protected, %d page(s) copied",
		c.gen, c.pid, len(c.swept), c.protectedPages(), c.vlt.Size())

	return nil
}

// OnWriteFault handles the write-protection violation trapped on the
// given address. The pre-write content of the page, still intact since
// the faulting store hasn't been permitted yet, is captured into the
// vault, and the write permission on the single page is granted back so
// the store can be retried. A repeated fault on an already captured page
// is tolerated as a no-op capture. If the page content can't be saved,
// the snapshot is forcibly discarded, as stale protections could wedge
// future writes, and the fault is reported as unhandled.
func (c *Controller) OnWriteFault(addr va.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isActive() {
		faultsUnhandled.Add(1)
		return false
	}

	page := addr.PageAlign(c.conf.PageSize)
	swept := c.sweptRegionFor(page)
	if swept == nil {
		// the faulting address doesn't belong to any region
		// protected within this snapshot generation
		faultsUnhandled.Add(1)
		return false
	}

	if c.conf.MaxPages > 0 && c.vlt.Size() >= c.conf.MaxPages && !c.vlt.Contains(page) {
		c.fatal(page, errSavedPageLimit(c.conf.MaxPages))
		return false
	}

	content, err := c.mgr.ReadPage(page)
	if err != nil {
		c.fatal(page, err)
		return false
	}
	c.vlt.Capture(page, content)

	if err := c.mgr.SetPageWritable(page, true); err != nil {
		c.fatal(page, err)
		return false
	}
	swept.pages.Clear(page.PageIndex(swept.rgn.Base, c.conf.PageSize))

	faultsHandled.Add(1)
	if c.lim.Allow() {
		log.Debugf("captured page %s for pid %d in snapshot %s", page, c.pid, c.gen)
	}
	return true
}

// End deactivates the snapshot generation. With restore enabled, every
// saved page is copied back to its original address, undoing the writes
// accumulated since the snapshot activation. Otherwise the saved content
// is discarded and the writes are kept. On a restore write failure the
// snapshot remains active and the pages not yet drained stay in the
// vault, so the caller may retry. In both variants the write protection
// still pending on never-written pages is reverted.
func (c *Controller) End(restore bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isActive() {
		return kerrors.ErrNoActiveSnapshot
	}

	bytes := c.vlt.Bytes()
	pages := c.vlt.Size()

	if restore {
		err := c.vlt.DrainRestore(func(addr va.Address, content []byte) error {
			return c.mgr.WritePage(addr, content)
		})
		if err != nil {
			return err
		}
	} else {
		c.vlt.DrainDiscard()
	}

	c.unprotectAll()
	c.fire(endTransition)

	if restore {
		log.Infof("deactivated snapshot %s for pid %d: restored %d page(s), %s",
			c.gen, c.pid, pages, humanize.Bytes(bytes))
	} else {
		log.Infof("deactivated snapshot %s for pid %d: discarded %d page(s), %s",
			c.gen, c.pid, pages, humanize.Bytes(bytes))
	}
	return nil
}

// Clear forcibly discards the snapshot state regardless of the current
// lifecycle phase. This is the teardown path taken when the process
// terminates without restoring.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vlt.DrainDiscard()
	c.unprotectAll()
	c.fire(clearTransition)
}

func (c *Controller) isActive() bool { return c.fsm.MustState() == activeState }

// protectRegions write-protects the present pages of all eligible
// regions. On failure the protection applied so far is reverted.
func (c *Controller) protectRegions(regions []vm.Region) error {
	swept := make([]sweptRegion, 0, len(regions))
	for _, rgn := range regions {
		if !Eligible(rgn) {
			continue
		}
		pages, err := c.swp.Protect(rgn)
		if err != nil {
			for _, s := range swept {
				c.swp.Unprotect(s.rgn, s.pages)
			}
			return err
		}
		swept = append(swept, sweptRegion{rgn: rgn, pages: pages})
	}
	c.swept = swept
	return nil
}

// copyRegions saves the content of every present page of all eligible
// regions into the vault up front. No write protection is applied, so
// the snapshot never depends on the fault dispatch integration, at the
// price of copying pages that are never written.
func (c *Controller) copyRegions(regions []vm.Region) error {
	for _, rgn := range regions {
		if !Eligible(rgn) {
			continue
		}
		for addr := rgn.Base.PageAlign(c.conf.PageSize); addr < rgn.End; addr = addr.Inc(c.conf.PageSize) {
			present, err := c.mgr.PagePresent(addr)
			if err != nil {
				c.vlt.DrainDiscard()
				return kerrors.ErrRegionUnmapped
			}
			if !present {
				continue
			}
			if c.conf.MaxPages > 0 && c.vlt.Size() >= c.conf.MaxPages {
				c.vlt.DrainDiscard()
				return errSavedPageLimit(c.conf.MaxPages)
			}
			content, err := c.mgr.ReadPage(addr)
			if err != nil {
				c.vlt.DrainDiscard()
				return err
			}
			c.vlt.Capture(addr, content)
			eagerCopiedPages.Add(1)
		}
	}
	return nil
}

// fatal tears down the snapshot after an unrecoverable capture failure.
func (c *Controller) fatal(page va.Address, err error) {
	capture := &kerrors.CaptureError{Addr: page.Uint64(), Err: err}
	captureErrors.Add(capture.Error(), 1)
	log.Errorf("discarding snapshot %s for pid %d: %v", c.gen, c.pid, capture)
	c.vlt.DrainDiscard()
	c.unprotectAll()
	c.fire(clearTransition)
	faultsUnhandled.Add(1)
}

func (c *Controller) unprotectAll() {
	for _, s := range c.swept {
		c.swp.Unprotect(s.rgn, s.pages)
	}
	c.swept = nil
}

func (c *Controller) sweptRegionFor(addr va.Address) *sweptRegion {
	for i := range c.swept {
		if c.swept[i].rgn.Contains(addr) {
			return &c.swept[i]
		}
	}
	return nil
}

func (c *Controller) protectedPages() uint {
	var n uint
	for _, s := range c.swept {
		n += s.pages.Count()
	}
	return n
}

func errSavedPageLimit(max int) error {
	return fmt.Errorf("saved page limit of %d page(s) reached", max)
}

func (c *Controller) fire(trigger fsm.Trigger) {
	if err := c.fsm.Fire(trigger); err != nil {
		transitionErrors.Add(1)
		log.Errorf("snapshot state transition failed for pid %d: %v", c.pid, err)
	}
}
