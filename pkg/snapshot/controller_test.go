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
	"bytes"
	"errors"
	"testing"

	"github.com/rabbitstack/memctx/pkg/config"
	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/rabbitstack/memctx/pkg/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPid = uint32(1)

func testConfig() config.SnapshotConfig {
	return config.SnapshotConfig{PageSize: testPageSize}
}

// fillPage stamps the page at the given address with the byte pattern.
func fillPage(t *testing.T, sim *vm.Sim, addr va.Address, b byte) {
	t.Helper()
	page := bytes.Repeat([]byte{b}, testPageSize)
	require.NoError(t, sim.WritePage(addr, page))
}

func pageContent(t *testing.T, sim *vm.Sim, addr va.Address) []byte {
	t.Helper()
	content, err := sim.ReadPage(addr)
	require.NoError(t, err)
	return content
}

func TestSnapshotRestore(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})
	fillPage(t, sim, 0x1000, 0xAA)
	fillPage(t, sim, 0x2000, 0xBB)

	c := NewController(testPid, sim, sim, testConfig())
	sim.RegisterHandler(handlerFunc(c))

	require.NoError(t, c.Begin())
	require.True(t, c.Active())

	// first write faults, gets captured, and lands in the vault
	require.NoError(t, sim.Write(testPid, 0x1000, bytes.Repeat([]byte{0x11}, testPageSize)))
	assert.Equal(t, 1, c.Vault().Size())
	assert.True(t, c.Vault().Contains(0x1000))

	// the sibling page is still protected
	require.NoError(t, sim.Write(testPid, 0x2000, bytes.Repeat([]byte{0x22}, testPageSize)))
	assert.Equal(t, 2, c.Vault().Size())

	require.NoError(t, c.End(true))
	require.False(t, c.Active())
	assert.Equal(t, 0, c.Vault().Size())

	assert.Equal(t, bytes.Repeat([]byte{0xAA}, testPageSize), pageContent(t, sim, 0x1000))
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, testPageSize), pageContent(t, sim, 0x2000))

	// protection is fully reverted after the teardown
	require.NoError(t, sim.Write(testPid, 0x1000, []byte{0xFF}))
}

func TestSnapshotDiscard(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})
	fillPage(t, sim, 0x1000, 0xAA)

	c := NewController(testPid, sim, sim, testConfig())
	sim.RegisterHandler(handlerFunc(c))

	require.NoError(t, c.Begin())
	require.NoError(t, sim.Write(testPid, 0x1000, bytes.Repeat([]byte{0x11}, testPageSize)))

	require.NoError(t, c.End(false))
	require.False(t, c.Active())
	assert.Equal(t, 0, c.Vault().Size())

	// writes are kept
	assert.Equal(t, bytes.Repeat([]byte{0x11}, testPageSize), pageContent(t, sim, 0x1000))
	// never written page is writable again
	require.NoError(t, sim.Write(testPid, 0x2000, []byte{0x22}))
}

func TestSnapshotExclusivity(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x2000})

	c := NewController(testPid, sim, sim, testConfig())

	require.NoError(t, c.Begin())
	size := c.Vault().Size()
	require.ErrorIs(t, c.Begin(), kerrors.ErrAlreadyActive)
	assert.Equal(t, size, c.Vault().Size())

	require.NoError(t, c.End(false))
	require.ErrorIs(t, c.End(false), kerrors.ErrNoActiveSnapshot)
	require.ErrorIs(t, c.End(true), kerrors.ErrNoActiveSnapshot)
}

func TestNoDoubleCapture(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x2000})
	fillPage(t, sim, 0x1000, 0xAA)

	c := NewController(testPid, sim, sim, testConfig())
	require.NoError(t, c.Begin())

	require.True(t, c.OnWriteFault(0x1000))
	require.True(t, c.OnWriteFault(0x1000))
	assert.Equal(t, 1, c.Vault().Size())
}

func TestScopeFiltering(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x2000, Stack: true})
	sim.MapRegion(testPid, vm.Region{Base: 0x5000, End: 0x6000, FileBacked: true})

	c := NewController(testPid, sim, sim, testConfig())
	sim.RegisterHandler(handlerFunc(c))

	require.NoError(t, c.Begin())

	// no page of the stack or file-backed region is ever protected or captured
	require.NoError(t, sim.Write(testPid, 0x1000, []byte{0x11}))
	require.NoError(t, sim.Write(testPid, 0x5000, []byte{0x22}))
	assert.Equal(t, 0, c.Vault().Size())
}

func TestSetupRollback(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})
	sim.MapRegion(testPid, vm.Region{Base: 0x5000, End: 0x7000})
	mgr := &brokenWalkManager{Sim: sim, brokenAddr: 0x6000}

	c := NewController(testPid, sim, mgr, testConfig())

	err := c.Begin()
	require.Error(t, err)
	require.True(t, kerrors.IsSnapshotSetupFailed(err))
	require.ErrorIs(t, err, kerrors.ErrRegionUnmapped)
	require.False(t, c.Active())

	// all protection applied to the first region was rolled back
	require.NoError(t, sim.Write(testPid, 0x1000, []byte{1}))
	require.NoError(t, sim.Write(testPid, 0x2000, []byte{1}))
	require.NoError(t, sim.Write(testPid, 0x5000, []byte{1}))
}

// unreadableManager simulates a page whose content can't be fetched.
type unreadableManager struct {
	*vm.Sim
	failAddr va.Address
}

func (m *unreadableManager) ReadPage(addr va.Address) ([]byte, error) {
	if addr == m.failAddr {
		return nil, errors.New("faulty hardware corrupted page")
	}
	return m.Sim.ReadPage(addr)
}

func TestCaptureFailureDiscardsSnapshot(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})
	mgr := &unreadableManager{Sim: sim, failAddr: 0x2000}

	c := NewController(testPid, sim, mgr, testConfig())
	require.NoError(t, c.Begin())

	// the fault can't be absorbed and the snapshot is forcibly discarded
	require.False(t, c.OnWriteFault(0x2000))
	require.False(t, c.Active())
	assert.Equal(t, 0, c.Vault().Size())

	// stale protection doesn't wedge future writes
	require.NoError(t, sim.Write(testPid, 0x1000, []byte{1}))
	require.NoError(t, sim.Write(testPid, 0x2000, []byte{1}))
}

// failingWriteManager refuses a number of writes to the given page.
type failingWriteManager struct {
	*vm.Sim
	failAddr va.Address
	fails    int
}

func (m *failingWriteManager) WritePage(addr va.Address, b []byte) error {
	if addr == m.failAddr && m.fails > 0 {
		m.fails--
		return errors.New("write blocked")
	}
	return m.Sim.WritePage(addr, b)
}

func TestRestoreFailureAllowsRetry(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})
	fillPage(t, sim, 0x1000, 0xAA)
	fillPage(t, sim, 0x2000, 0xBB)
	mgr := &failingWriteManager{Sim: sim, failAddr: 0x1000, fails: 1}

	c := NewController(testPid, sim, mgr, testConfig())
	require.NoError(t, c.Begin())

	require.True(t, c.OnWriteFault(0x1000))
	require.True(t, c.OnWriteFault(0x2000))

	err := c.End(true)
	require.Error(t, err)
	require.True(t, kerrors.IsRestoreWriteFailed(err))

	// the snapshot remains active and the un-restored page survives in the vault
	require.True(t, c.Active())
	assert.Equal(t, 1, c.Vault().Size())
	assert.True(t, c.Vault().Contains(0x2000))

	// the retry drains the remainder
	require.NoError(t, c.End(true))
	require.False(t, c.Active())
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, testPageSize), pageContent(t, sim, 0x2000))
}

func TestClear(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})

	c := NewController(testPid, sim, sim, testConfig())
	require.NoError(t, c.Begin())
	require.True(t, c.OnWriteFault(0x1000))

	c.Clear()
	require.False(t, c.Active())
	assert.Equal(t, 0, c.Vault().Size())
	require.NoError(t, sim.Write(testPid, 0x2000, []byte{1}))

	// clearing with no snapshot in flight is benign
	c.Clear()
	require.False(t, c.Active())
}

func TestEagerCopy(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})
	fillPage(t, sim, 0x1000, 0xAA)
	fillPage(t, sim, 0x2000, 0xBB)

	conf := testConfig()
	conf.EagerCopy = true
	c := NewController(testPid, sim, sim, conf)

	require.NoError(t, c.Begin())
	// all present pages were copied up front
	assert.Equal(t, 2, c.Vault().Size())

	// no protection was applied, so writes proceed without faulting
	require.NoError(t, sim.Write(testPid, 0x1000, bytes.Repeat([]byte{0x11}, testPageSize)))

	require.NoError(t, c.End(true))
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, testPageSize), pageContent(t, sim, 0x1000))
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, testPageSize), pageContent(t, sim, 0x2000))
}

func TestSavedPageLimit(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	sim.MapRegion(testPid, vm.Region{Base: 0x1000, End: 0x3000})

	conf := testConfig()
	conf.MaxPages = 1
	c := NewController(testPid, sim, sim, conf)
	sim.RegisterHandler(handlerFunc(c))

	require.NoError(t, c.Begin())
	require.NoError(t, sim.Write(testPid, 0x1000, []byte{1}))

	// breaching the limit tears the snapshot down
	require.Error(t, sim.Write(testPid, 0x2000, []byte{2}))
	require.False(t, c.Active())
	assert.Equal(t, 0, c.Vault().Size())

	// protection was reverted on teardown
	require.NoError(t, sim.Write(testPid, 0x2000, []byte{2}))
}

// handlerFunc adapts the controller to the fault dispatch contract.
func handlerFunc(c *Controller) vm.FaultHandler {
	return faultHandlerFunc(func(pid uint32, addr va.Address) bool {
		return c.OnWriteFault(addr)
	})
}

type faultHandlerFunc func(pid uint32, addr va.Address) bool

func (f faultHandlerFunc) OnWriteFault(pid uint32, addr va.Address) bool { return f(pid, addr) }
