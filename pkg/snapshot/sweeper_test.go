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
	"errors"
	"testing"

	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/rabbitstack/memctx/pkg/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 0x1000

// brokenWalkManager simulates an unresolvable page table entry at the given address.
type brokenWalkManager struct {
	*vm.Sim
	brokenAddr va.Address
}

func (m *brokenWalkManager) PagePresent(addr va.Address) (bool, error) {
	if addr == m.brokenAddr {
		return false, errors.New("missing paging level")
	}
	return m.Sim.PagePresent(addr)
}

func TestProtect(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	rgn := vm.Region{Base: 0x1000, End: 0x4000}
	sim.MapRegion(1, rgn)
	// punch a hole in the middle of the region
	sim.UnmapPage(0x2000)

	sweeper := NewSweeper(sim, testPageSize)
	pages, err := sweeper.Protect(rgn)
	require.NoError(t, err)

	// only the present pages are protected
	assert.Equal(t, uint(2), pages.Count())
	assert.True(t, pages.Test(0))
	assert.False(t, pages.Test(1))
	assert.True(t, pages.Test(2))

	assert.Error(t, sim.Write(1, 0x1000, []byte{1}))
	assert.Error(t, sim.Write(1, 0x3000, []byte{1}))
}

func TestProtectRollsBackOnUnresolvablePage(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	rgn := vm.Region{Base: 0x1000, End: 0x4000}
	sim.MapRegion(1, rgn)
	mgr := &brokenWalkManager{Sim: sim, brokenAddr: 0x3000}

	sweeper := NewSweeper(mgr, testPageSize)
	pages, err := sweeper.Protect(rgn)
	require.Nil(t, pages)
	require.ErrorIs(t, err, kerrors.ErrRegionUnmapped)

	// pages protected before the failure are writable again
	assert.NoError(t, sim.Write(1, 0x1000, []byte{1}))
	assert.NoError(t, sim.Write(1, 0x2000, []byte{1}))
}

func TestUnprotect(t *testing.T) {
	sim := vm.NewSim(testPageSize)
	rgn := vm.Region{Base: 0x1000, End: 0x3000}
	sim.MapRegion(1, rgn)

	sweeper := NewSweeper(sim, testPageSize)
	pages, err := sweeper.Protect(rgn)
	require.NoError(t, err)
	require.Equal(t, uint(2), pages.Count())

	sweeper.Unprotect(rgn, pages)
	assert.NoError(t, sim.Write(1, 0x1000, []byte{1}))
	assert.NoError(t, sim.Write(1, 0x2000, []byte{1}))
}
