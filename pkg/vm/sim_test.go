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

package vm

import (
	"testing"

	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 0x1000

type handlerFunc func(pid uint32, addr va.Address) bool

func (f handlerFunc) OnWriteFault(pid uint32, addr va.Address) bool { return f(pid, addr) }

func TestSimWriteDispatchesFaultHandler(t *testing.T) {
	sim := NewSim(testPageSize)
	sim.MapRegion(1, Region{Base: 0x10000, End: 0x12000})

	var faulted va.Address
	sim.RegisterHandler(handlerFunc(func(pid uint32, addr va.Address) bool {
		faulted = addr
		return sim.SetPageWritable(addr, true) == nil
	}))

	require.NoError(t, sim.SetPageWritable(0x10000, false))
	require.NoError(t, sim.Write(1, 0x10004, []byte{0xCA, 0xFE}))
	assert.Equal(t, va.Address(0x10004), faulted)

	page, err := sim.ReadPage(0x10000)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE}, page[4:6])
}

func TestSimWriteSegfaultsWithoutHandler(t *testing.T) {
	sim := NewSim(testPageSize)
	sim.MapRegion(1, Region{Base: 0x10000, End: 0x11000})

	require.NoError(t, sim.SetPageWritable(0x10000, false))
	require.Error(t, sim.Write(1, 0x10000, []byte{0x01}))

	// unabsorbed faults surface as segmentation violations too
	sim.RegisterHandler(handlerFunc(func(pid uint32, addr va.Address) bool { return false }))
	require.Error(t, sim.Write(1, 0x10000, []byte{0x01}))
}

func TestSimUnmapPage(t *testing.T) {
	sim := NewSim(testPageSize)
	sim.MapRegion(1, Region{Base: 0x10000, End: 0x12000})

	sim.UnmapPage(0x11000)

	present, err := sim.PagePresent(0x11000)
	require.NoError(t, err)
	assert.False(t, present)

	_, err = sim.ReadPage(0x11000)
	assert.ErrorIs(t, err, ErrPageNotMapped)
	assert.ErrorIs(t, sim.WritePage(0x11000, []byte{0x01}), ErrPageNotMapped)
}
