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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultCapture(t *testing.T) {
	v := NewVault()

	require.True(t, v.Capture(0x1000, []byte{0xAA, 0xBB}))
	require.True(t, v.Capture(0x2000, []byte{0xCC}))
	assert.Equal(t, 2, v.Size())
	assert.Equal(t, uint64(3), v.Bytes())
	assert.True(t, v.Contains(0x1000))
	assert.False(t, v.Contains(0x3000))

	// second capture on the same address is a no-op
	require.False(t, v.Capture(0x1000, []byte{0xDD}))
	assert.Equal(t, 2, v.Size())
}

func TestVaultDrainRestorePreservesOrder(t *testing.T) {
	v := NewVault()
	require.True(t, v.Capture(0x3000, []byte{3}))
	require.True(t, v.Capture(0x1000, []byte{1}))
	require.True(t, v.Capture(0x2000, []byte{2}))

	var order []va.Address
	err := v.DrainRestore(func(addr va.Address, content []byte) error {
		order = append(order, addr)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []va.Address{0x3000, 0x1000, 0x2000}, order)
	assert.Equal(t, 0, v.Size())
}

func TestVaultDrainRestoreStopsOnFirstFailure(t *testing.T) {
	v := NewVault()
	require.True(t, v.Capture(0x1000, []byte{1}))
	require.True(t, v.Capture(0x2000, []byte{2}))
	require.True(t, v.Capture(0x3000, []byte{3}))

	err := v.DrainRestore(func(addr va.Address, content []byte) error {
		if addr == 0x2000 {
			return errors.New("page gone")
		}
		return nil
	})
	require.Error(t, err)
	require.True(t, kerrors.IsRestoreWriteFailed(err))

	// failed entry is consumed, the rest is preserved for a retry
	assert.Equal(t, 1, v.Size())
	assert.True(t, v.Contains(0x3000))
	assert.False(t, v.Contains(0x2000))
}

func TestVaultDrainDiscard(t *testing.T) {
	v := NewVault()
	require.True(t, v.Capture(0x1000, []byte{1}))
	require.True(t, v.Capture(0x2000, []byte{2}))

	v.DrainDiscard()
	assert.Equal(t, 0, v.Size())
	assert.False(t, v.Contains(0x1000))

	// discarding the empty vault can't fail
	v.DrainDiscard()
	assert.Equal(t, 0, v.Size())
}
