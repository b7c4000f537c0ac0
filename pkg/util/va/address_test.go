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

package va

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageAlign(t *testing.T) {
	assert.Equal(t, Address(0x1000), Address(0x1000).PageAlign(0x1000))
	assert.Equal(t, Address(0x1000), Address(0x1fff).PageAlign(0x1000))
	assert.Equal(t, Address(0x2000), Address(0x2001).PageAlign(0x1000))
	assert.True(t, Address(0x3000).IsPageAligned(0x1000))
	assert.False(t, Address(0x3001).IsPageAligned(0x1000))
}

func TestPageIndex(t *testing.T) {
	base := Address(0x1000)
	assert.Equal(t, uint(0), Address(0x1000).PageIndex(base, 0x1000))
	assert.Equal(t, uint(0), Address(0x1abc).PageIndex(base, 0x1000))
	assert.Equal(t, uint(1), Address(0x2000).PageIndex(base, 0x1000))
	assert.Equal(t, uint(2), Address(0x3fff).PageIndex(base, 0x1000))
}
