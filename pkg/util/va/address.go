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

import "strconv"

// Address represents the memory address
type Address uint64

// Hex returns the hexadecimal representation of the memory address.
func (a Address) String() string   { return strconv.FormatUint(uint64(a), 16) }
func (a Address) Uint64() uint64   { return uint64(a) }
func (a Address) Uintptr() uintptr { return uintptr(a) }
func (a Address) IsZero() bool     { return a == 0 }

// Inc increments the address by given offset.
func (a Address) Inc(offset uint64) Address {
	a += Address(offset)
	return a
}

// Dec decrements the address by given offset.
func (a Address) Dec(offset uint64) Address {
	a -= Address(offset)
	return a
}

// PageAlign rounds down the address to the base
// address of the page frame it falls into.
func (a Address) PageAlign(pageSize uint64) Address {
	return Address(uint64(a) &^ (pageSize - 1))
}

// IsPageAligned determines if the address sits on a page boundary.
func (a Address) IsPageAligned(pageSize uint64) bool {
	return uint64(a)&(pageSize-1) == 0
}

// PageIndex returns the ordinal of the page frame containing
// this address relative to the given base address.
func (a Address) PageIndex(base Address, pageSize uint64) uint {
	return uint((uint64(a) - uint64(base.PageAlign(pageSize))) / pageSize)
}
