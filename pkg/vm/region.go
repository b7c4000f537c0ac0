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
	"fmt"

	"github.com/rabbitstack/memctx/pkg/util/va"
)

// Region is a read-only view of a contiguous range of pages in the
// process virtual address space. The address space manager owns the
// region lifetime. The snapshot machinery never mutates the region
// structurally, it only flips the write permission of pages falling
// within the [Base, End) range.
type Region struct {
	// Base is the address of the first page in the region.
	Base va.Address
	// End is the exclusive upper bound of the region.
	End va.Address
	// Stack indicates the region backs the thread stack.
	Stack bool
	// FileBacked indicates the region is mapped from a file
	// rather than being purely anonymous.
	FileBacked bool
}

// String returns the human-readable region representation.
func (r Region) String() string {
	return fmt.Sprintf("[%s, %s) stack: %t file: %t", r.Base, r.End, r.Stack, r.FileBacked)
}

// Size returns the region size in bytes.
func (r Region) Size() uint64 { return r.End.Uint64() - r.Base.Uint64() }

// Pages computes the number of page frames spanned by the region.
func (r Region) Pages(pageSize uint64) uint {
	return uint((r.Size() + pageSize - 1) / pageSize)
}

// Contains determines if the given address falls within the region range.
func (r Region) Contains(addr va.Address) bool {
	return addr >= r.Base && addr < r.End
}

// IsAnonymous determines if the region is anonymous memory, i.e. not
// backing the stack nor mapped from a file.
func (r Region) IsAnonymous() bool { return !r.Stack && !r.FileBacked }
