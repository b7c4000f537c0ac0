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

import "github.com/rabbitstack/memctx/pkg/util/va"

// AddressSpace enumerates the memory mappings of a process. The returned
// slice reflects the process mappings at call time and is a one-shot,
// finite enumeration.
type AddressSpace interface {
	// Regions returns all memory regions of the process identified by pid.
	Regions(pid uint32) ([]Region, error)
}

// Manager abstracts the page table walk and the protection bit mutation
// primitives of the underlying virtual memory subsystem. Implementors
// substitute the host platform mechanism, e.g. a page table walker for a
// kernel-level port, the anonymous mmap arena, or the address space
// simulator employed in tests.
type Manager interface {
	// PagePresent determines if a physical page is currently mapped at the
	// given address. The error is non-nil when the page table entry can't
	// be resolved, e.g. an intermediate paging level is missing.
	PagePresent(addr va.Address) (bool, error)
	// SetPageWritable grants or revokes the write permission
	// on the single page containing the given address.
	SetPageWritable(addr va.Address, writable bool) error
	// ReadPage fetches the full content of the page at the given address.
	ReadPage(addr va.Address) ([]byte, error)
	// WritePage copies the buffer over the page at the given address.
	// The write is performed on behalf of the kernel, so it succeeds
	// regardless of the page protection bits.
	WritePage(addr va.Address, b []byte) error
}

// FaultHandler is the contract between the fault dispatch subsystem and
// the snapshot machinery. The dispatcher invokes OnWriteFault synchronously
// when a write-protection violation is trapped. The return value tells the
// dispatcher whether the fault was absorbed, in which case the faulting
// write is retried, or whether it should be delivered to the process as a
// fatal signal.
type FaultHandler interface {
	OnWriteFault(pid uint32, addr va.Address) bool
}
