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
	"sync"
	"unsafe"

	"github.com/rabbitstack/memctx/pkg/util/va"
	"golang.org/x/sys/unix"
)

// Arena is a Manager implementation backed by a single contiguous
// anonymous mmap allocation. Page protection maps directly to mprotect,
// so the snapshot machinery can be exercised against genuine page
// permissions of the host.
type Arena struct {
	mu       sync.Mutex
	buf      []byte
	base     va.Address
	pageSize uint64
	// writable tracks the protection of each page frame since
	// there is no portable way to query it back from the kernel
	writable []bool
}

// NewArena maps an anonymous read/write memory area of the given number of pages.
func NewArena(pages int, pageSize uint64) (*Arena, error) {
	buf, err := unix.Mmap(-1, 0, pages*int(pageSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	writable := make([]bool, pages)
	for i := range writable {
		writable[i] = true
	}
	return &Arena{
		buf:      buf,
		base:     va.Address(uintptr(unsafe.Pointer(&buf[0]))),
		pageSize: pageSize,
		writable: writable,
	}, nil
}

// Base returns the address of the first arena page.
func (a *Arena) Base() va.Address { return a.base }

// Regions returns the single anonymous region spanning the whole arena.
func (a *Arena) Regions(pid uint32) ([]Region, error) {
	return []Region{{Base: a.base, End: a.base.Inc(uint64(len(a.buf)))}}, nil
}

// PagePresent determines if the address falls within the arena. All arena
// pages are backed as the mapping is populated on creation.
func (a *Arena) PagePresent(addr va.Address) (bool, error) {
	return a.contains(addr), nil
}

// SetPageWritable toggles the write permission of the arena page via mprotect.
func (a *Arena) SetPageWritable(addr va.Address, writable bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.contains(addr) {
		return ErrPageNotMapped
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	if err := unix.Mprotect(a.page(addr), prot); err != nil {
		return err
	}
	a.writable[a.index(addr)] = writable
	return nil
}

// ReadPage returns a copy of the page content at the given address.
func (a *Arena) ReadPage(addr va.Address) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.contains(addr) {
		return nil, ErrPageNotMapped
	}
	b := make([]byte, a.pageSize)
	copy(b, a.page(addr))
	return b, nil
}

// WritePage copies the buffer over the page at the given address. If the
// page is currently read-only, the protection is lifted for the duration
// of the copy, mirroring a kernel-side store that is exempt from the user
// protection bits.
func (a *Arena) WritePage(addr va.Address, b []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.contains(addr) {
		return ErrPageNotMapped
	}
	writable := a.writable[a.index(addr)]
	if !writable {
		if err := unix.Mprotect(a.page(addr), unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return err
		}
	}
	copy(a.page(addr), b)
	if !writable {
		return unix.Mprotect(a.page(addr), unix.PROT_READ)
	}
	return nil
}

// Close releases the arena mapping.
func (a *Arena) Close() error { return unix.Munmap(a.buf) }

func (a *Arena) contains(addr va.Address) bool {
	return addr >= a.base && addr < a.base.Inc(uint64(len(a.buf)))
}

func (a *Arena) index(addr va.Address) uint {
	return addr.PageIndex(a.base, a.pageSize)
}

func (a *Arena) page(addr va.Address) []byte {
	i := uint64(a.index(addr)) * a.pageSize
	return a.buf[i : i+a.pageSize]
}
