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
	"errors"
	"fmt"
	"sync"

	"github.com/rabbitstack/memctx/pkg/util/va"
)

// ErrPageNotMapped signals an access to an address with no physical page behind it.
var ErrPageNotMapped = errors.New("no physical page mapped at this address")

type simPage struct {
	data     []byte
	writable bool
}

// Sim is an in-memory simulation of the process address space. It
// implements both the AddressSpace and the Manager interfaces and drives
// the registered fault handler on write-protection violations, mimicking
// the fault dispatch subsystem. The demo command and the test suite run
// the snapshot machinery on top of it.
type Sim struct {
	mu       sync.Mutex
	pageSize uint64
	regions  map[uint32][]Region
	pages    map[va.Address]*simPage
	handler  FaultHandler
}

// NewSim builds an empty address space simulation with the given page size.
func NewSim(pageSize uint64) *Sim {
	return &Sim{
		pageSize: pageSize,
		regions:  make(map[uint32][]Region),
		pages:    make(map[va.Address]*simPage),
	}
}

// MapRegion attaches the region to the process mappings and backs every
// page in the [Base, End) range with a zeroed writable page frame.
func (s *Sim) MapRegion(pid uint32, rgn Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[pid] = append(s.regions[pid], rgn)
	for addr := rgn.Base.PageAlign(s.pageSize); addr < rgn.End; addr = addr.Inc(s.pageSize) {
		s.pages[addr] = &simPage{data: make([]byte, s.pageSize), writable: true}
	}
}

// UnmapPage drops the page frame behind the given address. Subsequent
// accesses observe a non-present page.
func (s *Sim) UnmapPage(addr va.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, addr.PageAlign(s.pageSize))
}

// RegisterHandler installs the write fault handler. It stands in for the
// fault dispatch subsystem registration.
func (s *Sim) RegisterHandler(handler FaultHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Regions returns the memory mappings of the given process.
func (s *Sim) Regions(pid uint32) ([]Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regions := make([]Region, len(s.regions[pid]))
	copy(regions, s.regions[pid])
	return regions, nil
}

// PagePresent determines if a page frame backs the given address.
func (s *Sim) PagePresent(addr va.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pages[addr.PageAlign(s.pageSize)]
	return ok, nil
}

// SetPageWritable flips the write permission on the page containing the address.
func (s *Sim) SetPageWritable(addr va.Address, writable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[addr.PageAlign(s.pageSize)]
	if !ok {
		return ErrPageNotMapped
	}
	page.writable = writable
	return nil
}

// ReadPage returns a copy of the page content at the given address.
func (s *Sim) ReadPage(addr va.Address) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[addr.PageAlign(s.pageSize)]
	if !ok {
		return nil, ErrPageNotMapped
	}
	b := make([]byte, len(page.data))
	copy(b, page.data)
	return b, nil
}

// WritePage copies the buffer over the page at the given address. The
// write ignores the protection bits as it happens on behalf of the kernel.
func (s *Sim) WritePage(addr va.Address, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[addr.PageAlign(s.pageSize)]
	if !ok {
		return ErrPageNotMapped
	}
	copy(page.data, b)
	return nil
}

// Write performs a user-space store to the given address. If the target
// page is write-protected, the fault handler is consulted. When the
// handler absorbs the fault the store is retried, otherwise the write
// fails as a segmentation violation would in the hosting environment.
func (s *Sim) Write(pid uint32, addr va.Address, b []byte) error {
	for attempt := 0; attempt < 2; attempt++ {
		s.mu.Lock()
		page, ok := s.pages[addr.PageAlign(s.pageSize)]
		if !ok {
			s.mu.Unlock()
			return ErrPageNotMapped
		}
		if page.writable {
			offset := addr.Uint64() - addr.PageAlign(s.pageSize).Uint64()
			copy(page.data[offset:], b)
			s.mu.Unlock()
			return nil
		}
		handler := s.handler
		s.mu.Unlock()
		// dispatch the write-protection violation. The handler is invoked
		// without holding the lock since it calls back into the manager
		if handler == nil || !handler.OnWriteFault(pid, addr) {
			break
		}
	}
	return fmt.Errorf("segmentation fault: write to protected page at %s", addr)
}
