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
	"sync"

	"github.com/rabbitstack/memctx/pkg/config"
	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/rabbitstack/memctx/pkg/vm"
)

// Snapshotter manages the snapshot controllers across processes and
// fulfills the fault dispatch contract. Controllers are created lazily
// on the first snapshot request for a process, and torn down through
// the Remove path when the process exits.
type Snapshotter interface {
	vm.FaultHandler
	// Begin activates a new snapshot generation for the process.
	Begin(pid uint32) error
	// End deactivates the outstanding snapshot generation, either
	// restoring the saved pages or discarding them.
	End(pid uint32, restore bool) error
	// Remove forcibly discards the snapshot state of the exiting process.
	Remove(pid uint32)
	// Size returns the number of processes with known snapshot state.
	Size() int
	// Close disposes all controllers discarding any in-flight snapshot.
	Close()
}

type snapshotter struct {
	mu          sync.Mutex
	controllers map[uint32]*Controller
	asm         vm.AddressSpace
	mgr         vm.Manager
	config      *config.Config
}

// NewSnapshotter builds the process snapshotter on top of the address
// space manager and the virtual memory subsystem.
func NewSnapshotter(asm vm.AddressSpace, mgr vm.Manager, config *config.Config) Snapshotter {
	return &snapshotter{
		controllers: make(map[uint32]*Controller),
		asm:         asm,
		mgr:         mgr,
		config:      config,
	}
}

func (s *snapshotter) Begin(pid uint32) error {
	return s.controllerFor(pid).Begin()
}

func (s *snapshotter) End(pid uint32, restore bool) error {
	s.mu.Lock()
	controller, ok := s.controllers[pid]
	s.mu.Unlock()
	if !ok {
		return kerrors.ErrNoActiveSnapshot
	}
	return controller.End(restore)
}

// OnWriteFault routes the write-protection violation to the controller
// owning the snapshot of the faulting process. Faults for processes with
// no snapshot state are never absorbed.
func (s *snapshotter) OnWriteFault(pid uint32, addr va.Address) bool {
	s.mu.Lock()
	controller, ok := s.controllers[pid]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return controller.OnWriteFault(addr)
}

func (s *snapshotter) Remove(pid uint32) {
	s.mu.Lock()
	controller, ok := s.controllers[pid]
	delete(s.controllers, pid)
	s.mu.Unlock()
	if ok {
		controller.Clear()
	}
}

func (s *snapshotter) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}

func (s *snapshotter) Close() {
	s.mu.Lock()
	controllers := make([]*Controller, 0, len(s.controllers))
	for _, controller := range s.controllers {
		controllers = append(controllers, controller)
	}
	s.controllers = make(map[uint32]*Controller)
	s.mu.Unlock()
	for _, controller := range controllers {
		controller.Clear()
	}
}

func (s *snapshotter) controllerFor(pid uint32) *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	controller, ok := s.controllers[pid]
	if !ok {
		controller = NewController(pid, s.asm, s.mgr, s.config.Snapshot)
		s.controllers[pid] = controller
	}
	return controller
}
