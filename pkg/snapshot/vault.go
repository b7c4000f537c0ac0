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
	"expvar"

	kerrors "github.com/rabbitstack/memctx/pkg/errors"
	"github.com/rabbitstack/memctx/pkg/util/va"
	"github.com/valyala/bytebufferpool"
)

var (
	vaultCaptures       = expvar.NewInt("snapshot.vault.captures")
	vaultDupCaptures    = expvar.NewInt("snapshot.vault.dup.captures")
	vaultRestoredPages  = expvar.NewInt("snapshot.vault.restored.pages")
	vaultDiscardedPages = expvar.NewInt("snapshot.vault.discarded.pages")
)

// SavedPage keeps the pre-write content of a single page frame along with
// the original virtual address the content was captured from. The page
// buffer is exclusively owned by the vault entry from the moment of the
// capture until the entry is consumed by the restore or discard drains.
type SavedPage struct {
	Addr va.Address
	buf  *bytebufferpool.ByteBuffer
}

// Content returns the saved page content.
func (p *SavedPage) Content() []byte { return p.buf.B }

func (p *SavedPage) free() {
	bytebufferpool.Put(p.buf)
	p.buf = nil
}

// Vault is the ordered store of saved pages accumulated within a single
// snapshot generation. Entries preserve the first-write-fault order. The
// vault guarantees at most one saved page per original address, since
// duplicate entries would make the restore non-deterministic. The vault
// performs no internal locking. The owning controller serializes all
// accesses under the per-process lock.
type Vault struct {
	entries []*SavedPage
	index   map[va.Address]struct{}
}

// NewVault creates an empty saved page store.
func NewVault() *Vault {
	return &Vault{index: make(map[va.Address]struct{})}
}

// Capture appends the page content under the given original address. If
// the address was already captured within this generation, the capture is
// a no-op and false is returned.
func (v *Vault) Capture(addr va.Address, content []byte) bool {
	if _, ok := v.index[addr]; ok {
		vaultDupCaptures.Add(1)
		return false
	}
	buf := bytebufferpool.Get()
	_, _ = buf.Write(content)
	v.entries = append(v.entries, &SavedPage{Addr: addr, buf: buf})
	v.index[addr] = struct{}{}
	vaultCaptures.Add(1)
	return true
}

// Contains determines if a saved page exists for the given address.
func (v *Vault) Contains(addr va.Address) bool {
	_, ok := v.index[addr]
	return ok
}

// Size returns the number of saved pages in the vault.
func (v *Vault) Size() int { return len(v.entries) }

// Bytes returns the total amount of saved page content.
func (v *Vault) Bytes() uint64 {
	var n uint64
	for _, page := range v.entries {
		n += uint64(len(page.buf.B))
	}
	return n
}

// DrainRestore walks the saved pages in insertion order handing each entry
// to the writer. The entry is removed and its buffer released to the pool
// whether or not the writer succeeds, but the drain stops on the first
// failure, leaving the remaining entries in the vault so the caller can
// retry the restore.
func (v *Vault) DrainRestore(writer func(addr va.Address, content []byte) error) error {
	for len(v.entries) > 0 {
		page := v.entries[0]
		v.entries = v.entries[1:]
		delete(v.index, page.Addr)
		err := writer(page.Addr, page.Content())
		page.free()
		if err != nil {
			return &kerrors.RestoreWriteError{Addr: page.Addr.Uint64(), Err: err}
		}
		vaultRestoredPages.Add(1)
	}
	v.entries = nil
	return nil
}

// DrainDiscard removes and releases every saved page unconditionally.
func (v *Vault) DrainDiscard() {
	for _, page := range v.entries {
		delete(v.index, page.Addr)
		page.free()
		vaultDiscardedPages.Add(1)
	}
	v.entries = nil
}
