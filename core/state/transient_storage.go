// Copyright 2025 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownTransientSnapshot is returned when a transient-storage revert or
// commit references a revision id that is not on the snapshot stack.
var ErrUnknownTransientSnapshot = errors.New("unknown transient snapshot")

// transientChange is one undo record: the value a slot held before a write.
type transientChange struct {
	addr common.Address
	slot common.Hash
	prev common.Hash
}

// transientRevision binds a snapshot id to a journal length.
type transientRevision struct {
	id           int
	journalIndex int
}

// TransientStorage is the EIP-1153 per-transaction slot store. Writes are
// undoable through a flat journal of previous values; snapshots form a LIFO
// stack independent of the world state's. The store holds no data across
// transactions: the caller resets it when the outer transaction ends.
type TransientStorage struct {
	storage map[common.Address]map[common.Hash]common.Hash
	journal []transientChange

	validRevisions []transientRevision
	nextRevisionId int
}

// NewTransientStorage creates an empty transient store.
func NewTransientStorage() *TransientStorage {
	return &TransientStorage{
		storage: make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// Get returns the value of the given transient slot, or the zero hash.
func (t *TransientStorage) Get(addr common.Address, slot common.Hash) common.Hash {
	return t.storage[addr][slot]
}

// Set writes value to the given transient slot. The zero hash clears the
// slot; writing the current value is a no-op. Writes never fail.
func (t *TransientStorage) Set(addr common.Address, slot common.Hash, value common.Hash) {
	prev := t.storage[addr][slot]
	if prev == value {
		return
	}
	t.journal = append(t.journal, transientChange{addr: addr, slot: slot, prev: prev})
	t.apply(addr, slot, value)
}

// apply installs a slot value, removing the slot on zero and the address
// sub-map once it has no slots left.
func (t *TransientStorage) apply(addr common.Address, slot common.Hash, value common.Hash) {
	if value == (common.Hash{}) {
		if slots, ok := t.storage[addr]; ok {
			delete(slots, slot)
			if len(slots) == 0 {
				delete(t.storage, addr)
			}
		}
		return
	}
	slots := t.storage[addr]
	if slots == nil {
		slots = make(map[common.Hash]common.Hash)
		t.storage[addr] = slots
	}
	slots[slot] = value
}

// Snapshot returns an identifier for the current revision of the store.
func (t *TransientStorage) Snapshot() int {
	id := t.nextRevisionId
	t.nextRevisionId++
	t.validRevisions = append(t.validRevisions, transientRevision{
		id:           id,
		journalIndex: len(t.journal),
	})
	return id
}

// RevertToSnapshot undoes all writes made since the given snapshot was taken
// and drops it, with any nested snapshots, from the stack.
func (t *TransientStorage) RevertToSnapshot(id int) error {
	idx, err := t.findRevision(id)
	if err != nil {
		return err
	}
	rev := t.validRevisions[idx]
	for i := len(t.journal) - 1; i >= rev.journalIndex; i-- {
		change := t.journal[i]
		t.apply(change.addr, change.slot, change.prev)
	}
	t.journal = t.journal[:rev.journalIndex]
	t.validRevisions = t.validRevisions[:idx]
	return nil
}

// DiscardSnapshot folds the writes made since the given snapshot into the
// enclosing scope, dropping it and any nested snapshots from the stack.
func (t *TransientStorage) DiscardSnapshot(id int) error {
	idx, err := t.findRevision(id)
	if err != nil {
		return err
	}
	t.validRevisions = t.validRevisions[:idx]
	return nil
}

// Reset drops all slots, undo records and snapshots. Transient storage dies
// with the outer transaction; this is the end-of-transaction clear.
func (t *TransientStorage) Reset() {
	t.storage = make(map[common.Address]map[common.Hash]common.Hash)
	t.journal = t.journal[:0]
	t.validRevisions = t.validRevisions[:0]
	t.nextRevisionId = 0
}

func (t *TransientStorage) findRevision(id int) (int, error) {
	for i := len(t.validRevisions) - 1; i >= 0; i-- {
		if t.validRevisions[i].id == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: revision id %v", ErrUnknownTransientSnapshot, id)
}
