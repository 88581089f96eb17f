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

// Package state implements a journaled, snapshotted in-memory world state
// over accounts, contract code and storage, together with the transient
// store and transaction scope that the EVM drives during execution.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	// ErrMissingAccount is returned when storage is written for an address
	// that has no account.
	ErrMissingAccount = errors.New("missing account")

	// ErrUnknownSnapshot is returned when a revert or commit references a
	// revision id that is not on the snapshot stack.
	ErrUnknownSnapshot = errors.New("unknown snapshot")
)

// recordKind discriminates the three entity classes sharing the journal.
type recordKind uint8

const (
	accountRecord recordKind = iota
	codeRecord
	storageRecord
)

// stateKey addresses a journaled entity: an account, an account's code, or a
// single storage slot.
type stateKey struct {
	kind recordKind
	addr common.Address
	slot common.Hash // set for storageRecord only
}

// stateValue is the previous-value union carried by journal entries, switched
// on the key's record kind.
type stateValue struct {
	account *types.StateAccount // accountRecord
	code    []byte              // codeRecord
	slot    common.Hash         // storageRecord
}

// revision is a world-state snapshot: a unique id bound to a journal
// position and the length of the original-storage capture log at that point.
type revision struct {
	id           int
	journalIndex int
	originLength int
}

// addrSlot identifies one storage slot for the original-value capture log.
type addrSlot struct {
	addr common.Address
	slot common.Hash
}

// StateDB holds accounts, contract code and persistent storage in memory,
// journaling every change so that nested snapshots can be reverted or
// committed independently. It additionally tracks, per outer transaction,
// which accounts were created and what value each observed storage slot held
// when first touched (the EIP-2200 original value).
//
// The store is owned by a single caller; no operation blocks or locks.
type StateDB struct {
	accounts map[common.Address]*types.StateAccount
	code     map[common.Address][]byte
	storage  map[common.Address]map[common.Hash]common.Hash

	journal *Journal[stateKey, stateValue]

	// Transaction-scoped overlays, live only while the revision stack is
	// non-empty.
	createdAccounts mapset.Set[common.Address]
	originStorage   map[common.Address]map[common.Hash]common.Hash
	originLog       []addrSlot

	// Stack of open snapshots, each bound to a journal position. This is
	// the backbone of Snapshot and RevertToSnapshot.
	validRevisions []revision
	nextRevisionId int
}

// New creates an empty world state.
func New() *StateDB {
	return &StateDB{
		accounts:        make(map[common.Address]*types.StateAccount),
		code:            make(map[common.Address][]byte),
		storage:         make(map[common.Address]map[common.Hash]common.Hash),
		journal:         NewJournal[stateKey, stateValue](),
		createdAccounts: mapset.NewThreadUnsafeSet[common.Address](),
		originStorage:   make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// Exist reports whether an account is present for the given address.
func (s *StateDB) Exist(addr common.Address) bool {
	return s.accounts[addr] != nil
}

// Empty reports whether an account is present for the given address and is
// empty per EIP-161 (zero nonce, zero balance, no code). Absent accounts are
// not empty in this sense; use Exist to distinguish.
func (s *StateDB) Empty(addr common.Address) bool {
	acct := s.accounts[addr]
	return acct != nil && isEmpty(acct)
}

// GetAccount returns a copy of the account at addr, or nil if absent.
func (s *StateDB) GetAccount(addr common.Address) *types.StateAccount {
	if acct := s.accounts[addr]; acct != nil {
		return acct.Copy()
	}
	return nil
}

// GetAccountOrEmpty returns a copy of the account at addr, or a fresh empty
// account if absent. The store is not modified.
func (s *StateDB) GetAccountOrEmpty(addr common.Address) *types.StateAccount {
	if acct := s.accounts[addr]; acct != nil {
		return acct.Copy()
	}
	return newEmptyAccount()
}

// GetNonce returns the nonce of the account at addr, or zero if absent.
func (s *StateDB) GetNonce(addr common.Address) uint64 {
	if acct := s.accounts[addr]; acct != nil {
		return acct.Nonce
	}
	return 0
}

// GetBalance returns a copy of the balance of the account at addr, or zero
// if absent.
func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if acct := s.accounts[addr]; acct != nil && acct.Balance != nil {
		return new(uint256.Int).Set(acct.Balance)
	}
	return new(uint256.Int)
}

// GetCodeHash returns the code hash of the account at addr, or the empty
// code hash if absent.
func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	if acct := s.accounts[addr]; acct != nil {
		return common.BytesToHash(codeHashOf(acct))
	}
	return types.EmptyCodeHash
}

// GetStorageRoot returns the storage root of the account at addr, or the
// empty root hash if absent.
func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash {
	if acct := s.accounts[addr]; acct != nil {
		return acct.Root
	}
	return types.EmptyRootHash
}

// GetCode returns a copy of the code stored for addr; absent code is empty.
func (s *StateDB) GetCode(addr common.Address) []byte {
	return bytes.Clone(s.code[addr])
}

// GetCodeSize returns the length of the code stored for addr.
func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.code[addr])
}

// SetAccount installs, overwrites or (with a nil account) deletes the account
// at addr. Deleting an account also clears its code. Installing a value equal
// to the current one is a no-op and leaves the journal untouched.
func (s *StateDB) SetAccount(addr common.Address, acct *types.StateAccount) {
	prev := s.accounts[addr]
	if acct == nil {
		if prev == nil {
			return
		}
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: accountRecord, addr: addr},
			Prev: &stateValue{account: prev.Copy()},
			Kind: EntryDeleted,
		})
		delete(s.accounts, addr)
		s.removeCode(addr)
		return
	}
	if prev == nil {
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: accountRecord, addr: addr},
			Kind: EntryCreated,
		})
		s.accounts[addr] = acct.Copy()
		return
	}
	if accountsEqual(prev, acct) {
		return
	}
	s.journal.Append(JournalEntry[stateKey, stateValue]{
		Key:  stateKey{kind: accountRecord, addr: addr},
		Prev: &stateValue{account: prev.Copy()},
		Kind: EntryUpdated,
	})
	s.accounts[addr] = acct.Copy()
}

// SetNonce sets the nonce of the account at addr, creating the account if it
// does not exist.
func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	acct := s.GetAccountOrEmpty(addr)
	acct.Nonce = nonce
	s.SetAccount(addr, acct)
}

// SetBalance sets the balance of the account at addr, creating the account
// if it does not exist.
func (s *StateDB) SetBalance(addr common.Address, balance *uint256.Int) {
	acct := s.GetAccountOrEmpty(addr)
	acct.Balance = new(uint256.Int).Set(balance)
	s.SetAccount(addr, acct)
}

// AddBalance adds amount to the balance of the account at addr, creating the
// account if it does not exist.
func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	acct := s.GetAccountOrEmpty(addr)
	acct.Balance = new(uint256.Int).Add(acct.Balance, amount)
	s.SetAccount(addr, acct)
}

// SubBalance subtracts amount from the balance of the account at addr,
// creating the account if it does not exist.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	acct := s.GetAccountOrEmpty(addr)
	acct.Balance = new(uint256.Int).Sub(acct.Balance, amount)
	s.SetAccount(addr, acct)
}

// SetStorageRoot sets the storage root field of the account at addr,
// creating the account if it does not exist.
func (s *StateDB) SetStorageRoot(addr common.Address, root common.Hash) {
	acct := s.GetAccountOrEmpty(addr)
	acct.Root = root
	s.SetAccount(addr, acct)
}

// SetCode stores code for addr. Empty code deletes the stored entry; storing
// code equal to the current code is a no-op.
func (s *StateDB) SetCode(addr common.Address, code []byte) {
	prev, ok := s.code[addr]
	if len(code) == 0 {
		if !ok {
			return
		}
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: codeRecord, addr: addr},
			Prev: &stateValue{code: bytes.Clone(prev)},
			Kind: EntryDeleted,
		})
		delete(s.code, addr)
		return
	}
	if ok {
		if bytes.Equal(prev, code) {
			return
		}
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: codeRecord, addr: addr},
			Prev: &stateValue{code: bytes.Clone(prev)},
			Kind: EntryUpdated,
		})
	} else {
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: codeRecord, addr: addr},
			Kind: EntryCreated,
		})
	}
	s.code[addr] = bytes.Clone(code)
}

// removeCode journals and deletes the code entry for addr, if any.
func (s *StateDB) removeCode(addr common.Address) {
	prev, ok := s.code[addr]
	if !ok {
		return
	}
	s.journal.Append(JournalEntry[stateKey, stateValue]{
		Key:  stateKey{kind: codeRecord, addr: addr},
		Prev: &stateValue{code: bytes.Clone(prev)},
		Kind: EntryDeleted,
	})
	delete(s.code, addr)
}

// DestroyAccount removes the account at addr along with its storage and
// code. All removals are journaled, so a surrounding snapshot revert
// restores the account intact.
func (s *StateDB) DestroyAccount(addr common.Address) {
	if slots, ok := s.storage[addr]; ok {
		// Deterministic clearing order keeps the journal reproducible.
		keys := make([]common.Hash, 0, len(slots))
		for slot := range slots {
			keys = append(keys, slot)
		}
		sort.Slice(keys, func(i, j int) bool {
			return bytes.Compare(keys[i][:], keys[j][:]) < 0
		})
		for _, slot := range keys {
			prev := slots[slot]
			s.journal.Append(JournalEntry[stateKey, stateValue]{
				Key:  stateKey{kind: storageRecord, addr: addr, slot: slot},
				Prev: &stateValue{slot: prev},
				Kind: EntryDeleted,
			})
		}
		delete(s.storage, addr)
	}
	s.SetAccount(addr, nil)
}

// DestroyTouchedEmptyAccounts deletes, per EIP-161, every touched account
// that exists and is empty. Absent and non-empty addresses are ignored. The
// deletions are journaled normally and follow the order of the input.
func (s *StateDB) DestroyTouchedEmptyAccounts(touched []common.Address) {
	for _, addr := range touched {
		if acct := s.accounts[addr]; acct != nil && isEmpty(acct) {
			s.DestroyAccount(addr)
		}
	}
}

// MarkAccountCreated records that addr was first created within the current
// outer transaction. Created accounts read zero original storage values.
func (s *StateDB) MarkAccountCreated(addr common.Address) {
	if len(s.validRevisions) == 0 {
		return
	}
	s.createdAccounts.Add(addr)
}

// WasAccountCreated reports whether addr was marked created within the
// current outer transaction.
func (s *StateDB) WasAccountCreated(addr common.Address) bool {
	return s.createdAccounts.Contains(addr)
}

// GetState returns the value of the given storage slot, or the zero hash if
// unset. Reading a slot fixes its original value for the rest of the outer
// transaction.
func (s *StateDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	value := s.storage[addr][slot]
	s.captureOrigin(addr, slot, value)
	return value
}

// GetCommittedState returns the value the slot held when it was first
// observed in the current outer transaction (the EIP-2200 original value).
// Slots of accounts created in this transaction read as zero. Outside a
// transaction, the current value is its own original.
func (s *StateDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	if s.createdAccounts.Contains(addr) {
		return common.Hash{}
	}
	if origin, ok := s.originStorage[addr]; ok {
		if value, ok := origin[slot]; ok {
			return value
		}
	}
	return s.storage[addr][slot]
}

// SetState writes value to the given storage slot. Writing the zero hash
// clears the slot. The write fails with ErrMissingAccount if no account
// exists at addr, leaving the store untouched.
func (s *StateDB) SetState(addr common.Address, slot common.Hash, value common.Hash) error {
	if s.accounts[addr] == nil {
		return fmt.Errorf("%w: %x", ErrMissingAccount, addr)
	}
	prev, ok := s.storage[addr][slot]
	s.captureOrigin(addr, slot, prev)

	zero := value == (common.Hash{})
	switch {
	case zero && !ok:
		return nil
	case zero:
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: storageRecord, addr: addr, slot: slot},
			Prev: &stateValue{slot: prev},
			Kind: EntryDeleted,
		})
		delete(s.storage[addr], slot)
		if len(s.storage[addr]) == 0 {
			delete(s.storage, addr)
		}
	case ok && prev == value:
		return nil
	case ok:
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: storageRecord, addr: addr, slot: slot},
			Prev: &stateValue{slot: prev},
			Kind: EntryUpdated,
		})
		s.storage[addr][slot] = value
	default:
		s.journal.Append(JournalEntry[stateKey, stateValue]{
			Key:  stateKey{kind: storageRecord, addr: addr, slot: slot},
			Kind: EntryCreated,
		})
		if s.storage[addr] == nil {
			s.storage[addr] = make(map[common.Hash]common.Hash)
		}
		s.storage[addr][slot] = value
	}
	return nil
}

// captureOrigin records the value a slot held at its first observation in
// the current outer transaction. Later observations never rerecord it.
// Accounts created within the transaction are skipped: their original values
// are zero by definition.
func (s *StateDB) captureOrigin(addr common.Address, slot common.Hash, value common.Hash) {
	if len(s.validRevisions) == 0 || s.createdAccounts.Contains(addr) {
		return
	}
	origin := s.originStorage[addr]
	if origin == nil {
		origin = make(map[common.Hash]common.Hash)
		s.originStorage[addr] = origin
	}
	if _, ok := origin[slot]; ok {
		return
	}
	origin[slot] = value
	s.originLog = append(s.originLog, addrSlot{addr: addr, slot: slot})
}

// Snapshot returns an identifier for the current revision of the state.
// Opening the outermost snapshot begins a new transaction: the created
// account set and the original storage captures are discarded.
func (s *StateDB) Snapshot() int {
	if len(s.validRevisions) == 0 {
		s.clearTxOverlays()
	}
	id := s.nextRevisionId
	s.nextRevisionId++
	s.validRevisions = append(s.validRevisions, revision{
		id:           id,
		journalIndex: s.journal.Snapshot(),
		originLength: len(s.originLog),
	})
	return id
}

// RevertToSnapshot undoes all changes made since the given snapshot was
// taken and drops it, together with any snapshot opened after it, from the
// stack. Ids not on the stack fail with ErrUnknownSnapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	idx, err := s.findRevision(id)
	if err != nil {
		return err
	}
	rev := s.validRevisions[idx]
	if err := s.journal.Revert(rev.journalIndex, s.revertEntry); err != nil {
		return err
	}
	// Drop exactly the original-value captures made after the snapshot.
	for i := len(s.originLog) - 1; i >= rev.originLength; i-- {
		ref := s.originLog[i]
		if origin, ok := s.originStorage[ref.addr]; ok {
			delete(origin, ref.slot)
			if len(origin) == 0 {
				delete(s.originStorage, ref.addr)
			}
		}
	}
	s.originLog = s.originLog[:rev.originLength]
	s.validRevisions = s.validRevisions[:idx]
	if len(s.validRevisions) == 0 {
		s.clearTxOverlays()
	}
	return nil
}

// DiscardSnapshot commits the changes made since the given snapshot and drops
// it, together with any snapshot opened after it, from the stack. The journal
// entries recorded since the snapshot are discarded: a later revert of an
// enclosing snapshot restores only the entities that were already journaled
// before this snapshot was taken. Closing the outermost snapshot ends the
// transaction.
func (s *StateDB) DiscardSnapshot(id int) error {
	idx, err := s.findRevision(id)
	if err != nil {
		return err
	}
	rev := s.validRevisions[idx]
	if err := s.journal.Commit(rev.journalIndex, nil); err != nil {
		return err
	}
	s.validRevisions = s.validRevisions[:idx]
	if len(s.validRevisions) == 0 {
		s.clearTxOverlays()
	}
	return nil
}

// Reset drops all accounts, code, storage, journal entries and snapshots,
// returning the store to its initial empty state. It never fails and may be
// called at any time; previously issued snapshot ids become unknown.
func (s *StateDB) Reset() {
	s.accounts = make(map[common.Address]*types.StateAccount)
	s.code = make(map[common.Address][]byte)
	s.storage = make(map[common.Address]map[common.Hash]common.Hash)
	s.journal.Reset()
	s.validRevisions = s.validRevisions[:0]
	s.nextRevisionId = 0
	s.clearTxOverlays()
}

// JournalLength returns the number of entries currently in the change
// journal. Set-equal-to-current operations leave it unchanged.
func (s *StateDB) JournalLength() int {
	return s.journal.Length()
}

func (s *StateDB) clearTxOverlays() {
	s.createdAccounts = mapset.NewThreadUnsafeSet[common.Address]()
	s.originStorage = make(map[common.Address]map[common.Hash]common.Hash)
	s.originLog = s.originLog[:0]
}

// findRevision locates a snapshot id on the revision stack.
func (s *StateDB) findRevision(id int) (int, error) {
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= id
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != id {
		return 0, fmt.Errorf("%w: revision id %v", ErrUnknownSnapshot, id)
	}
	return idx, nil
}

// revertEntry reconstitutes the map state for one journal entry. It is
// idempotent: replaying an already applied entry converges to the same maps.
func (s *StateDB) revertEntry(entry JournalEntry[stateKey, stateValue]) error {
	key := entry.Key
	switch key.kind {
	case accountRecord:
		switch entry.Kind {
		case EntryCreated:
			delete(s.accounts, key.addr)
		case EntryUpdated, EntryDeleted:
			s.accounts[key.addr] = entry.Prev.account.Copy()
		}
	case codeRecord:
		switch entry.Kind {
		case EntryCreated:
			delete(s.code, key.addr)
		case EntryUpdated, EntryDeleted:
			s.code[key.addr] = bytes.Clone(entry.Prev.code)
		}
	case storageRecord:
		switch entry.Kind {
		case EntryCreated:
			if slots, ok := s.storage[key.addr]; ok {
				delete(slots, key.slot)
				if len(slots) == 0 {
					delete(s.storage, key.addr)
				}
			}
		case EntryUpdated, EntryDeleted:
			if s.storage[key.addr] == nil {
				s.storage[key.addr] = make(map[common.Hash]common.Hash)
			}
			s.storage[key.addr][key.slot] = entry.Prev.slot
		}
	}
	return nil
}
