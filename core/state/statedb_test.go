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
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

func testAccount(nonce uint64, balance uint64) *types.StateAccount {
	acct := types.NewEmptyStateAccount()
	acct.Nonce = nonce
	acct.Balance = uint256.NewInt(balance)
	return acct
}

// Tests that EIP-161 cleanup deletes exactly the touched accounts that exist
// and are empty, storage root notwithstanding.
func TestDestroyTouchedEmptyAccounts(t *testing.T) {
	var (
		s = New()
		a = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		b = common.HexToAddress("0x00000000000000000000000000000000000000a2")
		c = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	)
	// A is empty despite carrying a non-empty storage root.
	acctA := types.NewEmptyStateAccount()
	acctA.Root = common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")
	s.SetAccount(a, acctA)
	s.SetAccount(b, testAccount(1, 0))

	s.DestroyTouchedEmptyAccounts([]common.Address{a, b, c})

	if s.Exist(a) {
		t.Errorf("account %x: still present, want deleted", a)
	}
	if acct := s.GetAccount(b); acct == nil || acct.Nonce != 1 {
		t.Errorf("account %x: have %+v, want nonce 1", b, acct)
	}
	if s.Exist(c) {
		t.Errorf("account %x: present, want absent", c)
	}
}

// Tests that reverting a nested snapshot leaves writes made before it in
// place through the outer commit.
func TestNestedRollbackPreservesOuterWrites(t *testing.T) {
	var (
		s = New()
		x = common.HexToAddress("0x0000000000000000000000000000000000000042")
	)
	outer := s.Snapshot()
	s.SetNonce(x, 1)

	inner := s.Snapshot()
	s.SetNonce(x, 9)
	if err := s.RevertToSnapshot(inner); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if err := s.DiscardSnapshot(outer); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if acct := s.GetAccount(x); acct == nil || acct.Nonce != 1 {
		t.Fatalf("account: have %+v, want nonce 1", acct)
	}
}

// Tests that the original value observed at the start of a transaction is
// stable across sibling writes (EIP-2200).
func TestOriginalValueAcrossSiblings(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000007")
		k    = common.HexToHash("0x01")
		v1   = common.HexToHash("0xaa")
		v2   = common.HexToHash("0xbb")
	)
	s.SetAccount(addr, testAccount(0, 1))
	if err := s.SetState(addr, k, v1); err != nil {
		t.Fatalf("set state: %v", err)
	}
	snap := s.Snapshot()
	if have := s.GetCommittedState(addr, k); have != v1 {
		t.Fatalf("original before write: have %x, want %x", have, v1)
	}
	if err := s.SetState(addr, k, v2); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if have := s.GetCommittedState(addr, k); have != v1 {
		t.Fatalf("original after write: have %x, want %x", have, v1)
	}
	if have := s.GetState(addr, k); have != v2 {
		t.Fatalf("current: have %x, want %x", have, v2)
	}
	if err := s.DiscardSnapshot(snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestOriginalValueZeroForCreatedAccounts(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000008")
		k    = common.HexToHash("0x01")
	)
	snap := s.Snapshot()
	s.MarkAccountCreated(addr)
	s.SetAccount(addr, testAccount(1, 0))
	if err := s.SetState(addr, k, common.HexToHash("0xcc")); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if !s.WasAccountCreated(addr) {
		t.Fatal("account not tracked as created")
	}
	if have := s.GetCommittedState(addr, k); have != (common.Hash{}) {
		t.Fatalf("original of created account: have %x, want zero", have)
	}
	if err := s.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if s.WasAccountCreated(addr) {
		t.Fatal("created set survived the outer revert")
	}
}

// Tests that reverting a nested snapshot drops exactly the original-value
// captures made after it.
func TestOriginalCaptureRevert(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000009")
		k1   = common.HexToHash("0x01")
		k2   = common.HexToHash("0x02")
		v1   = common.HexToHash("0xaa")
	)
	s.SetAccount(addr, testAccount(0, 1))
	if err := s.SetState(addr, k1, v1); err != nil {
		t.Fatalf("set state: %v", err)
	}
	outer := s.Snapshot()
	s.GetState(addr, k1) // capture k1's original in the outer frame

	inner := s.Snapshot()
	if err := s.SetState(addr, k1, common.HexToHash("0xbb")); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.SetState(addr, k2, common.HexToHash("0xdd")); err != nil { // captures k2
		t.Fatalf("set state: %v", err)
	}
	if err := s.RevertToSnapshot(inner); err != nil {
		t.Fatalf("revert: %v", err)
	}
	// k1's capture predates the inner frame and must persist; k2's was made
	// inside it and must be gone (its slot reads zero again anyway).
	if have := s.GetCommittedState(addr, k1); have != v1 {
		t.Fatalf("k1 original: have %x, want %x", have, v1)
	}
	if have := s.GetCommittedState(addr, k2); have != (common.Hash{}) {
		t.Fatalf("k2 original: have %x, want zero", have)
	}
	if err := s.RevertToSnapshot(outer); err != nil {
		t.Fatalf("revert: %v", err)
	}
}

func TestSetStateMissingAccount(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	)
	err := s.SetState(addr, common.HexToHash("0x01"), common.HexToHash("0x02"))
	if !errors.Is(err, ErrMissingAccount) {
		t.Fatalf("have %v, want ErrMissingAccount", err)
	}
	if have := s.GetState(addr, common.HexToHash("0x01")); have != (common.Hash{}) {
		t.Fatalf("store mutated by failed write: %x", have)
	}
	if s.JournalLength() != 0 {
		t.Fatalf("journal grew on failed write: %d entries", s.JournalLength())
	}
}

// Tests that writing the current value is a no-op: no journal entry, no
// observable change.
func TestNoopWritesLeaveJournalUntouched(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000002")
		k    = common.HexToHash("0x01")
		v    = common.HexToHash("0xaa")
	)
	s.SetAccount(addr, testAccount(3, 100))
	if err := s.SetState(addr, k, v); err != nil {
		t.Fatalf("set state: %v", err)
	}
	s.SetCode(addr, []byte{0xfe})

	baseline := s.JournalLength()
	s.SetAccount(addr, testAccount(3, 100))
	if err := s.SetState(addr, k, v); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.SetState(addr, common.HexToHash("0x02"), common.Hash{}); err != nil {
		t.Fatalf("zero write to absent slot: %v", err)
	}
	s.SetCode(addr, []byte{0xfe})
	s.SetCode(common.HexToAddress("0x03"), nil) // empty code on absent entry

	if have := s.JournalLength(); have != baseline {
		t.Fatalf("journal length: have %d, want %d", have, baseline)
	}
}

func TestDestroyAccountRevert(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000004")
		k1   = common.HexToHash("0x01")
		k2   = common.HexToHash("0x02")
	)
	s.SetAccount(addr, testAccount(7, 1000))
	s.SetCode(addr, []byte{0x60, 0x00})
	if err := s.SetState(addr, k1, common.HexToHash("0xaa")); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.SetState(addr, k2, common.HexToHash("0xbb")); err != nil {
		t.Fatalf("set state: %v", err)
	}
	snap := s.Snapshot()
	s.DestroyAccount(addr)

	if s.Exist(addr) {
		t.Fatal("account survived destroy")
	}
	if len(s.GetCode(addr)) != 0 {
		t.Fatal("code survived destroy")
	}
	if have := s.GetState(addr, k1); have != (common.Hash{}) {
		t.Fatalf("storage survived destroy: %x", have)
	}
	if err := s.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if acct := s.GetAccount(addr); acct == nil || acct.Nonce != 7 {
		t.Fatalf("account after revert: have %+v, want nonce 7", acct)
	}
	if have := s.GetState(addr, k1); have != common.HexToHash("0xaa") {
		t.Fatalf("slot k1 after revert: have %x, want aa", have)
	}
	if have := s.GetState(addr, k2); have != common.HexToHash("0xbb") {
		t.Fatalf("slot k2 after revert: have %x, want bb", have)
	}
	if have := s.GetCode(addr); len(have) != 2 {
		t.Fatalf("code after revert: have %x", have)
	}
}

func TestAccountDeleteClearsCode(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000005")
	)
	s.SetAccount(addr, testAccount(1, 0))
	s.SetCode(addr, []byte{0x01})

	snap := s.Snapshot()
	s.SetAccount(addr, nil)
	if len(s.GetCode(addr)) != 0 {
		t.Fatal("code survived account deletion")
	}
	if err := s.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if have := s.GetCode(addr); len(have) != 1 || have[0] != 0x01 {
		t.Fatalf("code after revert: have %x, want 01", have)
	}
}

func TestUnknownSnapshot(t *testing.T) {
	s := New()
	if err := s.RevertToSnapshot(42); !errors.Is(err, ErrUnknownSnapshot) {
		t.Fatalf("revert: have %v, want ErrUnknownSnapshot", err)
	}
	if err := s.DiscardSnapshot(42); !errors.Is(err, ErrUnknownSnapshot) {
		t.Fatalf("commit: have %v, want ErrUnknownSnapshot", err)
	}
	// Reverting an id twice fails the second time.
	id := s.Snapshot()
	if err := s.RevertToSnapshot(id); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if err := s.RevertToSnapshot(id); !errors.Is(err, ErrUnknownSnapshot) {
		t.Fatalf("double revert: have %v, want ErrUnknownSnapshot", err)
	}
}

// Tests that restoring an outer snapshot drops every nested one with it.
func TestSnapshotStackDiscipline(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x0000000000000000000000000000000000000006")
	)
	outer := s.Snapshot()
	s.SetNonce(addr, 1)
	inner := s.Snapshot()
	s.SetNonce(addr, 2)

	if err := s.RevertToSnapshot(outer); err != nil {
		t.Fatalf("revert outer: %v", err)
	}
	if s.Exist(addr) {
		t.Fatal("account survived outer revert")
	}
	if err := s.RevertToSnapshot(inner); !errors.Is(err, ErrUnknownSnapshot) {
		t.Fatalf("nested id after outer revert: have %v, want ErrUnknownSnapshot", err)
	}
}

func TestCloneDiscipline(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x000000000000000000000000000000000000000a")
	)
	acct := testAccount(1, 500)
	s.SetAccount(addr, acct)
	s.SetCode(addr, []byte{0x11, 0x22})

	// Mutating the installed value must not affect the store.
	acct.Nonce = 99
	acct.Balance.SetUint64(0)
	if have := s.GetAccount(addr); have.Nonce != 1 || !have.Balance.Eq(uint256.NewInt(500)) {
		t.Fatalf("store aliased caller value: %+v", have)
	}
	// Mutating returned values must not affect the store either.
	ret := s.GetAccount(addr)
	ret.Nonce = 77
	ret.Balance.SetUint64(1)
	code := s.GetCode(addr)
	code[0] = 0xff

	if have := s.GetAccount(addr); have.Nonce != 1 || !have.Balance.Eq(uint256.NewInt(500)) {
		t.Fatalf("store aliased returned account: %+v", have)
	}
	if have := s.GetCode(addr); have[0] != 0x11 {
		t.Fatalf("store aliased returned code: %x", have)
	}
}

func TestEmptyAndExistPredicates(t *testing.T) {
	var (
		s     = New()
		empty = common.HexToAddress("0x00000000000000000000000000000000000000e1")
		full  = common.HexToAddress("0x00000000000000000000000000000000000000e2")
		ghost = common.HexToAddress("0x00000000000000000000000000000000000000e3")
	)
	s.SetAccount(empty, types.NewEmptyStateAccount())
	s.SetAccount(full, testAccount(0, 1))

	if !s.Exist(empty) || !s.Empty(empty) {
		t.Error("empty account: want present and empty")
	}
	if !s.Exist(full) || s.Empty(full) {
		t.Error("funded account: want present and non-empty")
	}
	if s.Exist(ghost) || s.Empty(ghost) {
		t.Error("absent account: want neither present nor empty")
	}
	if acct := s.GetAccountOrEmpty(ghost); !isTotallyEmpty(acct) {
		t.Errorf("absent account default: have %+v, want totally empty", acct)
	}
	if s.GetCodeHash(ghost) != types.EmptyCodeHash {
		t.Error("absent account: want empty code hash")
	}
}

func TestReset(t *testing.T) {
	var (
		s    = New()
		addr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	)
	snap := s.Snapshot()
	s.MarkAccountCreated(addr)
	s.SetAccount(addr, testAccount(1, 1))
	if err := s.SetState(addr, common.HexToHash("0x01"), common.HexToHash("0xaa")); err != nil {
		t.Fatalf("set state: %v", err)
	}
	s.Reset()

	if s.Exist(addr) {
		t.Error("account survived reset")
	}
	if s.WasAccountCreated(addr) {
		t.Error("created mark survived reset")
	}
	if have := s.GetState(addr, common.HexToHash("0x01")); have != (common.Hash{}) {
		t.Errorf("storage survived reset: %x", have)
	}
	if err := s.RevertToSnapshot(snap); !errors.Is(err, ErrUnknownSnapshot) {
		t.Errorf("snapshot survived reset: %v", err)
	}
	if s.JournalLength() != 0 {
		t.Errorf("journal survived reset: %d entries", s.JournalLength())
	}
	// Reset is idempotent.
	s.Reset()
}

// stateSample is a flat copy of the observable store contents, used to
// compare states before and after a snapshot/revert round trip.
type stateSample struct {
	accounts map[common.Address]types.StateAccount
	code     map[common.Address]string
	storage  map[common.Address]map[common.Hash]common.Hash
}

func sampleState(s *StateDB, addrs []common.Address, slots []common.Hash) stateSample {
	sample := stateSample{
		accounts: make(map[common.Address]types.StateAccount),
		code:     make(map[common.Address]string),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
	for _, addr := range addrs {
		if acct := s.GetAccount(addr); acct != nil {
			cpy := *acct
			cpy.Balance = new(uint256.Int).Set(acct.Balance)
			sample.accounts[addr] = cpy
		}
		if code := s.GetCode(addr); len(code) > 0 {
			sample.code[addr] = string(code)
		}
		for _, slot := range slots {
			if value := s.GetState(addr, slot); value != (common.Hash{}) {
				if sample.storage[addr] == nil {
					sample.storage[addr] = make(map[common.Hash]common.Hash)
				}
				sample.storage[addr][slot] = value
			}
		}
	}
	return sample
}

func (a stateSample) equal(b stateSample) bool {
	if len(a.accounts) != len(b.accounts) || len(a.code) != len(b.code) || len(a.storage) != len(b.storage) {
		return false
	}
	for addr, acct := range a.accounts {
		other, ok := b.accounts[addr]
		if !ok || !accountsEqual(&acct, &other) {
			return false
		}
	}
	for addr, code := range a.code {
		if b.code[addr] != code {
			return false
		}
	}
	for addr, slots := range a.storage {
		if len(b.storage[addr]) != len(slots) {
			return false
		}
		for slot, value := range slots {
			if b.storage[addr][slot] != value {
				return false
			}
		}
	}
	return true
}

// Tests that random operation sequences revert cleanly: the state observed
// right after a snapshot is restored exactly by reverting to it.
func TestSnapshotRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	addrs := make([]common.Address, 8)
	for i := range addrs {
		addrs[i] = common.BytesToAddress([]byte{byte(i + 1)})
	}
	slots := make([]common.Hash, 8)
	for i := range slots {
		slots[i] = common.BytesToHash([]byte{byte(i + 1)})
	}
	randomOp := func(s *StateDB) {
		addr := addrs[rng.Intn(len(addrs))]
		switch rng.Intn(6) {
		case 0:
			s.SetAccount(addr, testAccount(uint64(rng.Intn(4)), uint64(rng.Intn(1000))))
		case 1:
			s.SetAccount(addr, nil)
		case 2:
			s.SetCode(addr, []byte{byte(rng.Intn(256))})
		case 3:
			var value common.Hash
			if rng.Intn(3) > 0 {
				value = common.BytesToHash([]byte{byte(rng.Intn(255) + 1)})
			}
			s.SetState(addr, slots[rng.Intn(len(slots))], value) // may fail on absent account
		case 4:
			s.GetState(addr, slots[rng.Intn(len(slots))])
		case 5:
			s.DestroyAccount(addr)
		}
	}
	for round := 0; round < 64; round++ {
		s := New()
		for i := 0; i < 16; i++ {
			randomOp(s)
		}
		snap := s.Snapshot()
		want := sampleState(s, addrs, slots)
		for i := 0; i < 32; i++ {
			randomOp(s)
		}
		if err := s.RevertToSnapshot(snap); err != nil {
			t.Fatalf("round %d: revert: %v", round, err)
		}
		if have := sampleState(s, addrs, slots); !have.equal(want) {
			t.Fatalf("round %d: state mismatch after revert\nhave %+v\nwant %+v", round, have, want)
		}
	}
}
