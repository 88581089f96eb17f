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
	"bytes"

	"github.com/ethereum/go-ethereum/core/types"
)

// newEmptyAccount returns a fresh account with zero nonce, zero balance and
// the empty code and storage hashes.
func newEmptyAccount() *types.StateAccount {
	return types.NewEmptyStateAccount()
}

// codeHashOf normalizes an account's code hash: a nil or empty CodeHash field
// counts as the empty code hash.
func codeHashOf(acct *types.StateAccount) []byte {
	if len(acct.CodeHash) == 0 {
		return types.EmptyCodeHash[:]
	}
	return acct.CodeHash
}

// isEmpty reports whether the account is empty per EIP-161: zero nonce, zero
// balance and no code.
func isEmpty(acct *types.StateAccount) bool {
	return acct.Nonce == 0 &&
		(acct.Balance == nil || acct.Balance.IsZero()) &&
		bytes.Equal(codeHashOf(acct), types.EmptyCodeHash[:])
}

// isTotallyEmpty reports whether the account is empty and additionally has an
// empty storage root.
func isTotallyEmpty(acct *types.StateAccount) bool {
	return isEmpty(acct) && acct.Root == types.EmptyRootHash
}

// hasCodeOrNonce reports whether the account carries a nonzero nonce or any
// code, the EIP-684 collision predicate.
func hasCodeOrNonce(acct *types.StateAccount) bool {
	return acct.Nonce != 0 || !bytes.Equal(codeHashOf(acct), types.EmptyCodeHash[:])
}

// isContract reports whether the account's code hash differs from the empty
// code hash.
func isContract(acct *types.StateAccount) bool {
	return !bytes.Equal(codeHashOf(acct), types.EmptyCodeHash[:])
}

// accountsEqual reports field-wise equality of two accounts, treating a nil
// balance as zero and a missing code hash as the empty code hash.
func accountsEqual(a, b *types.StateAccount) bool {
	if a.Nonce != b.Nonce || a.Root != b.Root {
		return false
	}
	if !bytes.Equal(codeHashOf(a), codeHashOf(b)) {
		return false
	}
	abal, bbal := a.Balance, b.Balance
	switch {
	case abal == nil && bbal == nil:
		return true
	case abal == nil:
		return bbal.IsZero()
	case bbal == nil:
		return abal.IsZero()
	}
	return abal.Eq(bbal)
}
