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

// Package eth defines the version policy and request descriptors of the eth
// wire protocol as consumed by the full-sync request planner. The transport
// collaborator is responsible for turning descriptors into wire messages.
package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Constants to match up protocol versions and messages.
const (
	ETH66 = 66
	ETH67 = 67
	ETH68 = 68
	ETH69 = 69
	ETH70 = 70
)

// MaxProtocolVersion is the highest eth protocol version understood by the
// planner.
const MaxProtocolVersion = ETH70

// ProtocolVersions are the supported versions of the eth protocol (first is
// primary).
var ProtocolVersions = []uint{ETH70, ETH69, ETH68, ETH67, ETH66}

// ValidVersion reports whether the given protocol version is within the
// range the planner understands. Pre-66 versions are accepted; they simply
// do not carry request ids.
func ValidVersion(version uint) bool {
	return version <= MaxProtocolVersion
}

// SupportsRequestIDs reports whether the given protocol version frames
// requests with the EIP-2481 request id (eth/66 and later).
func SupportsRequestIDs(version uint) bool {
	return version >= ETH66
}

// SupportsPartialReceipts reports whether the given protocol version allows
// a receipt request to specify the first receipt index within the first
// block (eth/70 and later).
func SupportsPartialReceipts(version uint) bool {
	return version >= ETH70
}

// HeaderRequest describes one GetBlockHeaders message: a window of Amount
// headers starting at Origin, with Skip blocks between each and walking
// towards lower numbers when Reverse is set. RequestID is nil below eth/66.
type HeaderRequest struct {
	RequestID *uint64
	Origin    *big.Int
	Amount    uint64
	Skip      uint64
	Reverse   bool
}

// BodyRequest describes one GetBlockBodies message for the given hashes.
// RequestID is nil below eth/66.
type BodyRequest struct {
	RequestID *uint64
	Hashes    []common.Hash
}

// ReceiptRequest describes one GetReceipts message for the given hashes.
// RequestID is nil below eth/66. FirstBlockReceiptIndex is set (to zero) on
// eth/70 and later, where the wire format carries the partial-receipts
// offset, and nil before.
type ReceiptRequest struct {
	RequestID              *uint64
	FirstBlockReceiptIndex *uint64
	Hashes                 []common.Hash
}
