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

package downloader

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// PeerLimits bounds the number of items one request to a peer may ask for.
// The values per client family mirror what the respective implementations
// are willing to serve before truncating or disconnecting.
type PeerLimits struct {
	MaxHeaders  int
	MaxBodies   int
	MaxReceipts int
}

// familyLimits maps a client family prefix to its request limits.
var familyLimits = map[string]PeerLimits{
	"besu":         {MaxHeaders: 512, MaxBodies: 128, MaxReceipts: 256},
	"geth":         {MaxHeaders: 192, MaxBodies: 128, MaxReceipts: 256},
	"trinity":      {MaxHeaders: 192, MaxBodies: 128, MaxReceipts: 256},
	"erigon":       {MaxHeaders: 192, MaxBodies: 128, MaxReceipts: 256},
	"reth":         {MaxHeaders: 192, MaxBodies: 128, MaxReceipts: 256},
	"nethermind":   {MaxHeaders: 512, MaxBodies: 256, MaxReceipts: 256},
	"openethereum": {MaxHeaders: 1024, MaxBodies: 256, MaxReceipts: 256},
	"parity":       {MaxHeaders: 1024, MaxBodies: 256, MaxReceipts: 256},
}

// defaultLimits is the conservative fallback for client ids matching no
// known family.
var defaultLimits = PeerLimits{MaxHeaders: 192, MaxBodies: 32, MaxReceipts: 128}

// limitsCache memoizes client-id resolutions. Client id strings repeat for
// every request planned against the same peer, so the normalization and
// prefix scan only runs once per distinct id.
var limitsCache, _ = lru.New(512)

// LimitsFor resolves the request limits for a peer from its advertised
// client id. The id is trimmed and lowercased and matched on its "family/"
// prefix; "parity-ethereum/" counts as parity. Unknown ids resolve to the
// conservative default limits.
func LimitsFor(clientID string) PeerLimits {
	if cached, ok := limitsCache.Get(clientID); ok {
		return cached.(PeerLimits)
	}
	limits := resolveLimits(clientID)
	limitsCache.Add(clientID, limits)
	return limits
}

func resolveLimits(clientID string) PeerLimits {
	id := strings.ToLower(strings.TrimSpace(clientID))
	if strings.HasPrefix(id, "parity-ethereum/") {
		return familyLimits["parity"]
	}
	for family, limits := range familyLimits {
		if strings.HasPrefix(id, family+"/") {
			return limits
		}
	}
	return defaultLimits
}
