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

// Package downloader plans the requests of a full header/body/receipt sync:
// it splits a workload into request descriptors sized to what the remote
// peer is willing to serve, framed for the peer's protocol version.
package downloader

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/evmts/xvi-sub013/eth/protocols/eth"
)

var (
	headerPlanMeter  = metrics.NewRegisteredMeter("eth/downloader/plan/headers", nil)
	bodyPlanMeter    = metrics.NewRegisteredMeter("eth/downloader/plan/bodies", nil)
	receiptPlanMeter = metrics.NewRegisteredMeter("eth/downloader/plan/receipts", nil)
)

// Planner input validation errors. Each returned error wraps one of these
// and names the offending field.
var (
	ErrInvalidProtocolVersion  = errors.New("invalid protocol version")
	ErrInvalidTotalHeaders     = errors.New("invalid total headers")
	ErrInvalidStartBlockNumber = errors.New("invalid start block number")
	ErrInvalidSkip             = errors.New("invalid skip")
	ErrHeaderRangeUnderflow    = errors.New("header range underflow")
	ErrInvalidInitialRequestID = errors.New("invalid initial request id")
	ErrMissingInitialRequestID = errors.New("missing initial request id")
	ErrInvalidPeerLimit        = errors.New("invalid peer limit")
)

// HeaderQuery describes a header workload to plan against one peer: Total
// headers starting at block Start, with Skip blocks between each, walking
// towards lower numbers when Reverse is set. InitialRequestID seeds the
// per-batch request ids and is required from eth/66 on.
type HeaderQuery struct {
	ClientID         string
	Version          uint
	Start            *big.Int
	Total            int
	Skip             int64
	Reverse          bool
	InitialRequestID *big.Int
}

// HashQuery describes a body or receipt workload to plan against one peer:
// one entry per block hash, in the order the blocks should be delivered.
type HashQuery struct {
	ClientID         string
	Version          uint
	Hashes           []common.Hash
	InitialRequestID *big.Int
}

// Planner chunks sync workloads into protocol-conformant request
// descriptors. It holds no state between invocations beyond the peer-limits
// lookup and is safe for concurrent use.
type Planner struct {
	limits func(clientID string) PeerLimits
}

// NewPlanner creates a planner using the given peer-limits lookup; a nil
// lookup falls back to the built-in client-family table.
func NewPlanner(limits func(clientID string) PeerLimits) *Planner {
	if limits == nil {
		limits = LimitsFor
	}
	return &Planner{limits: limits}
}

// requestIDSeq hands out consecutive request ids, wrapping modulo 2^64.
type requestIDSeq struct {
	next uint64
}

func (s *requestIDSeq) pop() uint64 {
	id := s.next
	s.next++
	return id
}

// requestIDs validates the initial request id against the protocol version
// and returns the id sequence to draw from, or nil when the version does not
// frame requests with ids.
func requestIDs(version uint, initial *big.Int) (*requestIDSeq, error) {
	if !eth.SupportsRequestIDs(version) {
		return nil, nil
	}
	if initial == nil {
		return nil, fmt.Errorf("%w: initialRequestId", ErrMissingInitialRequestID)
	}
	if initial.Sign() < 0 || initial.BitLen() > 64 {
		return nil, fmt.Errorf("%w: initialRequestId %v", ErrInvalidInitialRequestID, initial)
	}
	return &requestIDSeq{next: initial.Uint64()}, nil
}

// PlanHeaderRequests splits a header workload into GetBlockHeaders
// descriptors of at most the peer's header limit each. Batches walk the
// number range in query order; request ids are assigned per batch from
// eth/66 on. A zero Total plans to no batches and consumes no ids.
func (p *Planner) PlanHeaderRequests(q HeaderQuery) ([]eth.HeaderRequest, error) {
	if !eth.ValidVersion(q.Version) {
		return nil, fmt.Errorf("%w: protocolVersion %d", ErrInvalidProtocolVersion, q.Version)
	}
	if q.Total < 0 {
		return nil, fmt.Errorf("%w: totalHeaders %d", ErrInvalidTotalHeaders, q.Total)
	}
	if q.Start == nil || q.Start.Sign() < 0 {
		return nil, fmt.Errorf("%w: startBlockNumber %v", ErrInvalidStartBlockNumber, q.Start)
	}
	if q.Skip < 0 {
		return nil, fmt.Errorf("%w: skip %d", ErrInvalidSkip, q.Skip)
	}
	stride := new(big.Int).Add(big.NewInt(q.Skip), common.Big1)
	if q.Reverse && q.Total > 0 {
		// The deepest batch origin must not walk below the genesis block.
		deepest := new(big.Int).Mul(big.NewInt(int64(q.Total-1)), stride)
		if deepest.Cmp(q.Start) > 0 {
			return nil, fmt.Errorf("%w: startBlockNumber %v too low for %d headers with skip %d",
				ErrHeaderRangeUnderflow, q.Start, q.Total, q.Skip)
		}
	}
	ids, err := requestIDs(q.Version, q.InitialRequestID)
	if err != nil {
		return nil, err
	}
	limits := p.limits(q.ClientID)
	if limits.MaxHeaders <= 0 {
		return nil, fmt.Errorf("%w: maxHeadersPerRequest %d", ErrInvalidPeerLimit, limits.MaxHeaders)
	}
	var (
		requests  []eth.HeaderRequest
		remaining = q.Total
		current   = new(big.Int).Set(q.Start)
	)
	for remaining > 0 {
		limit := min(remaining, limits.MaxHeaders)
		request := eth.HeaderRequest{
			Origin:  new(big.Int).Set(current),
			Amount:  uint64(limit),
			Skip:    uint64(q.Skip),
			Reverse: q.Reverse,
		}
		if ids != nil {
			id := ids.pop()
			request.RequestID = &id
		}
		requests = append(requests, request)

		advance := new(big.Int).Mul(big.NewInt(int64(limit)), stride)
		if q.Reverse {
			current.Sub(current, advance)
		} else {
			current.Add(current, advance)
		}
		remaining -= limit
	}
	headerPlanMeter.Mark(int64(len(requests)))
	log.Trace("Planned header retrieval", "peer", q.ClientID, "total", q.Total, "batches", len(requests))
	return requests, nil
}

// PlanBodyRequests splits the hash list into GetBlockBodies descriptors of
// at most the peer's body limit each, preserving order. An empty hash list
// plans to no batches and consumes no ids.
func (p *Planner) PlanBodyRequests(q HashQuery) ([]eth.BodyRequest, error) {
	ids, limits, err := p.validateHashQuery(q)
	if err != nil {
		return nil, err
	}
	if limits.MaxBodies <= 0 {
		return nil, fmt.Errorf("%w: maxBodiesPerRequest %d", ErrInvalidPeerLimit, limits.MaxBodies)
	}
	var requests []eth.BodyRequest
	for _, chunk := range chunkHashes(q.Hashes, limits.MaxBodies) {
		request := eth.BodyRequest{Hashes: chunk}
		if ids != nil {
			id := ids.pop()
			request.RequestID = &id
		}
		requests = append(requests, request)
	}
	bodyPlanMeter.Mark(int64(len(requests)))
	log.Trace("Planned body retrieval", "peer", q.ClientID, "hashes", len(q.Hashes), "batches", len(requests))
	return requests, nil
}

// PlanReceiptRequests splits the hash list into GetReceipts descriptors of
// at most the peer's receipt limit each, preserving order. On eth/70 and
// later every batch carries a zero first-block receipt index, the
// partial-receipts framing of the full-sync path.
func (p *Planner) PlanReceiptRequests(q HashQuery) ([]eth.ReceiptRequest, error) {
	ids, limits, err := p.validateHashQuery(q)
	if err != nil {
		return nil, err
	}
	if limits.MaxReceipts <= 0 {
		return nil, fmt.Errorf("%w: maxReceiptsPerRequest %d", ErrInvalidPeerLimit, limits.MaxReceipts)
	}
	partial := eth.SupportsPartialReceipts(q.Version)
	var requests []eth.ReceiptRequest
	for _, chunk := range chunkHashes(q.Hashes, limits.MaxReceipts) {
		request := eth.ReceiptRequest{Hashes: chunk}
		if ids != nil {
			id := ids.pop()
			request.RequestID = &id
		}
		if partial {
			request.FirstBlockReceiptIndex = new(uint64)
		}
		requests = append(requests, request)
	}
	receiptPlanMeter.Mark(int64(len(requests)))
	log.Trace("Planned receipt retrieval", "peer", q.ClientID, "hashes", len(q.Hashes), "batches", len(requests))
	return requests, nil
}

func (p *Planner) validateHashQuery(q HashQuery) (*requestIDSeq, PeerLimits, error) {
	if !eth.ValidVersion(q.Version) {
		return nil, PeerLimits{}, fmt.Errorf("%w: protocolVersion %d", ErrInvalidProtocolVersion, q.Version)
	}
	ids, err := requestIDs(q.Version, q.InitialRequestID)
	if err != nil {
		return nil, PeerLimits{}, err
	}
	return ids, p.limits(q.ClientID), nil
}

// chunkHashes partitions hashes into contiguous chunks of at most size
// each. The chunks alias the input slice; the planner never mutates them.
func chunkHashes(hashes []common.Hash, size int) [][]common.Hash {
	var chunks [][]common.Hash
	for len(hashes) > size {
		chunks = append(chunks, hashes[:size:size])
		hashes = hashes[size:]
	}
	if len(hashes) > 0 {
		chunks = append(chunks, hashes)
	}
	return chunks
}
