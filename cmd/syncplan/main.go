// Copyright 2025 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// syncplan prints the request batches a full sync would issue against a
// given peer. Header workloads are described with flags; body and receipt
// workloads read block hashes from stdin, one hex hash per line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"

	"github.com/evmts/xvi-sub013/eth/downloader"
	"github.com/evmts/xvi-sub013/eth/protocols/eth"
)

var (
	mode      = flag.String("mode", "headers", "workload to plan: headers, bodies or receipts")
	peer      = flag.String("peer", "Geth/v1.15.11-stable", "client id of the peer to plan against")
	version   = flag.Uint("version", eth.ETH68, "eth protocol version the peer speaks")
	start     = flag.String("start", "0", "first block number of a header workload")
	total     = flag.Int("total", 0, "number of headers to retrieve")
	skip      = flag.Int64("skip", 0, "blocks to skip between retrieved headers")
	reverse   = flag.Bool("reverse", true, "walk the header range towards lower numbers")
	requestID = flag.Uint64("reqid", 0, "initial request id (eth/66+)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:", os.Args[0], "[flags]")
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Prints the request batches a full sync would issue against the given peer`)
	}
}

func main() {
	flag.Parse()

	startNum, ok := new(big.Int).SetString(*start, 10)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid start block number %q\n", *start)
		os.Exit(2)
	}
	planner := downloader.NewPlanner(nil)
	initial := new(big.Int).SetUint64(*requestID)

	table := tablewriter.NewWriter(os.Stdout)
	switch *mode {
	case "headers":
		requests, err := planner.PlanHeaderRequests(downloader.HeaderQuery{
			ClientID:         *peer,
			Version:          *version,
			Start:            startNum,
			Total:            *total,
			Skip:             *skip,
			Reverse:          *reverse,
			InitialRequestID: initial,
		})
		if err != nil {
			fatal(err)
		}
		table.SetHeader([]string{"ReqID", "Origin", "Amount", "Skip", "Reverse"})
		for _, req := range requests {
			table.Append([]string{
				formatID(req.RequestID),
				req.Origin.String(),
				strconv.FormatUint(req.Amount, 10),
				strconv.FormatUint(req.Skip, 10),
				strconv.FormatBool(req.Reverse),
			})
		}
	case "bodies":
		hashes := readHashes()
		requests, err := planner.PlanBodyRequests(downloader.HashQuery{
			ClientID:         *peer,
			Version:          *version,
			Hashes:           hashes,
			InitialRequestID: initial,
		})
		if err != nil {
			fatal(err)
		}
		table.SetHeader([]string{"ReqID", "Hashes", "First", "Last"})
		for _, req := range requests {
			table.Append([]string{
				formatID(req.RequestID),
				strconv.Itoa(len(req.Hashes)),
				req.Hashes[0].Hex(),
				req.Hashes[len(req.Hashes)-1].Hex(),
			})
		}
	case "receipts":
		hashes := readHashes()
		requests, err := planner.PlanReceiptRequests(downloader.HashQuery{
			ClientID:         *peer,
			Version:          *version,
			Hashes:           hashes,
			InitialRequestID: initial,
		})
		if err != nil {
			fatal(err)
		}
		table.SetHeader([]string{"ReqID", "Hashes", "FirstReceiptIdx", "First", "Last"})
		for _, req := range requests {
			firstIdx := "-"
			if req.FirstBlockReceiptIndex != nil {
				firstIdx = strconv.FormatUint(*req.FirstBlockReceiptIndex, 10)
			}
			table.Append([]string{
				formatID(req.RequestID),
				strconv.Itoa(len(req.Hashes)),
				firstIdx,
				req.Hashes[0].Hex(),
				req.Hashes[len(req.Hashes)-1].Hex(),
			})
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(2)
	}
	table.Render()
}

// readHashes parses one hex block hash per stdin line, skipping blanks.
func readHashes() []common.Hash {
	var hashes []common.Hash
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(strings.TrimPrefix(line, "0x")) != 2*common.HashLength {
			fatal(fmt.Errorf("invalid block hash %q", line))
		}
		hashes = append(hashes, common.HexToHash(line))
	}
	if err := scanner.Err(); err != nil {
		fatal(err)
	}
	return hashes
}

func formatID(id *uint64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatUint(*id, 10)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
