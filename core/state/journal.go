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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	journalAppendMeter    = metrics.NewRegisteredMeter("state/journal/append", nil)
	journalRevertMeter    = metrics.NewRegisteredMeter("state/journal/revert", nil)
	journalCacheKeptMeter = metrics.NewRegisteredMeter("state/journal/cachekept", nil)
	journalCommitMeter    = metrics.NewRegisteredMeter("state/journal/commit", nil)
)

// ErrInvalidJournalSnapshot is returned when a revert or commit references a
// snapshot index below the empty sentinel or beyond the current log length.
var ErrInvalidJournalSnapshot = errors.New("invalid journal snapshot")

// EmptyJournalSnapshot is the snapshot of a journal with no entries.
const EmptyJournalSnapshot = -1

// EntryKind tags a journal entry with the class of change it records.
type EntryKind uint8

const (
	// EntryCreated records the first appearance of a key. The entry carries
	// no previous value; reverting it removes the key.
	EntryCreated EntryKind = iota

	// EntryUpdated records an overwrite. The entry carries the value the key
	// held before the write.
	EntryUpdated

	// EntryDeleted records a removal, carrying the value the key held before.
	EntryDeleted

	// EntryTouched records a touch (EIP-161 style) without a value change.
	EntryTouched

	// EntryCached records a read-through cache fill. It is not a mutation:
	// reverting a region preserves cache fills for keys the region did not
	// otherwise change.
	EntryCached
)

// JournalEntry is a single tagged change record. Prev carries the previous
// value for updates and deletes, the cached value for cache fills, and nil
// for creations and touches.
type JournalEntry[K comparable, V any] struct {
	Key  K
	Prev *V
	Kind EntryKind
}

// Journal is an append-only log of tagged change entries with index-based
// snapshots. Reverting a snapshot walks the log tail backwards through a
// caller-supplied callback; committing truncates the tail while notifying the
// callback once per key, most recent entry first.
//
// The journal is owned by a single caller and performs no locking.
type Journal[K comparable, V any] struct {
	entries []JournalEntry[K, V]
}

// NewJournal creates an empty change journal.
func NewJournal[K comparable, V any]() *Journal[K, V] {
	return &Journal[K, V]{}
}

// Append pushes an entry onto the log and returns its zero-based index.
func (j *Journal[K, V]) Append(entry JournalEntry[K, V]) int {
	j.entries = append(j.entries, entry)
	journalAppendMeter.Mark(1)
	return len(j.entries) - 1
}

// Snapshot returns the index of the most recent entry, or
// EmptyJournalSnapshot when the log is empty. Appends made after the call can
// later be undone with Revert or folded away with Commit.
func (j *Journal[K, V]) Snapshot() int {
	return len(j.entries) - 1
}

// Length returns the number of entries currently in the log.
func (j *Journal[K, V]) Length() int {
	return len(j.entries)
}

// Entries returns a copy of the log for inspection.
func (j *Journal[K, V]) Entries() []JournalEntry[K, V] {
	cpy := make([]JournalEntry[K, V], len(j.entries))
	copy(cpy, j.entries)
	return cpy
}

// Reset empties the log. Previously taken snapshots become invalid.
func (j *Journal[K, V]) Reset() {
	j.entries = j.entries[:0]
}

// Revert truncates the log back to the given snapshot, invoking onRevert for
// every mutating entry in the tail, newest first. Cache-fill entries are not
// reverted: any EntryCached whose key is not otherwise mutated within the
// reverted region is re-appended (in its original order) so that the cache
// population it records survives the rollback. Cache fills superseded by a
// real change to the same key are dropped along with that change.
//
// An error from onRevert aborts the revert and is returned as-is; the
// callback is expected to be idempotent so a retried revert converges.
func (j *Journal[K, V]) Revert(snapshot int, onRevert func(JournalEntry[K, V]) error) error {
	target, err := j.targetLength(snapshot)
	if err != nil {
		return err
	}
	// First pass: collect every key the tail region really changes. Cache
	// fills for these keys are stale once the change is undone.
	changed := mapset.NewThreadUnsafeSet[K]()
	for _, entry := range j.entries[target:] {
		if entry.Kind != EntryCached {
			changed.Add(entry.Key)
		}
	}
	// Second pass, newest first: undo mutations, set aside survivors.
	var (
		kept     []JournalEntry[K, V]
		keptKeys = mapset.NewThreadUnsafeSet[K]()
	)
	for i := len(j.entries) - 1; i >= target; i-- {
		entry := j.entries[i]
		if entry.Kind == EntryCached {
			if changed.Contains(entry.Key) || keptKeys.Contains(entry.Key) {
				continue
			}
			keptKeys.Add(entry.Key)
			kept = append(kept, entry)
			continue
		}
		if onRevert != nil {
			if err := onRevert(entry); err != nil {
				return err
			}
		}
		journalRevertMeter.Mark(1)
	}
	j.entries = j.entries[:target]
	// kept was gathered back-to-front; re-append in original insertion order.
	for i := len(kept) - 1; i >= 0; i-- {
		j.entries = append(j.entries, kept[i])
	}
	journalCacheKeptMeter.Mark(int64(len(kept)))
	return nil
}

// Commit truncates the log back to the given snapshot without undoing
// anything. onCommit is invoked once per key in the tail, with the most
// recent entry for that key, so a parent scope observes the net change.
//
// An error from onCommit aborts the commit and is returned as-is.
func (j *Journal[K, V]) Commit(snapshot int, onCommit func(JournalEntry[K, V]) error) error {
	target, err := j.targetLength(snapshot)
	if err != nil {
		return err
	}
	committed := mapset.NewThreadUnsafeSet[K]()
	for i := len(j.entries) - 1; i >= target; i-- {
		entry := j.entries[i]
		if committed.Contains(entry.Key) {
			continue
		}
		committed.Add(entry.Key)
		if onCommit != nil {
			if err := onCommit(entry); err != nil {
				return err
			}
		}
		journalCommitMeter.Mark(1)
	}
	j.entries = j.entries[:target]
	return nil
}

// targetLength resolves a snapshot id to the log length it denotes.
func (j *Journal[K, V]) targetLength(snapshot int) (int, error) {
	if snapshot < EmptyJournalSnapshot || snapshot >= len(j.entries) {
		return 0, ErrInvalidJournalSnapshot
	}
	return snapshot + 1, nil
}
