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

import "errors"

// ErrNoActiveTransaction is returned when a commit or rollback is requested
// with no open transaction frame.
var ErrNoActiveTransaction = errors.New("no active transaction")

// txFrame pairs the two snapshot ids captured when a frame was opened.
type txFrame struct {
	stateSnap     int
	transientSnap int
}

// TransactionScope composes a world state and a transient store into one
// nestable unit of work. Each Begin captures a snapshot on both stores; the
// matching Commit or Rollback closes the most recent frame.
//
// The stores are always handled in a fixed order, world state first and
// transient storage second. Atomicity across the two is not guaranteed: a
// store error surfaces as-is with no compensating action on the other, since
// snapshot-id errors only arise from programmer error and the recovery path
// is Reset on both stores.
type TransactionScope struct {
	state     *StateDB
	transient *TransientStorage
	frames    []txFrame
}

// NewTransactionScope couples the given stores into a transaction scope. The
// scope borrows the stores; it does not own them.
func NewTransactionScope(state *StateDB, transient *TransientStorage) *TransactionScope {
	return &TransactionScope{state: state, transient: transient}
}

// Begin opens a new transaction frame on top of any already open ones.
func (t *TransactionScope) Begin() {
	t.frames = append(t.frames, txFrame{
		stateSnap:     t.state.Snapshot(),
		transientSnap: t.transient.Snapshot(),
	})
}

// Commit folds the most recent frame into its parent, or finalizes it if it
// is the outermost frame. Transient writes stay undoable by the parent; world
// state writes follow StateDB.DiscardSnapshot, which drops the frame's
// journal entries.
func (t *TransactionScope) Commit() error {
	frame, err := t.pop()
	if err != nil {
		return err
	}
	if err := t.state.DiscardSnapshot(frame.stateSnap); err != nil {
		return err
	}
	return t.transient.DiscardSnapshot(frame.transientSnap)
}

// Rollback restores both stores to the snapshots captured by the most recent
// frame and closes it.
func (t *TransactionScope) Rollback() error {
	frame, err := t.pop()
	if err != nil {
		return err
	}
	if err := t.state.RevertToSnapshot(frame.stateSnap); err != nil {
		return err
	}
	return t.transient.RevertToSnapshot(frame.transientSnap)
}

// Depth returns the number of open transaction frames.
func (t *TransactionScope) Depth() int {
	return len(t.frames)
}

func (t *TransactionScope) pop() (txFrame, error) {
	if len(t.frames) == 0 {
		return txFrame{}, ErrNoActiveTransaction
	}
	frame := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return frame, nil
}
