// Copyright (C) 2020-2021  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.
// See https://www.nexedi.com/licensing for rationale and options.

package cowfs
// transaction bracketing.

import (
	"fmt"
)

// TxnKind tells what kind of transaction a Txn is.
type TxnKind int

const (
	TxnStandard TxnKind = iota // ordinary mutating transaction
	TxnReadOnly                // reads only; beginning one does not stall
	TxnFlush                   // run by the flusher to sync dirty state to disk
)

// TxnFlags record what happened inside a transaction; Done uses them to
// decide end-of-transaction waits.
type TxnFlags int

const (
	TxnNewInode TxnFlags = 1 << iota // a new inode was created
	TxnDidIO                         // inode io was performed
)

// Txn brackets one filesystem operation.
//
// A Txn is single-use: begin it with Mount.BeginTxn, Mount.BeginReadOnly or
// Flusher.BeginTxn, run the operation, and finish with exactly one Done call.
// Done must run on every exit path, error exits included - the usual way is
//
//	txn := m.BeginTxn()
//	defer txn.Done()
//
// A Txn must not be used concurrently and must not be used after Done.
type Txn struct {
	kind TxnKind
	mnt  *Mount

	// root volume reference, held exclusively from begin to Done
	rootvol Volume

	// 0 until assigned. TxnFlush assigns eagerly at begin; for the other
	// kinds assignment happens lazily at first mutation (not here).
	tid Tid

	// how many sync-lock acquisitions this transaction accounts for.
	// Done asserts the kind-dependent expected value.
	syncLockRefs int

	flags TxnFlags
	stamp TimeStamp
	done  bool
}

// BeginTxn starts a standard transaction.
//
// It may block acquiring the root volume reference on ordinary contention.
func (m *Mount) BeginTxn() *Txn {
	return m.begin(TxnStandard, 0, 0)
}

// BeginReadOnly starts a read-only transaction. This does not stall.
func (m *Mount) BeginReadOnly() *Txn {
	return m.begin(TxnReadOnly, 0, 0)
}

// BeginTxn starts a flush transaction with an eagerly allocated tid.
//
// Only the single designated flushing context may call it. The sync lock is
// predispositioned as held, which asserts serialization against the mount's
// synchronization stage - the flusher is responsible for upholding that.
// This does not stall.
func (f *Flusher) BeginTxn() *Txn {
	m := f.mnt
	return m.begin(TxnFlush, m.allocTid(1), 1)
}

func (m *Mount) begin(kind TxnKind, tid Tid, syncLockRefs int) *Txn {
	return &Txn{
		kind:         kind,
		mnt:          m,
		rootvol:      m.vols.GetRoot(),
		tid:          tid,
		syncLockRefs: syncLockRefs,
		stamp:        m.now(),
	}
}

// Done finishes the transaction.
//
// For standard and read-only transactions Done may block: if the transaction
// created a new inode it waits for pending inode reclamations to subside, or
// else, if it performed inode io, for in-flight writes to drain. A flush
// transaction never performs these waits - the flusher must not block on
// itself.
//
// Done panics if the sync-lock discipline was not honored (see SyncLockRef)
// or if the Txn was already done.
func (txn *Txn) Done() {
	if txn.done {
		panic("cowfs: txn: Done called twice")
	}
	txn.done = true

	m := txn.mnt
	m.vols.Rel(txn.rootvol)
	txn.rootvol = nil

	expect := 0
	if txn.kind == TxnFlush {
		expect = 1
	}
	if txn.syncLockRefs != expect {
		panic(fmt.Sprintf("cowfs: txn: done: sync lock refs = %d; want %d",
			txn.syncLockRefs, expect))
	}
	txn.syncLockRefs = 0

	if txn.kind != TxnFlush {
		if txn.flags&TxnNewInode != 0 {
			m.waits.WaitReclaims()
		} else if txn.flags&TxnDidIO != 0 {
			m.waits.WaitHardIO()
		}
	}
}

// SetFlags records f into the transaction's flags.
func (txn *Txn) SetFlags(f TxnFlags) {
	txn.flags |= f
}

// SyncLockRef accounts one acquisition of the mount's sync lock made on
// behalf of this transaction. SyncUnlockRef accounts the matching release.
//
// Done checks the balance: a flush transaction must end with its
// predispositioned single reference intact, every other kind with zero.
func (txn *Txn) SyncLockRef()   { txn.syncLockRefs++ }
func (txn *Txn) SyncUnlockRef() { txn.syncLockRefs-- }

// Kind returns what kind of transaction txn is.
func (txn *Txn) Kind() TxnKind { return txn.kind }

// Tid returns the transaction's tid; 0 if none was assigned.
func (txn *Txn) Tid() Tid { return txn.tid }

// Stamp returns the wall-clock snapshot taken when txn began.
func (txn *Txn) Stamp() TimeStamp { return txn.stamp }
