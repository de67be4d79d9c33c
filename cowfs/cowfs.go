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

// Package cowfs implements the transaction and id-allocation core of a
// copy-on-write filesystem. The design follows DragonFly BSD's HAMMER.
//
// Every on-disk mutation is versioned by a transaction identifier (Tid) and
// every filesystem object is named by an object identifier (Oid). Both are
// drawn from one 64-bit id space owned by the mount: tids order all mutations
// totally; oids are bulk-reserved ranges of the same space handed out one by
// one when inodes are created (see Mount.AllocObjid).
//
// A filesystem operation runs bracketed inside a Txn, started with
// Mount.BeginTxn, Mount.BeginReadOnly or Flusher.BeginTxn and finished with
// Txn.Done. See Txn documentation for the bracketing contract.
//
// In multi-master mode several cooperating writers share the id space: ids
// are aligned to a MaxMasters stride and the low bits carry the issuing
// master's slot, so ranges computed by different masters never collide.
package cowfs

// Tid is a transaction identifier.
//
// Tids are monotonically non-decreasing across the life of the mount and
// establish the total order of mutations the multiversion records rely upon.
type Tid uint64

// Oid is an object identifier - the unique name of a filesystem object.
//
// Oids are carved out of tid space: allocating oids literally consumes tid
// ranges (see Mount.AllocObjid).
type Oid uint64

const (
	// MaxMasters is the maximum number of cooperating write masters.
	//
	// In multi-master mode ids are issued MaxMasters apart with the low
	// bits set to the issuing master's slot ∈ [0, MaxMasters).
	MaxMasters = 16

	// tidBarrier is the first unusable id. Reaching it is unrecoverable -
	// continuing past the barrier would risk id reuse, so the allocator
	// panics instead (see Mount.allocTid).
	tidBarrier Tid = 0xFFFFFFFFFF000000
)

// Valid reports whether tid is below the id-space barrier.
func (tid Tid) Valid() bool {
	return tid < tidBarrier
}

// Valid reports whether oid is below the id-space barrier.
func (oid Oid) Valid() bool {
	return Tid(oid).Valid()
}

// Master returns the write-master slot encoded in tid's low bits.
//
// The result is meaningful only for ids issued by a multi-master mount.
func (tid Tid) Master() int {
	return int(tid & (MaxMasters - 1))
}

// Master is like Tid.Master but for an oid.
func (oid Oid) Master() int {
	return Tid(oid).Master()
}
