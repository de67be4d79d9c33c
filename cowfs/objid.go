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
// per-directory object id allocation.
//
// Creating an inode needs a fresh oid. Taking the tid lock for every create
// would serialize all creates on the mount, so oids are bulk-reserved: a
// directory gets a cache entry holding a block of consecutive ids and creates
// in that directory consume the block one id at a time. Entries live in a
// bounded mount-wide pool with recency ordering - when the pool is full the
// least-recently-used entry is stolen from its directory and rebound, so a
// partially consumed block is never lost, only handed over.

import (
	"unsafe"

	"github.com/pkg/errors"

	"lab.nexedi.com/kirr/go123/xcontainer/list"
)

// ErrNoMem is returned by AllocObjid when the backing memory-allocation
// service cannot reserve space for a new cache entry.
var ErrNoMem = errors.New("objid cache: out of memory")

// objidCacheEntry is a block of consecutive ids bulk-reserved from tid space.
//
// An entry is owned by the pool; a directory holds only the non-owning
// Inode.objidCache slot, and dir points back so that eviction can clear that
// slot. Both directions of the binding are kept strictly 1:1 and are mutated
// only under Mount.objMu.
type objidCacheEntry struct {
	inPool  poolHead // in Mount.objidCache; protected by Mount.objMu
	dir     *Inode   // directory the entry is bound to; nil if unbound
	nextTid Tid      // next id to hand out from the block
	count   int      // ids remaining in the block
}

// ---- pool ordering ----
//
// The pool is an intrusive list with the recency convention of zodb's cache:
// entries move before the head when used, so head.Next() is the LRU entry and
// the eviction candidate.

// list head that knows it is in objidCacheEntry.inPool
type poolHead struct {
	list.Head
}

func (h *poolHead) Next() *poolHead { return (*poolHead)(unsafe.Pointer(h.Head.Next())) }
func (h *poolHead) Prev() *poolHead { return (*poolHead)(unsafe.Pointer(h.Head.Prev())) }

// objidCacheEntry: .inPool -> .
func (h *poolHead) entryFromInPool() (ocp *objidCacheEntry) {
	u := unsafe.Pointer(uintptr(unsafe.Pointer(h)) - unsafe.Offsetof(ocp.inPool))
	return (*objidCacheEntry)(u)
}

// ---- allocation ----

// AllocObjid allocates an object id for a new object created in directory dir.
//
// Successive ids for one directory come from the directory's cache entry and
// are 1 apart in single-master mode and MaxMasters apart in multi-master
// mode. When the entry's block is fully consumed the entry is discarded and
// the next AllocObjid for dir reserves a fresh block.
//
// AllocObjid fails only when the backing memory-allocation service does (see
// MemReserve); on failure no id is consumed and the enclosing object-creation
// must be aborted by the caller.
func (m *Mount) AllocObjid(dir *Inode) (Oid, error) {
	m.objMu.Lock()

	for dir.objidCache == nil {
		if m.objidCacheCount < m.objidCacheSize {
			// claim the pool slot now - newEntry drops objMu and
			// concurrent callers must not overfill the pool.
			m.objidCacheCount++
			ocp2, err := m.newObjidCacheEntry()
			if err != nil {
				m.objidCacheCount--
				m.objCond.Broadcast()
				m.objMu.Unlock()
				return 0, errors.WithMessagef(err, "objid: dir %s", dir.Oid)
			}
			ocp2.inPool.MoveBefore(&m.objidCache.Head)
			m.objCond.Broadcast()

			// newEntry may have blocked with objMu released.
			// recheck: if someone already bound an entry to dir in
			// the interim, ocp2 stays in the pool unbound, free to
			// be claimed by the next requester.
			if dir.objidCache == nil {
				dir.objidCache = ocp2
				ocp2.dir = dir
			}
		} else {
			h := m.objidCache.Next()
			if h == &m.objidCache {
				// every pool slot is claimed by a refill in
				// flight - wait for one to publish its entry
				// or free its slot, then redecide.
				m.objCond.Wait()
				continue
			}

			// steal the least-recently-used entry
			ocp2 := h.entryFromInPool()
			if ocp2.dir != nil {
				ocp2.dir.objidCache = nil
			}
			dir.objidCache = ocp2
			ocp2.dir = dir
		}
	}
	ocp := dir.objidCache

	// detach while we consume from it
	ocp.inPool.Delete()

	// ids go 1 or MaxMasters apart depending on the mount mode
	id := Oid(ocp.nextTid)
	if m.masterID < 0 {
		ocp.nextTid += 1
	} else {
		ocp.nextTid += MaxMasters
	}

	ocp.count--
	if ocp.count == 0 {
		// block fully consumed - the entry is gone for good
		dir.objidCache = nil
		ocp.dir = nil
		m.objidCacheCount--
		m.objCond.Broadcast()
	} else {
		ocp.inPool.MoveBefore(&m.objidCache.Head)
	}

	m.objMu.Unlock()
	return id, nil
}

// newObjidCacheEntry creates an entry filled by one bulk tid reservation.
//
// objMu must be held on entry. It is released around the memory reservation,
// which may block, and reacquired before return - the caller must re-validate
// whatever it read from pool state before the call.
func (m *Mount) newObjidCacheEntry() (*objidCacheEntry, error) {
	if m.mem != nil {
		m.objMu.Unlock()
		err := m.mem.ReserveEntry()
		m.objMu.Lock()
		if err != nil {
			return nil, err
		}
	}

	ocp := &objidCacheEntry{}
	ocp.inPool.Init()
	ocp.nextTid = m.allocTid(m.objidCacheBulk)
	ocp.count = m.objidCacheBulk
	return ocp, nil
}

// ClearObjid drops dir's binding to its objid cache entry, if any.
//
// The entry is not destroyed - its remaining ids stay valid - but it becomes
// the next eviction candidate and will serve whichever directory claims it.
// Called e.g. when a directory inode is being destroyed.
func (m *Mount) ClearObjid(dir *Inode) {
	m.objMu.Lock()
	if ocp := dir.objidCache; ocp != nil {
		dir.objidCache = nil
		ocp.dir = nil
		if lru := m.objidCache.Next(); lru != &ocp.inPool {
			ocp.inPool.MoveBefore(&lru.Head)
		}
	}
	m.objMu.Unlock()
}

// ShutdownObjidCache drains the pool, clearing every bound directory's slot,
// and returns how many entries were dropped. Runs at unmount; the mount must
// be quiescent.
func (m *Mount) ShutdownObjidCache() int {
	m.objMu.Lock()
	n := 0
	for {
		h := m.objidCache.Next()
		if h == &m.objidCache {
			break
		}
		ocp := h.entryFromInPool()
		if ocp.dir != nil {
			ocp.dir.objidCache = nil
			ocp.dir = nil
		}
		h.Delete()
		m.objidCacheCount--
		n++
	}
	m.objMu.Unlock()
	return n
}
