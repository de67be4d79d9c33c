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
// mount-wide allocator state and its collaborators.

import (
	"context"
	"sync"
	"time"

	"lab.nexedi.com/kirr/cowfs/go/internal/log"
	"lab.nexedi.com/kirr/cowfs/go/internal/xcontext/task"
)

// Volume is a reference to an in-core volume header.
//
// Volumes are opaque to this package - refcounting and lookup live in the
// volume subsystem behind VolumeService.
type Volume interface{}

// VolumeService is what the volume subsystem provides to the transaction core.
type VolumeService interface {
	// GetRoot acquires and returns a reference to the root volume.
	//
	// GetRoot may block on ordinary contention; the acquire itself never
	// fails - the root volume exists for as long as the mount does.
	GetRoot() Volume

	// Rel releases a reference previously returned by GetRoot.
	Rel(v Volume)
}

// WaitService is what the inode subsystem provides for end-of-transaction
// throttling (see Txn.Done).
type WaitService interface {
	// WaitReclaims blocks until the number of inodes pending reclamation
	// drops below the inode subsystem's threshold.
	WaitReclaims()

	// WaitHardIO blocks until enough in-flight inode writes drain.
	WaitHardIO()
}

// MemReserve models the backing memory-allocation service consulted before an
// objid cache entry is created.
//
// ReserveEntry reserves memory for one entry. It may block until memory
// becomes available, or give up and return an error, which AllocObjid
// propagates to its caller as allocation failure.
type MemReserve interface {
	ReserveEntry() error
}

// Inode is an in-core filesystem object.
//
// Only what the id-allocation core needs is represented here; the rest of the
// inode lives in the inode subsystem. An inode used as a directory may hold a
// non-owning reference to at most one objid cache entry.
type Inode struct {
	Oid Oid

	// block of ids reserved for objects created in this directory.
	// protected by the mount's objid pool lock; nil if none is bound.
	objidCache *objidCacheEntry
}

// MountOptions tunes NewMount.
type MountOptions struct {
	// MasterID is this writer's slot in multi-master mode ∈ [0, MaxMasters).
	// Negative means single-master operation.
	MasterID int

	// NextTid is the first tid the allocator continues from, e.g. restored
	// from a Checkpoint. Zero starts the id space from scratch.
	NextTid Tid

	// CacheSize bounds how many objid cache entries the mount keeps.
	// 0 means DefaultCacheSize.
	CacheSize int

	// CacheBulk is how many ids one cache refill reserves.
	// 0 means DefaultCacheBulk.
	CacheBulk int

	// Mem, if non-nil, is consulted before an objid cache entry is created.
	Mem MemReserve

	// Clock overrides the wall clock used for transaction start stamps.
	// Tests use it; nil means time.Now.
	Clock func() time.Time
}

const (
	// DefaultCacheSize is the default bound on cached objid entries.
	DefaultCacheSize = 128

	// DefaultCacheBulk is the default number of ids reserved per objid
	// cache refill. Directories pre-allocate large ranges to amortize
	// per-id allocation cost.
	DefaultCacheBulk = 100000
)

// Mount owns all allocator state of one mounted volume group.
//
// Mount is safe to access from multiple goroutines simultaneously.
type Mount struct {
	vols  VolumeService
	waits WaitService
	mem   MemReserve
	clock func() time.Time

	masterID int // < 0: single-master

	// tid allocator. tidMu is held only for the few instructions advancing
	// nextTid - never across blocking calls.
	tidMu   sync.Mutex
	nextTid Tid

	// objid cache pool (objid.go). Separate lock domain from tidMu;
	// a directory's Inode.objidCache is mutated only under objMu.
	objMu           sync.Mutex
	objCond         *sync.Cond // signalled when a pool slot or entry becomes available
	objidCache      poolHead   // entries, MRU at tail (before head)
	objidCacheCount int
	objidCacheSize  int
	objidCacheBulk  int

	flusher *Flusher
}

// Flusher is the capability to run flush transactions.
//
// Exactly one Flusher exists per mount - NewMount creates it - and only the
// designated flushing context may use it. See Flusher.BeginTxn.
type Flusher struct {
	mnt *Mount
}

// NewMount creates mount-wide allocator state on top of the given volume and
// inode-wait services.
//
// opt=nil means all defaults.
func NewMount(vols VolumeService, waits WaitService, opt *MountOptions) *Mount {
	if opt == nil {
		opt = &MountOptions{MasterID: -1}
	}

	m := &Mount{
		vols:  vols,
		waits: waits,
		mem:   opt.Mem,
		clock: opt.Clock,

		masterID: opt.MasterID,
		nextTid:  opt.NextTid,

		objidCacheSize: opt.CacheSize,
		objidCacheBulk: opt.CacheBulk,
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.objidCacheSize == 0 {
		m.objidCacheSize = DefaultCacheSize
	}
	if m.objidCacheBulk == 0 {
		m.objidCacheBulk = DefaultCacheBulk
	}
	m.objidCache.Init()
	m.objCond = sync.NewCond(&m.objMu)

	m.flusher = &Flusher{mnt: m}
	return m
}

// Flusher returns the mount's flusher capability.
//
// The caller is responsible for handing it only to the single designated
// flushing context.
func (m *Mount) Flusher() *Flusher {
	return m.flusher
}

// Close shuts the allocator state down. Called on unmount.
//
// The mount must be quiescent - no transaction may be in progress and no
// allocation may run concurrently.
func (m *Mount) Close(ctx context.Context) {
	ctx = task.Running(ctx, "unmount")

	n := m.ShutdownObjidCache()
	log.Infof(ctx, "objid cache: drained %d entries", n)
	log.Infof(ctx, "next tid: %s", m.NextTid())
}

// NextTid returns the next tid the allocator would continue from.
func (m *Mount) NextTid() Tid {
	m.tidMu.Lock()
	defer m.tidMu.Unlock()
	return m.nextTid
}
