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

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tVolumes implements VolumeService for tests, counting live root references.
type tVolumes struct {
	mu   sync.Mutex
	refs int
}

type tRootVol struct{}

var theRoot = &tRootVol{}

func (v *tVolumes) GetRoot() Volume {
	v.mu.Lock()
	v.refs++
	v.mu.Unlock()
	return theRoot
}

func (v *tVolumes) Rel(vol Volume) {
	if vol != Volume(theRoot) {
		panic("tVolumes: Rel of a volume not acquired here")
	}
	v.mu.Lock()
	v.refs--
	v.mu.Unlock()
}

func (v *tVolumes) nref() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refs
}

// tWaits implements WaitService for tests, recording which waits ran.
type tWaits struct {
	mu       sync.Mutex
	reclaims int
	hardIO   int
}

func (w *tWaits) WaitReclaims() {
	w.mu.Lock()
	w.reclaims++
	w.mu.Unlock()
}

func (w *tWaits) WaitHardIO() {
	w.mu.Lock()
	w.hardIO++
	w.mu.Unlock()
}

// testMount creates a mount over test fakes.
func testMount(opt *MountOptions) (*Mount, *tVolumes, *tWaits) {
	vols := &tVolumes{}
	waits := &tWaits{}
	return NewMount(vols, waits, opt), vols, waits
}

func TestTxnStandard(t *testing.T) {
	m, vols, waits := testMount(&MountOptions{MasterID: -1, NextTid: 100})

	txn := m.BeginTxn()
	require.Equal(t, TxnStandard, txn.Kind())
	require.Equal(t, Tid(0), txn.Tid())
	require.Equal(t, 1, vols.nref())

	txn.Done()
	require.Equal(t, 0, vols.nref())
	require.Equal(t, 0, waits.reclaims)
	require.Equal(t, 0, waits.hardIO)

	// tid allocator was not touched
	require.Equal(t, Tid(100), m.NextTid())
}

func TestTxnReadOnly(t *testing.T) {
	m, vols, _ := testMount(&MountOptions{MasterID: -1, NextTid: 100})

	txn := m.BeginReadOnly()
	require.Equal(t, TxnReadOnly, txn.Kind())
	require.Equal(t, Tid(0), txn.Tid())
	require.Equal(t, 1, vols.nref())

	txn.Done()
	require.Equal(t, 0, vols.nref())
	require.Equal(t, Tid(100), m.NextTid())
}

func TestTxnFlush(t *testing.T) {
	m, vols, waits := testMount(&MountOptions{MasterID: -1, NextTid: 100})

	txn := m.Flusher().BeginTxn()
	require.Equal(t, TxnFlush, txn.Kind())
	require.Equal(t, Tid(101), txn.Tid())
	require.Equal(t, Tid(102), m.NextTid())
	require.Equal(t, 1, vols.nref())

	// even a flush transaction that created inodes and did io must not
	// wait on itself at the end.
	txn.SetFlags(TxnNewInode | TxnDidIO)
	txn.Done()
	require.Equal(t, 0, vols.nref())
	require.Equal(t, 0, waits.reclaims)
	require.Equal(t, 0, waits.hardIO)
}

func TestTxnEndWaits(t *testing.T) {
	m, _, waits := testMount(nil)

	// new inode -> wait for reclaims
	txn := m.BeginTxn()
	txn.SetFlags(TxnNewInode)
	txn.Done()
	require.Equal(t, 1, waits.reclaims)
	require.Equal(t, 0, waits.hardIO)

	// io only -> wait for hard io
	txn = m.BeginTxn()
	txn.SetFlags(TxnDidIO)
	txn.Done()
	require.Equal(t, 1, waits.reclaims)
	require.Equal(t, 1, waits.hardIO)

	// new inode takes precedence over io
	txn = m.BeginTxn()
	txn.SetFlags(TxnNewInode | TxnDidIO)
	txn.Done()
	require.Equal(t, 2, waits.reclaims)
	require.Equal(t, 1, waits.hardIO)
}

func TestTxnDoneTwice(t *testing.T) {
	m, _, _ := testMount(nil)

	txn := m.BeginTxn()
	txn.Done()
	require.Panics(t, func() { txn.Done() })
}

func TestTxnSyncLockDiscipline(t *testing.T) {
	m, _, _ := testMount(nil)

	// standard transaction must end with zero sync lock refs
	txn := m.BeginTxn()
	txn.SyncLockRef()
	require.Panics(t, func() { txn.Done() })

	// balanced lock/unlock is fine
	txn = m.BeginTxn()
	txn.SyncLockRef()
	txn.SyncUnlockRef()
	txn.Done()

	// flush transaction must end with its predispositioned reference intact
	txn = m.Flusher().BeginTxn()
	txn.SyncUnlockRef()
	require.Panics(t, func() { txn.Done() })
}

func TestTxnStamp(t *testing.T) {
	t0 := time.Date(2021, 3, 14, 15, 9, 26, 535897000, time.UTC)
	m, _, _ := testMount(&MountOptions{
		MasterID: -1,
		Clock:    func() time.Time { return t0 },
	})

	txn := m.BeginTxn()
	defer txn.Done()

	ts := txn.Stamp()
	require.Equal(t, uint64(t0.Unix())*1e6+535897, ts.Usec)
	require.Equal(t, uint32(t0.Unix()), ts.Sec)

	// both granularities come from the same instant
	require.Equal(t, uint64(ts.Sec), ts.Usec/1e6)
	require.Equal(t, "2021-03-14 15:09:26.535897", ts.String())
}
