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
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAllocTidSingleMaster(t *testing.T) {
	m, _, _ := testMount(&MountOptions{MasterID: -1, NextTid: 100})

	require.Equal(t, Tid(101), m.allocTid(1))
	require.Equal(t, Tid(102), m.NextTid())

	require.Equal(t, Tid(103), m.allocTid(5))
	require.Equal(t, Tid(108), m.NextTid())
}

func TestAllocTidMultiMaster(t *testing.T) {
	m, _, _ := testMount(&MountOptions{MasterID: 2, NextTid: 100})

	// 100 rounds up to 112; low bits carry the master slot
	require.Equal(t, Tid(112|2), m.allocTid(1))
	require.Equal(t, Tid(128), m.NextTid())

	// every issued id keeps the master residue
	for _, master := range []int{0, 1, 7, 15} {
		m, _, _ := testMount(&MountOptions{MasterID: master, NextTid: 1000})
		for _, count := range []int{1, 3, 100, 1} {
			tid := m.allocTid(count)
			require.Equal(t, master, tid.Master(), "master %d count %d", master, count)
		}
	}
}

func TestAllocTidDisjoint(t *testing.T) {
	m, _, _ := testMount(&MountOptions{MasterID: -1})

	countv := []int{1, 5, 2, 100, 1, 17}
	prevEnd := Tid(0)
	for _, count := range countv {
		base := m.allocTid(count)
		require.True(t, base >= prevEnd, "range [%d, %d) overlaps previous end %d", base, base+Tid(count), prevEnd)
		prevEnd = base + Tid(count)
	}
}

func TestAllocTidExhaustion(t *testing.T) {
	m, _, _ := testMount(&MountOptions{MasterID: -1, NextTid: tidBarrier - 1})

	require.Panics(t, func() { m.allocTid(1) })
}

// concurrent allocators must receive pairwise disjoint ranges.
func TestAllocTidConcurrent(t *testing.T) {
	const nwork = 8
	const nalloc = 200
	const count = 3

	m, _, _ := testMount(&MountOptions{MasterID: -1})

	var mu sync.Mutex
	var basev []Tid

	wg := errgroup.Group{}
	for i := 0; i < nwork; i++ {
		wg.Go(func() error {
			for j := 0; j < nalloc; j++ {
				base := m.allocTid(count)
				mu.Lock()
				basev = append(basev, base)
				mu.Unlock()
			}
			return nil
		})
	}
	err := wg.Wait()
	require.NoError(t, err)

	sort.Slice(basev, func(i, j int) bool { return basev[i] < basev[j] })
	for i := 1; i < len(basev); i++ {
		require.True(t, basev[i] >= basev[i-1]+count,
			"ranges at %s and %s overlap", basev[i-1], basev[i])
	}
}
