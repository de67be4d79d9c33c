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
// tid allocation.

import (
	"fmt"

	"github.com/golang/glog"
)

// allocTid reserves count ids and returns the base of the reservation.
//
// In single-master mode the reservation is [base, base+count). In
// multi-master mode the base is rounded up to the MaxMasters stride with this
// master's slot in the low bits, and the reservation is count ids spaced
// MaxMasters apart - all masters round to the same stride and or-in disjoint
// slots, so concurrently computed ranges never collide.
//
// No spacing is required between successive calls beyond monotonicity.
//
// allocTid panics if the reservation would reach the end of the id space:
// handing out ids past the barrier would risk id reuse, which the whole
// multiversion store cannot survive.
func (m *Mount) allocTid(count int) Tid {
	m.tidMu.Lock()

	var tid Tid
	if m.masterID < 0 {
		tid = m.nextTid + 1
		m.nextTid = tid + Tid(count)
	} else {
		tid = (m.nextTid + MaxMasters) &^ (MaxMasters - 1)
		m.nextTid = tid + Tid(count)*MaxMasters
		tid |= Tid(m.masterID)
	}

	m.tidMu.Unlock()

	if tid >= tidBarrier {
		panic(fmt.Sprintf("cowfs: mount: ran out of tids (%s)", tid))
	}
	if glog.V(2) {
		glog.Infof("cowfs: alloc tid %s +%d", tid, count)
	}
	return tid
}
