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
// transaction start time.

import (
	"time"
)

// TimeStamp is a wall-clock snapshot taken when a transaction starts.
//
// Higher layers put it into on-disk records as is, at whichever granularity a
// record has room for. Both fields are derived from the same clock reading.
type TimeStamp struct {
	Usec uint64 // microseconds since the epoch
	Sec  uint32 // seconds since the epoch, same instant
}

// now reads the mount's clock and snapshots it at both granularities.
func (m *Mount) now() TimeStamp {
	t := m.clock()
	sec := t.Unix()
	return TimeStamp{
		Usec: uint64(sec)*1e6 + uint64(t.Nanosecond()/1e3),
		Sec:  uint32(sec),
	}
}

// Time converts the stamp back to time.Time at the microsecond granularity.
func (ts TimeStamp) Time() time.Time {
	return time.Unix(int64(ts.Usec/1e6), int64(ts.Usec%1e6)*1e3)
}

func (ts TimeStamp) String() string {
	return ts.Time().UTC().Format("2006-01-02 15:04:05.000000")
}
