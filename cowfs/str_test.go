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
	"testing"
)

func TestTidStringParse(t *testing.T) {
	var testv = []struct {
		tid  Tid
		tids string
	}{
		{0, "0000000000000000"},
		{0x0000000000000001, "0000000000000001"},
		{0x0285cbac258bf266, "0285cbac258bf266"},
		{tidBarrier - 1, "fffffffffeffffff"},
	}

	for _, tt := range testv {
		tids := tt.tid.String()
		if tids != tt.tids {
			t.Errorf("%v: string: %q  ; want %q", tt.tid, tids, tt.tids)
		}

		tid, err := ParseTid(tt.tids)
		if !(tid == tt.tid && err == nil) {
			t.Errorf("%q: parse: %v, %v  ; want %v, nil", tt.tids, tid, err, tt.tid)
		}

		oid, err := ParseOid(tt.tids)
		if !(oid == Oid(tt.tid) && err == nil) {
			t.Errorf("%q: parse oid: %v, %v  ; want %v, nil", tt.tids, oid, err, Oid(tt.tid))
		}
	}

	// invalid input
	for _, tids := range []string{"", "123", "deadbeef", "zzzzzzzzzzzzzzzz", "0285cbac258bf2666"} {
		_, err := ParseTid(tids)
		if err == nil {
			t.Errorf("%q: parse unexpectedly succeeded", tids)
		}
	}
}
