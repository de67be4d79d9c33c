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

// Cowfs idinfo - decode a transaction or object identifier

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/cowfs/go/cowfs"
)

const idinfoSummary = "decode a transaction or object identifier"

func idinfoUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: cowfs idinfo [OPTIONS] <id> ...
Decode cowfs transaction/object identifiers.

<id> is a 16-character hex string the way cowfs prints ids.

For every id, idinfo prints its hex and decimal forms, whether it is below
the id-space barrier, and - with -multimaster - which write master issued it.

Options:

	-multimaster	interpret ids as issued by a multi-master mount
	-h --help	show this help
`)
}

func idinfoMain(argv []string) {
	flags := flag.FlagSet{Usage: func() { idinfoUsage(os.Stderr) }}
	flags.Init("", flag.ExitOnError)
	multimaster := flags.Bool("multimaster", false, "interpret ids as issued by a multi-master mount")
	flags.Parse(argv[1:])

	argv = flags.Args()
	if len(argv) < 1 {
		flags.Usage()
		prog.Exit(2)
	}

	for _, arg := range argv {
		tid, err := cowfs.ParseTid(arg)
		if err != nil {
			prog.Fatal(err)
		}

		fmt.Printf("%s:\n", tid)
		fmt.Printf("\tdec:\t%d\n", uint64(tid))
		fmt.Printf("\tvalid:\t%v\n", tid.Valid())
		if *multimaster {
			fmt.Printf("\tmaster:\t%d\n", tid.Master())
		}
	}
}
