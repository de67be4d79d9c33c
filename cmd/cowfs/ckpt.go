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

// Cowfs ckpt - print an allocator checkpoint file

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/cowfs/go/cowfs"
)

const ckptSummary = "print an allocator checkpoint file"

func ckptUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: cowfs ckpt <file>
Print the allocator state saved in a cowfs checkpoint file.

Options:

	-h --help	show this help
`)
}

func ckptMain(argv []string) {
	flags := flag.FlagSet{Usage: func() { ckptUsage(os.Stderr) }}
	flags.Init("", flag.ExitOnError)
	flags.Parse(argv[1:])

	argv = flags.Args()
	if len(argv) != 1 {
		flags.Usage()
		prog.Exit(2)
	}

	ckpt, err := cowfs.LoadCheckpoint(context.Background(), argv[0])
	if err != nil {
		prog.Fatal(err)
	}

	fmt.Printf("next_tid=%s\n", ckpt.NextTid)
	if ckpt.MasterID < 0 {
		fmt.Printf("master=single\n")
	} else {
		fmt.Printf("master=%d\n", ckpt.MasterID)
	}
}
