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
// carrying allocator state across remounts.

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/shamaton/msgpack"

	"lab.nexedi.com/kirr/go123/xerr"

	"lab.nexedi.com/kirr/cowfs/go/internal/log"
	"lab.nexedi.com/kirr/cowfs/go/internal/xcontext/task"
)

// errBadCheckpoint is returned when a checkpoint file decodes into state no
// mount could have saved.
var errBadCheckpoint = errors.New("malformed allocator state")

// Checkpoint is the allocator state an unmount leaves behind for the next
// mount to continue from.
//
// Only the tid cursor is saved. Ids still unused inside objid cache entries
// are deliberately lost with the entries - id space is plentiful and never
// reused, so dropping reserved-but-unissued ranges is always safe while
// saving them would not be.
type Checkpoint struct {
	NextTid  Tid
	MasterID int
}

// Checkpoint captures the mount's current allocator state.
func (m *Mount) Checkpoint() Checkpoint {
	return Checkpoint{
		NextTid:  m.NextTid(),
		MasterID: m.masterID,
	}
}

// SaveCheckpoint atomically saves the mount's allocator state to a file.
//
// Call it only with the mount quiescent, e.g. right before Close - a
// checkpoint raced with live allocation would lag nextTid and seed a future
// mount with already-issued ids.
func (m *Mount) SaveCheckpoint(ctx context.Context, path string) (err error) {
	ctx = task.Runningf(ctx, "save checkpoint %s", path)
	defer task.ErrContext(&err, ctx)

	ckpt := m.Checkpoint()
	data, err := msgpack.Encode(ckpt)
	if err != nil {
		return err
	}

	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return err
	}

	log.Infof(ctx, "next tid: %s", ckpt.NextTid)
	return nil
}

// LoadCheckpoint loads allocator state saved by SaveCheckpoint.
//
// The result seeds MountOptions of the next mount. It is the caller's duty to
// load the checkpoint that actually matches the volume group - a stale one
// would restart the id space behind what is already on disk.
func LoadCheckpoint(ctx context.Context, path string) (_ Checkpoint, err error) {
	defer xerr.Contextf(&err, "load checkpoint %s", path)

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Checkpoint{}, err
	}

	ckpt := Checkpoint{}
	err = msgpack.Decode(data, &ckpt)
	if err != nil {
		return Checkpoint{}, err
	}

	if !ckpt.NextTid.Valid() || ckpt.MasterID >= MaxMasters {
		return Checkpoint{}, errBadCheckpoint
	}

	return ckpt, nil
}
