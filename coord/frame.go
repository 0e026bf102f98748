/*
 * frame.go, part of remdio.
 *
 * Copyright 2026 The remdio Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package coord

import (
	"fmt"

	v3 "github.com/gochem/remdio/v3"
)

// Frame holds one timestep of a trajectory. V is nil unless the
// trajectory has velocities, and Idx has one element per replica
// exchange dimension.
type Frame struct {
	X    *v3.Matrix
	V    *v3.Matrix
	Box  Box
	Temp float64
	Idx  []int
}

// NewFrame allocates a frame for natoms atoms with the buffers that
// info requires.
func NewFrame(natoms int, info Info) *Frame {
	F := &Frame{X: v3.Zeros(natoms)}
	if info.Velocities {
		F.V = v3.Zeros(natoms)
	}
	if info.ReplicaIndices {
		F.Idx = make([]int, info.NDims)
	}
	return F
}

// Len returns the number of atoms in the frame.
func (F *Frame) Len() int {
	if F == nil || F.X == nil {
		return 0
	}
	return F.X.NVecs()
}

// Check returns an error if F can't hold the data described by info for
// natoms atoms.
func (F *Frame) Check(natoms int, info Info) error {
	if F == nil || F.X == nil {
		return fmt.Errorf("nil coordinates")
	}
	if n := F.X.NVecs(); n != natoms {
		return fmt.Errorf("%d coordinates given, but %d expected", n, natoms)
	}
	if info.Velocities {
		if F.V == nil {
			return fmt.Errorf("velocities required but frame has none")
		}
		if n := F.V.NVecs(); n != natoms {
			return fmt.Errorf("%d velocities given, but %d expected", n, natoms)
		}
	}
	if info.ReplicaIndices && len(F.Idx) != info.NDims {
		return fmt.Errorf("%d replica indices given, but %d expected", len(F.Idx), info.NDims)
	}
	return nil
}

// CopyFrom copies the contents of src into F. Both must have the same
// number of atoms. Velocities are copied only if both frames have them.
func (F *Frame) CopyFrom(src *Frame) {
	F.X.Copy(src.X)
	if F.V != nil && src.V != nil {
		F.V.Copy(src.V)
	}
	F.Box = src.Box
	F.Temp = src.Temp
	F.Idx = append(F.Idx[:0], src.Idx...)
}
