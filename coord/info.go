/*
 * info.go, part of remdio.
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
	"strings"
)

// BoxShape describes the unit cell of a trajectory.
type BoxShape int

const (
	NoBox BoxShape = iota
	Orthogonal
	Triclinic
)

func (b BoxShape) String() string {
	switch b {
	case Orthogonal:
		return "orthogonal"
	case Triclinic:
		return "triclinic"
	default:
		return "none"
	}
}

// Info describes what each frame of a trajectory contains. Positions are
// always present. Info is set when a trajectory is set up and not changed
// afterwards.
type Info struct {
	Velocities     bool
	Box            bool
	BoxShape       BoxShape
	Temperature    bool
	ReplicaIndices bool
	NDims          int //number of replica exchange dimensions, if ReplicaIndices
}

// Compatible returns an error describing the first flag in which I and o
// differ, or nil. The box shape is not compared, only its presence.
func (I Info) Compatible(o Info) error {
	switch {
	case I.Velocities != o.Velocities:
		return fmt.Errorf("velocities: expected %t, found %t", I.Velocities, o.Velocities)
	case I.Box != o.Box:
		return fmt.Errorf("box: expected %t, found %t", I.Box, o.Box)
	case I.Temperature != o.Temperature:
		return fmt.Errorf("temperature: expected %t, found %t", I.Temperature, o.Temperature)
	case I.ReplicaIndices != o.ReplicaIndices:
		return fmt.Errorf("replica indices: expected %t, found %t", I.ReplicaIndices, o.ReplicaIndices)
	case I.ReplicaIndices && I.NDims != o.NDims:
		return fmt.Errorf("replica dimensions: expected %d, found %d", I.NDims, o.NDims)
	}
	return nil
}

func (I Info) String() string {
	s := []string{"positions"}
	if I.Velocities {
		s = append(s, "velocities")
	}
	if I.Box {
		s = append(s, fmt.Sprintf("box(%s)", I.BoxShape))
	}
	if I.Temperature {
		s = append(s, "temperature")
	}
	if I.ReplicaIndices {
		s = append(s, fmt.Sprintf("indices(%d)", I.NDims))
	}
	return strings.Join(s, ", ")
}
