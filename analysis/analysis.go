/*
 * analysis.go, part of remdio.
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

// Package analysis contains actions that consume the frames of a
// trajectory, such as the ones coming out of an ensemble step.
package analysis

import (
	"fmt"
	"math"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	v3 "github.com/gochem/remdio/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Action is an analysis run frame by frame.
type Action interface {
	//Setup is called once, before the first frame.
	Setup(hint traj.Hint) error
	//Do processes the frame of the given step.
	Do(step int, F *coord.Frame) error
}

// RadGyr computes, for each frame, the radius of gyration of a set of
// atoms and the largest distance from one of them to their center.
type RadGyr struct {
	//Mask holds the indexes of the atoms considered. Empty means all.
	Mask []int
	//Mass weights the calculation by the atomic masses, taken from the
	//names in the hint given to Setup.
	Mass bool

	Steps []int
	Rg    []float64
	Max   []float64

	natoms int
	w      *mat.VecDense
	wsum   float64
	sel    *v3.Matrix
	center *mat.VecDense
	row    []float64
}

// Setup checks the mask and the masses against hint.
func (R *RadGyr) Setup(hint traj.Hint) error {
	R.natoms = hint.NAtoms
	if len(R.Mask) == 0 {
		R.Mask = make([]int, hint.NAtoms)
		for i := range R.Mask {
			R.Mask[i] = i
		}
	}
	n := len(R.Mask)
	if n == 0 {
		return fmt.Errorf("RadGyr: no atoms selected")
	}
	for _, i := range R.Mask {
		if i < 0 || i >= hint.NAtoms {
			return fmt.Errorf("RadGyr: atom %d out of range for %d atoms", i, hint.NAtoms)
		}
	}
	w := make([]float64, n)
	if R.Mass {
		if len(hint.Names) != hint.NAtoms {
			return fmt.Errorf("RadGyr: mass weighting needs the %d atom names, got %d", hint.NAtoms, len(hint.Names))
		}
		all, err := Masses(hint.Names)
		if err != nil {
			return fmt.Errorf("RadGyr: %w", err)
		}
		for k, i := range R.Mask {
			w[k] = all[i]
		}
	} else {
		floats.AddConst(1, w)
	}
	R.w = mat.NewVecDense(n, w)
	R.wsum = floats.Sum(w)
	R.sel = v3.Zeros(n)
	R.center = mat.NewVecDense(3, nil)
	R.row = make([]float64, 3)
	return nil
}

// Do appends the radius of gyration and the maximum distance of F.
func (R *RadGyr) Do(step int, F *coord.Frame) error {
	if R.sel == nil {
		return fmt.Errorf("RadGyr: Do called before Setup")
	}
	if F.Len() != R.natoms {
		return fmt.Errorf("RadGyr: frame of step %d has %d atoms, %d expected", step, F.Len(), R.natoms)
	}
	R.sel.SomeVecs(F.X, R.Mask)
	R.center.MulVec(R.sel.T(), R.w)
	R.center.ScaleVec(1/R.wsum, R.center)
	c := R.center.RawVector().Data
	var sum, max float64
	for i := 0; i < R.sel.NVecs(); i++ {
		mat.Row(R.row, i, R.sel)
		d := floats.Distance(R.row, c, 2)
		sum += R.w.AtVec(i) * d * d
		max = math.Max(max, d)
	}
	R.Steps = append(R.Steps, step)
	R.Rg = append(R.Rg, math.Sqrt(sum/R.wsum))
	R.Max = append(R.Max, max)
	return nil
}
