/*
 * box.go, part of remdio.
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
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const deg2rad = math.Pi / 180.0

// Box is a unit cell given by the lengths a, b, c (A) and the angles
// alpha, beta, gamma (degrees).
type Box struct {
	Lengths [3]float64
	Angles  [3]float64
}

// OrthoBox returns an orthogonal box with the given lengths.
func OrthoBox(a, b, c float64) Box {
	return Box{Lengths: [3]float64{a, b, c}, Angles: [3]float64{90, 90, 90}}
}

// Shape returns the shape of the box. A box with any length of zero
// is no box at all.
func (B Box) Shape() BoxShape {
	if B.Lengths[0] == 0 || B.Lengths[1] == 0 || B.Lengths[2] == 0 {
		return NoBox
	}
	for _, v := range B.Angles {
		if math.Abs(v-90.0) > 1e-3 {
			return Triclinic
		}
	}
	return Orthogonal
}

// Vectors returns the 3x3 matrix with the unit cell vectors as rows, with
// a along x and b in the xy plane.
func (B Box) Vectors() *mat.Dense {
	a, b, c := B.Lengths[0], B.Lengths[1], B.Lengths[2]
	ca := math.Cos(B.Angles[0] * deg2rad)
	cb := math.Cos(B.Angles[1] * deg2rad)
	cg := math.Cos(B.Angles[2] * deg2rad)
	sg := math.Sin(B.Angles[2] * deg2rad)
	cy := (ca - cb*cg) / sg
	cz := math.Sqrt(math.Max(0, 1-cb*cb-cy*cy))
	return mat.NewDense(3, 3, []float64{
		a, 0, 0,
		b * cg, b * sg, 0,
		c * cb, c * cy, c * cz,
	})
}

// BoxFromVectors builds a Box from a 3x3 matrix with the cell vectors as rows.
func BoxFromVectors(m mat.Matrix) Box {
	var B Box
	v := make([][]float64, 3)
	for i := range v {
		v[i] = mat.Row(nil, i, m)
		B.Lengths[i] = floats.Norm(v[i], 2)
	}
	angle := func(x, y []float64) float64 {
		nx, ny := floats.Norm(x, 2), floats.Norm(y, 2)
		if nx == 0 || ny == 0 {
			return 0
		}
		cos := floats.Dot(x, y) / (nx * ny)
		return math.Acos(math.Max(-1, math.Min(1, cos))) / deg2rad
	}
	B.Angles[0] = angle(v[1], v[2])
	B.Angles[1] = angle(v[0], v[2])
	B.Angles[2] = angle(v[0], v[1])
	return B
}
