/*
 * matrix.go, part of remdio.
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

package v3

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const cols int = 3

// Matrix is a set of vectors in 3D space. Within the package it is understood
// that a "vector" is a row vector, i.e. the cartesian coordinates of a point.
type Matrix struct {
	*mat.Dense
}

// Zeros returns a zero-filled Matrix with vecs vectors.
func Zeros(vecs int) *Matrix {
	f := make([]float64, cols*vecs)
	return &Matrix{mat.NewDense(vecs, cols, f)}
}

// NewMatrix generates and returns a Matrix with 3 columns from data.
// data is used as the backing slice, it is not copied.
func NewMatrix(data []float64) (*Matrix, error) {
	l := len(data)
	if l%cols != 0 {
		return nil, Error{fmt.Sprintf("input slice length %d not divisible by %d", l, cols), []string{"NewMatrix"}, true}
	}
	return &Matrix{mat.NewDense(l/cols, cols, data)}, nil
}

// Dense2Matrix wraps a gonum Dense with 3 columns.
func Dense2Matrix(A *mat.Dense) *Matrix {
	return &Matrix{A}
}

// NVecs returns the number of vectors in F.
func (F *Matrix) NVecs() int {
	r, c := F.Dims()
	if c != cols {
		panic(ErrNotXx3Matrix)
	}
	return r
}

// VecView returns a view of the ith vector of the matrix.
func (F *Matrix) VecView(i int) *Matrix {
	r := F.Dense.Slice(i, i+1, 0, cols).(*mat.Dense)
	return &Matrix{r}
}

// Raw returns the backing slice of F, x0 y0 z0 x1 y1 z1 ...
// It panics if F is a view whose rows are not contiguous.
func (F *Matrix) Raw() []float64 {
	r := F.RawMatrix()
	if r.Stride != cols {
		panic(ErrNotContiguous)
	}
	return r.Data[:r.Rows*cols]
}

// SetVec sets the ith vector of F to x, y, z.
func (F *Matrix) SetVec(i int, x, y, z float64) {
	F.Set(i, 0, x)
	F.Set(i, 1, y)
	F.Set(i, 2, z)
}

// SomeVecs puts in F the vectors of A with the indexes in clist, in the
// same order as clist.
func (F *Matrix) SomeVecs(A *Matrix, clist []int) {
	fr, _ := F.Dims()
	if fr != len(clist) {
		panic(mat.ErrShape)
	}
	for key, val := range clist {
		for j := 0; j < cols; j++ {
			F.Set(key, j, A.At(val, j))
		}
	}
}

// String returns a neat string representation of a Matrix
func (F *Matrix) String() string {
	r, _ := F.Dims()
	v := make([]string, 0, r)
	row := make([]float64, cols)
	for i := 0; i < r; i++ {
		mat.Row(row, i, F)
		v = append(v, fmt.Sprintf("%6.2f %6.2f %6.2f", row[0], row[1], row[2]))
	}
	return "[" + strings.Join(v, "\n ") + "]"
}

//Errors

// Error is the error type of the v3 package.
type Error struct {
	message  string
	deco     []string
	critical bool
}

// Error returns a string with an error message.
func (err Error) Error() string {
	return err.message
}

// Decorate will add the dec string to the decoration slice of strings of the error,
// and return the resulting slice.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

// Critical return whether the error is critical or it can be ignored
func (err Error) Critical() bool { return err.critical }

// PanicMsg is a message used for panics, even though it does satisfy the error interface.
// for errors use Error.
type PanicMsg string

func (v PanicMsg) Error() string { return string(v) }

const (
	ErrNotXx3Matrix  = PanicMsg("remdio/v3: A Matrix should have 3 columns")
	ErrNotContiguous = PanicMsg("remdio/v3: Matrix rows are not contiguous")
)
