/*
 * v3_test.go, part of remdio.
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatrix(Te *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	A, err := NewMatrix(a)
	require.NoError(Te, err)
	assert.Equal(Te, 3, A.NVecs())
	View := A.VecView(1)
	View.Set(0, 0, 100)
	assert.Equal(Te, 100.0, A.At(1, 0))
	assert.Equal(Te, 100.0, A.Raw()[3])

	_, err = NewMatrix([]float64{1, 2})
	assert.Error(Te, err)
}

func TestSomeVecs(Te *testing.T) {
	A := Zeros(4)
	for i := 0; i < 4; i++ {
		A.SetVec(i, float64(i), float64(10*i), float64(100*i))
	}
	B := Zeros(2)
	B.SomeVecs(A, []int{3, 1})
	assert.Equal(Te, []float64{3, 30, 300, 1, 10, 100}, B.Raw())
	assert.Contains(Te, B.String(), "300.00")
}
