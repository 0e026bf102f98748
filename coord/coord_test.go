/*
 * coord_test.go, part of remdio.
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxVectorsRoundTrip(Te *testing.T) {
	for _, b := range []Box{
		OrthoBox(30, 40, 50),
		{Lengths: [3]float64{30, 30, 30}, Angles: [3]float64{109.4712, 109.4712, 109.4712}},
		{Lengths: [3]float64{20, 25, 35}, Angles: [3]float64{90, 100, 90}},
	} {
		got := BoxFromVectors(b.Vectors())
		for i := 0; i < 3; i++ {
			assert.InDelta(Te, b.Lengths[i], got.Lengths[i], 1e-9)
			assert.InDelta(Te, b.Angles[i], got.Angles[i], 1e-6)
		}
	}
	assert.Equal(Te, Orthogonal, OrthoBox(1, 2, 3).Shape())
	assert.Equal(Te, NoBox, Box{}.Shape())
	assert.Equal(Te, Triclinic, Box{Lengths: [3]float64{1, 1, 1}, Angles: [3]float64{60, 60, 60}}.Shape())
}

func TestNewFrame(Te *testing.T) {
	info := Info{Velocities: true, ReplicaIndices: true, NDims: 2}
	F := NewFrame(10, info)
	assert.Equal(Te, 10, F.Len())
	require.NotNil(Te, F.V)
	assert.Len(Te, F.Idx, 2)
	assert.NoError(Te, F.Check(10, info))
	assert.Error(Te, F.Check(11, info))

	G := NewFrame(10, Info{})
	assert.Nil(Te, G.V)
	assert.Error(Te, G.Check(10, info))
	G.X.Set(3, 1, 7)
	F.CopyFrom(G)
	assert.Equal(Te, 7.0, F.X.At(3, 1))
	assert.Empty(Te, F.Idx)
}

func TestInfoCompatible(Te *testing.T) {
	a := Info{Temperature: true}
	assert.NoError(Te, a.Compatible(Info{Temperature: true, Box: false}))
	assert.Error(Te, a.Compatible(Info{}))
	b := Info{ReplicaIndices: true, NDims: 2}
	assert.Error(Te, b.Compatible(Info{ReplicaIndices: true, NDims: 3}))
	assert.Equal(Te, "positions, temperature", a.String())
}
