/*
 * replica_test.go, part of remdio.
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

package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemperatures(Te *testing.T) {
	M := Temperatures()
	slots := make([]int, 4)
	require.True(Te, M.Resolve([]float64{300, 310, 320, 330}, slots))
	assert.Equal(Te, []int{0, 1, 2, 3}, slots)
	assert.Equal(Te, []float64{300, 310, 320, 330}, M.Targets())

	require.True(Te, M.Resolve([]float64{310, 300, 330, 320}, slots))
	assert.Equal(Te, []int{1, 0, 3, 2}, slots)
	assert.Equal(Te, 3, M.Slot(2))
	assert.Equal(Te, 2, M.Position(320))
	assert.Equal(Te, -1, M.Position(315))

	//two slots at 310
	assert.False(Te, M.Resolve([]float64{310, 310, 330, 320}, slots))
	assert.Equal(Te, []int{0, 1, 2, 3}, slots)
	//a temperature outside the target set
	assert.False(Te, M.Resolve([]float64{300, 315, 330, 320}, slots))
	assert.Equal(Te, []int{0, 1, 2, 3}, slots)
	//and back to normal
	require.True(Te, M.Resolve([]float64{330, 320, 310, 300}, slots))
	assert.Equal(Te, []int{3, 2, 1, 0}, slots)
}

func TestTargetsFromFirstGoodStep(Te *testing.T) {
	M := Temperatures()
	slots := make([]int, 3)
	assert.False(Te, M.Resolve([]float64{300, 300, 310}, slots))
	assert.Nil(Te, M.Targets())
	require.True(Te, M.Resolve([]float64{320, 300, 310}, slots))
	assert.Equal(Te, []int{1, 2, 0}, slots)
	assert.Equal(Te, 3, M.Len())
}

func TestIndices(Te *testing.T) {
	M := Indices()
	keys := [][]int{{2, 1}, {1, 2}, {1, 1}, {2, 2}}
	slots := make([]int, 4)
	require.True(Te, M.Resolve(keys, slots))
	assert.Equal(Te, []int{2, 1, 0, 3}, slots)
	//the map keeps its own copy of the targets
	keys[2][0] = 9
	assert.Equal(Te, []int{1, 1}, M.Targets()[0])
	assert.False(Te, M.Resolve([][]int{{2, 1}, {1, 2}, {2, 1}, {2, 2}}, slots))
	assert.Equal(Te, []int{0, 1, 2, 3}, slots)
}

func TestSetTargets(Te *testing.T) {
	M := Temperatures()
	assert.Error(Te, M.SetTargets([]float64{300, 300}))
	require.NoError(Te, M.SetTargets([]float64{310, 300}))
	slots := make([]int, 3)
	assert.False(Te, M.Resolve([]float64{300, 310, 320}, slots))
	assert.Panics(Te, func() { M.Resolve([]float64{300}, slots) })
}
