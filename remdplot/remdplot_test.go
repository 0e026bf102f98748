/*
 * remdplot_test.go, part of remdio.
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

package remdplot

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/gochem/remdio/ensemble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace(Te *testing.T) {
	T := NewTrace(3)
	require.NoError(Te, T.Add(&ensemble.Batch{Step: 0, Slots: []int{0, 1, 2}, Reliable: true}))
	require.NoError(Te, T.Add(&ensemble.Batch{Step: 1, Slots: []int{1, 0, 2}, Reliable: true}))
	require.NoError(Te, T.Add(&ensemble.Batch{Step: 2, Slots: []int{0, 1, 2}}))
	require.NoError(Te, T.Add(&ensemble.Batch{Step: 3, Slots: []int{2, 0, 1}, Reliable: true}))
	assert.Error(Te, T.Add(&ensemble.Batch{Slots: []int{0}}))
	assert.Equal(Te, 4, T.Len())
	assert.Equal(Te, []int{0, 1, 0, 2}, T.Walk(0))
	assert.Equal(Te, []int{2, 2, 2, 1}, T.Walk(2))
	assert.Len(Te, T.bad, 3)

	name := filepath.Join(Te.TempDir(), "walk.png")
	require.NoError(Te, T.Save("Replica walk", []string{"300 K", "310 K", "320 K"}, name))
	st, err := os.Stat(name)
	require.NoError(Te, err)
	assert.Greater(Te, st.Size(), int64(0))
	assert.Error(Te, T.Save("", []string{"300 K"}, name))
	assert.Error(Te, NewTrace(2).Save("", nil, name))
}

func TestColors(Te *testing.T) {
	assert.Equal(Te, color.RGBA{R: 255, A: 255}, colors(0, 4))
	r, g, b := hsv2rgb(240, 1, 1)
	assert.Equal(Te, [3]uint8{0, 0, 255}, [3]uint8{r, g, b})
	r, g, b = hsv2rgb(0, 0, 0.5)
	assert.Equal(Te, [3]uint8{127, 127, 127}, [3]uint8{r, g, b})
}
