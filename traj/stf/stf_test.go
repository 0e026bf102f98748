/*
 * stf_test.go, part of remdio.
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

package stf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullInfo = coord.Info{Velocities: true, Box: true, BoxShape: coord.Orthogonal, Temperature: true, ReplicaIndices: true, NDims: 2}

func testFrame(natoms, frame int, info coord.Info) *coord.Frame {
	F := coord.NewFrame(natoms, info)
	for i := 0; i < natoms; i++ {
		F.X.SetVec(i, float64(frame)+0.125*float64(i), -1.5*float64(i), 7.001)
		if F.V != nil {
			F.V.SetVec(i, 0.5, -0.25, float64(frame))
		}
	}
	F.Box = coord.OrthoBox(20, 21, 22)
	F.Temp = 300.15 + float64(frame)
	for j := range F.Idx {
		F.Idx[j] = frame + j + 1
	}
	return F
}

func writeTraj(Te *testing.T, name string, natoms, nframes int, info coord.Info, appending bool) {
	W := New()
	require.NoError(Te, W.ProcessWriteArgs(map[string]string{"prec": "3", "level": "fastest"}))
	require.NoError(Te, W.SetupWrite(name, traj.Hint{NAtoms: natoms}, info, nframes, appending))
	require.NoError(Te, W.OpenWrite())
	for i := 0; i < nframes; i++ {
		require.NoError(Te, W.WriteFrame(i+1, testFrame(natoms, i, info)))
	}
	require.NoError(Te, W.Close())
	require.NoError(Te, W.Close())
}

func TestSTFRoundTrip(Te *testing.T) {
	for _, ext := range []string{".stf", ".stz"} {
		name := filepath.Join(Te.TempDir(), "test"+ext)
		writeTraj(Te, name, 6, 4, fullInfo, false)
		head, err := traj.Head(name, 4)
		require.NoError(Te, err)
		assert.NotEmpty(Te, head)
		R := New()
		require.True(Te, R.ID(name), ext)
		n, err := R.SetupRead(name, traj.Hint{NAtoms: 6})
		require.NoError(Te, err)
		assert.Equal(Te, traj.Unknown, n)
		assert.Equal(Te, fullInfo, R.Info())
		assert.Equal(Te, "3", R.Header()["prec"])
		n, err = R.Scan()
		require.NoError(Te, err)
		assert.Equal(Te, 4, n)
		require.NoError(Te, R.OpenRead())
		F := coord.NewFrame(6, R.Info())
		require.NoError(Te, R.ReadFrame(1, F))
		assert.InDelta(Te, 1.625, F.X.At(5, 0), 1e-9)
		assert.InDelta(Te, -7.5, F.X.At(5, 1), 1e-9)
		assert.InDelta(Te, 7.001, F.X.At(5, 2), 1e-9)
		assert.InDelta(Te, -0.25, F.V.At(2, 1), 1e-9)
		assert.Equal(Te, testFrame(6, 1, fullInfo).Temp, F.Temp)
		assert.Equal(Te, []int{2, 3}, F.Idx)
		assert.InDelta(Te, 21.0, F.Box.Lengths[1], 1e-6)
		assert.InDelta(Te, 90.0, F.Box.Angles[0], 1e-6)
		V := coord.NewFrame(6, R.Info())
		require.NoError(Te, R.ReadVelocity(2, V))
		assert.InDelta(Te, 2.0, V.V.At(0, 2), 1e-9)
		assert.InDelta(Te, 0.5, V.V.At(3, 0), 1e-9)
		assert.InDelta(Te, -0.25, V.V.At(5, 1), 1e-9)
		assert.Equal(Te, 0.0, V.X.At(5, 0))
		assert.True(Te, errors.Is(R.ReadFrame(2, F), traj.SequenceViolation))
		require.NoError(Te, R.ReadFrame(3, F))
		assert.True(Te, traj.LastFrame(R.ReadFrame(4, F)))
		require.NoError(Te, R.Close())
	}
}

func TestSTFPositionsOnly(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "plain.stf")
	writeTraj(Te, name, 3, 2, coord.Info{}, false)
	R := New()
	_, err := R.SetupRead(name, traj.Hint{})
	require.NoError(Te, err)
	assert.Equal(Te, coord.Info{}, R.Info())
	require.NoError(Te, R.OpenRead())
	F := coord.NewFrame(3, R.Info())
	require.NoError(Te, R.ReadFrame(0, F))
	require.NoError(Te, R.ReadFrame(1, F))
	assert.InDelta(Te, 1.25, F.X.At(2, 0), 1e-9)
	assert.True(Te, traj.LastFrame(R.ReadFrame(2, F)))
	assert.True(Te, errors.Is(R.ReadVelocity(3, F), traj.IOFailure))
	require.NoError(Te, R.Close())
}

func TestSTFAppend(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "append.stf")
	info := coord.Info{Temperature: true}
	writeTraj(Te, name, 3, 2, info, false)
	writeTraj(Te, name, 3, 3, info, true)
	R := New()
	_, err := R.SetupRead(name, traj.Hint{NAtoms: 3})
	require.NoError(Te, err)
	n, err := R.Scan()
	require.NoError(Te, err)
	assert.Equal(Te, 5, n)

	st, err := os.Stat(name)
	require.NoError(Te, err)
	//mismatches are caught before anything is opened.
	err = New().SetupWrite(name, traj.Hint{NAtoms: 3}, coord.Info{}, 0, true)
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	err = New().SetupWrite(name, traj.Hint{NAtoms: 7}, info, 0, true)
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	st2, err := os.Stat(name)
	require.NoError(Te, err)
	assert.Equal(Te, st.Size(), st2.Size())
}

func TestSTFBadTerminator(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "term.stf")
	data := "prec=3\ntemp=1\n** 1\n1 2 3\n* t=300\n4 5 6\n* t=abc\n7 8 9\n* t=310\n"
	require.NoError(Te, os.WriteFile(name, []byte(data), 0644))
	R := New()
	_, err := R.SetupRead(name, traj.Hint{NAtoms: 1})
	require.NoError(Te, err)
	require.NoError(Te, R.OpenRead())
	F := coord.NewFrame(1, R.Info())
	require.NoError(Te, R.ReadFrame(0, F))
	assert.Equal(Te, 300.0, F.Temp)
	assert.True(Te, errors.Is(R.ReadFrame(1, F), traj.IOFailure))
	//the stream position is lost after a failed frame.
	assert.True(Te, errors.Is(R.ReadFrame(2, F), traj.SequenceViolation))
	require.NoError(Te, R.Close())
}

func TestSTFBadInput(Te *testing.T) {
	dir := Te.TempDir()
	name := filepath.Join(dir, "bad.stf")
	require.NoError(Te, os.WriteFile(name, []byte("prec=3\n** 2\n1 2 3\n*\n"), 0644))
	R := New()
	assert.True(Te, R.ID(name))
	_, err := R.SetupRead(name, traj.Hint{NAtoms: 2})
	assert.True(Te, errors.Is(err, traj.IOFailure))
	_, err = New().SetupRead(name, traj.Hint{NAtoms: 3})
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	assert.Error(Te, New().ProcessWriteArgs(map[string]string{"prec": "12"}))
	assert.Error(Te, New().ProcessWriteArgs(map[string]string{"color": "blue"}))
	require.NoError(Te, os.WriteFile(name, []byte("just text\n"), 0644))
	assert.False(Te, New().ID(name))
}
