/*
 * crd_test.go, part of remdio.
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

package crd

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

// testFrame returns a frame whose coordinates depend on the frame number.
func testFrame(natoms, frame int, info coord.Info) *coord.Frame {
	F := coord.NewFrame(natoms, info)
	for i := 0; i < natoms; i++ {
		F.X.SetVec(i, float64(frame)+0.001*float64(i), -float64(i)*1.5, 100.125+float64(frame))
	}
	F.Temp = 300 + 10*float64(frame)
	for j := range F.Idx {
		F.Idx[j] = frame + j
	}
	F.Box = coord.OrthoBox(40, 41, 42.5)
	return F
}

func writeTraj(Te *testing.T, name string, natoms, nframes int, info coord.Info) {
	W := New()
	require.NoError(Te, W.SetupWrite(name, traj.Hint{NAtoms: natoms}, info, nframes, false))
	require.NoError(Te, W.OpenWrite())
	for i := 0; i < nframes; i++ {
		require.NoError(Te, W.WriteFrame(i+1, testFrame(natoms, i, info)))
	}
	require.NoError(Te, W.Close())
	require.NoError(Te, W.Close())
}

func TestCrdRoundTrip(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "remd.crd")
	info := coord.Info{Box: true, BoxShape: coord.Orthogonal, Temperature: true, ReplicaIndices: true, NDims: 2}
	writeTraj(Te, name, 10, 5, info)

	R := New()
	assert.True(Te, R.ID(name))
	n, err := R.SetupRead(name, traj.Hint{NAtoms: 10})
	require.NoError(Te, err)
	assert.Equal(Te, 5, n)
	assert.NoError(Te, R.Info().Compatible(info))
	require.NoError(Te, R.OpenRead())
	defer R.Close()
	F := coord.NewFrame(10, R.Info())
	//out of order on purpose, the format allows random access.
	for _, i := range []int{3, 0, 4, 1, 2} {
		require.NoError(Te, R.ReadFrame(i, F))
		want := testFrame(10, i, info)
		for a := 0; a < 10; a++ {
			for c := 0; c < 3; c++ {
				assert.InDelta(Te, want.X.At(a, c), F.X.At(a, c), 0.0005)
			}
		}
		assert.InDelta(Te, want.Temp, F.Temp, 0.005)
		assert.Equal(Te, want.Idx, F.Idx)
		assert.InDelta(Te, 42.5, F.Box.Lengths[2], 0.0005)
	}
	err = R.ReadFrame(5, F)
	require.Error(Te, err)
	assert.True(Te, errors.Is(err, traj.IOFailure))
	assert.True(Te, traj.LastFrame(err))
	assert.Error(Te, R.ReadVelocity(0, F))
	assert.Contains(Te, R.String(), "10 atoms, 5 frames")
}

func TestCrdPositionsOnly(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "plain.crd")
	writeTraj(Te, name, 7, 3, coord.Info{})
	R := New()
	n, err := R.SetupRead(name, traj.Hint{NAtoms: 7})
	require.NoError(Te, err)
	assert.Equal(Te, 3, n)
	assert.False(Te, R.Info().Box)
	assert.False(Te, R.Info().Temperature)
}

func TestCrdAtomMismatch(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "mismatch.crd")
	writeTraj(Te, name, 10, 4, coord.Info{Box: true})
	for _, natoms := range []int{12, 9, 20} {
		_, err := New().SetupRead(name, traj.Hint{NAtoms: natoms})
		assert.True(Te, errors.Is(err, traj.StructuralMismatch), "natoms %d: %v", natoms, err)
	}
	_, err := New().SetupRead(name, traj.Hint{})
	assert.True(Te, errors.Is(err, traj.SetupFailure))
}

func TestCrdNoVelocities(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "vel.crd")
	W := New()
	err := W.SetupWrite(name, traj.Hint{NAtoms: 3}, coord.Info{Velocities: true}, 0, false)
	assert.True(Te, errors.Is(err, traj.SetupFailure))
	_, statErr := os.Stat(name)
	assert.True(Te, os.IsNotExist(statErr))

	err = W.SetupWrite(name, traj.Hint{NAtoms: 3}, coord.Info{ReplicaIndices: true, NDims: 1}, 0, false)
	assert.True(Te, errors.Is(err, traj.SetupFailure))
}

func TestCrdOverflow(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "big.crd")
	W := New()
	require.NoError(Te, W.SetupWrite(name, traj.Hint{NAtoms: 1}, coord.Info{}, 0, false))
	require.NoError(Te, W.OpenWrite())
	defer W.Close()
	F := coord.NewFrame(1, coord.Info{})
	F.X.SetVec(0, 123456.0, 0, 0)
	err := W.WriteFrame(1, F)
	assert.True(Te, errors.Is(err, traj.IOFailure))
}

func TestCrdCompressedSequential(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "seq.crd.gz")
	info := coord.Info{Temperature: true}
	writeTraj(Te, name, 5, 4, info)

	R := New()
	assert.True(Te, R.ID(name))
	n, err := R.SetupRead(name, traj.Hint{NAtoms: 5})
	require.NoError(Te, err)
	assert.Equal(Te, traj.Unknown, n)
	n, err = R.Scan()
	require.NoError(Te, err)
	assert.Equal(Te, 4, n)
	require.NoError(Te, R.OpenRead())
	defer R.Close()
	F := coord.NewFrame(5, R.Info())
	require.NoError(Te, R.ReadFrame(0, F))
	require.NoError(Te, R.ReadFrame(2, F))
	assert.InDelta(Te, 320.0, F.Temp, 0.005)
	err = R.ReadFrame(1, F)
	assert.True(Te, errors.Is(err, traj.SequenceViolation))
	require.NoError(Te, R.ReadFrame(3, F))
	assert.True(Te, traj.LastFrame(R.ReadFrame(4, F)))
}

func TestCrdAppend(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "app.crd")
	info := coord.Info{Temperature: true}
	writeTraj(Te, name, 4, 2, info)

	W := New()
	require.NoError(Te, W.SetupWrite(name, traj.Hint{NAtoms: 4}, info, 0, true))
	require.NoError(Te, W.OpenWrite())
	require.NoError(Te, W.WriteFrame(3, testFrame(4, 2, info)))
	require.NoError(Te, W.Close())

	n, err := New().SetupRead(name, traj.Hint{NAtoms: 4})
	require.NoError(Te, err)
	assert.Equal(Te, 3, n)

	st, err := os.Stat(name)
	require.NoError(Te, err)
	err = New().SetupWrite(name, traj.Hint{NAtoms: 4}, coord.Info{}, 0, true)
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	err = New().SetupWrite(name, traj.Hint{NAtoms: 7}, info, 0, true)
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	st2, err := os.Stat(name)
	require.NoError(Te, err)
	assert.Equal(Te, st.Size(), st2.Size())
}

func TestCrdSmallBox(Te *testing.T) {
	for _, c := range []struct {
		natoms int
		info   coord.Info
	}{
		{2, coord.Info{Box: true, BoxShape: coord.Orthogonal}},
		{1, coord.Info{Box: true, BoxShape: coord.Triclinic}},
		{1, coord.Info{Box: true, BoxShape: coord.Orthogonal, Temperature: true}},
		{2, coord.Info{Box: true, BoxShape: coord.Triclinic, Temperature: true}},
	} {
		name := filepath.Join(Te.TempDir(), "small.crd")
		writeTraj(Te, name, c.natoms, 3, c.info)
		R := New()
		n, err := R.SetupRead(name, traj.Hint{NAtoms: c.natoms})
		require.NoError(Te, err, c)
		assert.Equal(Te, 3, n, c)
		assert.NoError(Te, R.Info().Compatible(c.info), c)
		assert.Equal(Te, c.info.BoxShape, R.Info().BoxShape, c)
		require.NoError(Te, R.OpenRead())
		F := coord.NewFrame(c.natoms, R.Info())
		require.NoError(Te, R.ReadFrame(2, F))
		assert.InDelta(Te, 2.0, F.X.At(0, 0), 0.0005)
		assert.InDelta(Te, 41.0, F.Box.Lengths[1], 0.0005)
		require.NoError(Te, R.Close())
	}
	//these boxes have the width of the coordinate line of the next frame
	for natoms, shape := range map[int]coord.BoxShape{1: coord.Orthogonal, 2: coord.Triclinic} {
		info := coord.Info{Box: true, BoxShape: shape}
		err := New().SetupWrite(filepath.Join(Te.TempDir(), "x.crd"), traj.Hint{NAtoms: natoms}, info, 0, false)
		assert.True(Te, errors.Is(err, traj.SetupFailure), natoms)
	}
}
