/*
 * pdb_test.go, part of remdio.
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

package pdb

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

var names = []string{"N", "CA", "C", "O", "CB", "HB1A"}

func testFrame(frame int) *coord.Frame {
	F := coord.NewFrame(len(names), coord.Info{Box: true})
	for i := range names {
		F.X.SetVec(i, float64(frame)+0.5*float64(i), -2.25*float64(i), 10.125)
	}
	F.Box = coord.OrthoBox(30, 31, 32)
	return F
}

func writeModels(Te *testing.T, name string, nframes int) {
	W := New()
	require.NoError(Te, W.SetupWrite(name, traj.Hint{NAtoms: len(names), Names: names}, coord.Info{Box: true, BoxShape: coord.Orthogonal}, nframes, false))
	require.NoError(Te, W.OpenWrite())
	for i := 0; i < nframes; i++ {
		require.NoError(Te, W.WriteFrame(i+1, testFrame(i)))
	}
	require.NoError(Te, W.Close())
	require.NoError(Te, W.Close())
}

func TestPDBRoundTrip(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "models.pdb")
	writeModels(Te, name, 4)
	R := New()
	assert.True(Te, R.ID(name))
	hint, err := ReadHint(name)
	require.NoError(Te, err)
	assert.Equal(Te, names, hint.Names)
	n, err := R.SetupRead(name, hint)
	require.NoError(Te, err)
	assert.Equal(Te, traj.Unknown, n)
	assert.True(Te, R.Info().Box)
	n, err = R.Scan()
	require.NoError(Te, err)
	assert.Equal(Te, 4, n)
	require.NoError(Te, R.OpenRead())
	F := coord.NewFrame(len(names), R.Info())
	require.NoError(Te, R.ReadFrame(0, F))
	assert.InDelta(Te, 2.5, F.X.At(5, 0), 1e-6)
	require.NoError(Te, R.ReadFrame(2, F))
	assert.InDelta(Te, 4.5, F.X.At(5, 0), 1e-6)
	assert.InDelta(Te, -11.25, F.X.At(5, 1), 1e-6)
	assert.InDelta(Te, 31.0, F.Box.Lengths[1], 1e-6)
	assert.InDelta(Te, 90.0, F.Box.Angles[2], 1e-6)
	err = R.ReadFrame(1, F)
	assert.True(Te, errors.Is(err, traj.SequenceViolation))
	require.NoError(Te, R.ReadFrame(3, F))
	err = R.ReadFrame(4, F)
	assert.True(Te, traj.LastFrame(err))
	require.NoError(Te, R.Close())
}

func TestPDBNamesMismatch(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "models.pdb")
	writeModels(Te, name, 1)
	other := append([]string{}, names...)
	other[1], other[2] = other[2], other[1]
	_, err := New().SetupRead(name, traj.Hint{NAtoms: len(names), Names: other})
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	_, err = New().SetupRead(name, traj.Hint{NAtoms: 7})
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
}

func TestPDBUnsupported(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "v.pdb")
	for _, info := range []coord.Info{{Velocities: true}, {Temperature: true}, {ReplicaIndices: true, NDims: 1}} {
		err := New().SetupWrite(name, traj.Hint{NAtoms: 3}, info, 0, false)
		assert.True(Te, errors.Is(err, traj.SetupFailure), info.String())
	}
	_, err := os.Stat(name)
	assert.True(Te, os.IsNotExist(err))
	assert.Error(Te, New().ReadVelocity(0, nil))
}

func TestPDBSingleModel(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "single.pdb")
	text := "REMARK single structure\n" +
		"ATOM      1  O   HOH A   1       1.000   2.000   3.000  1.00  0.00\n" +
		"ATOM      2  H1  HOH A   1       1.500   2.000   3.000  1.00  0.00\n" +
		"END\n"
	require.NoError(Te, os.WriteFile(name, []byte(text), 0644))
	R := New()
	require.True(Te, R.ID(name))
	_, err := R.SetupRead(name, traj.Hint{})
	require.NoError(Te, err)
	assert.False(Te, R.Info().Box)
	n, err := R.Scan()
	require.NoError(Te, err)
	assert.Equal(Te, 1, n)
	require.NoError(Te, R.OpenRead())
	F := coord.NewFrame(2, R.Info())
	require.NoError(Te, R.ReadFrame(0, F))
	assert.InDelta(Te, 1.5, F.X.At(1, 0), 1e-9)
	assert.InDelta(Te, 3.0, F.X.At(1, 2), 1e-9)
	assert.True(Te, traj.LastFrame(R.ReadFrame(1, F)))
	require.NoError(Te, R.Close())
}

func TestPDBAppend(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "models.pdb.gz")
	writeModels(Te, name, 2)
	W := New()
	require.NoError(Te, W.SetupWrite(name, traj.Hint{NAtoms: len(names)}, coord.Info{Box: true}, 0, true))
	require.NoError(Te, W.OpenWrite())
	require.NoError(Te, W.WriteFrame(3, testFrame(2)))
	require.NoError(Te, W.Close())
	R := New()
	_, err := R.SetupRead(name, traj.Hint{NAtoms: len(names)})
	require.NoError(Te, err)
	n, err := R.Scan()
	require.NoError(Te, err)
	assert.Equal(Te, 3, n)

	st, err := os.Stat(name)
	require.NoError(Te, err)
	err = New().SetupWrite(name, traj.Hint{NAtoms: 7}, coord.Info{Box: true}, 0, true)
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	err = New().SetupWrite(name, traj.Hint{NAtoms: len(names)}, coord.Info{}, 0, true)
	assert.True(Te, errors.Is(err, traj.StructuralMismatch))
	st2, err := os.Stat(name)
	require.NoError(Te, err)
	assert.Equal(Te, st.Size(), st2.Size())
}

func TestPDBBadCryst1(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "cryst.pdb")
	atom := "ATOM      1  O   HOH A   1       1.000   2.000   3.000  1.00  0.00\n"
	good := "CRYST1   30.000   31.000   32.000  90.00  90.00  90.00 P 1           1\n"
	bad := "CRYST1   30.000   3x.000   32.000  90.00  90.00  90.00 P 1           1\n"
	text := ""
	for _, c := range []string{good, bad, good} {
		text += "MODEL        1\n" + c + atom + "ENDMDL\n"
	}
	require.NoError(Te, os.WriteFile(name, []byte(text), 0644))
	R := New()
	_, err := R.SetupRead(name, traj.Hint{NAtoms: 1})
	require.NoError(Te, err)
	require.NoError(Te, R.OpenRead())
	F := coord.NewFrame(1, R.Info())
	require.NoError(Te, R.ReadFrame(0, F))
	assert.InDelta(Te, 31.0, F.Box.Lengths[1], 1e-9)
	assert.True(Te, errors.Is(R.ReadFrame(1, F), traj.IOFailure))
	//the rest of the bad model was not consumed, so the position is lost.
	assert.True(Te, errors.Is(R.ReadFrame(2, F), traj.SequenceViolation))
	require.NoError(Te, R.Close())
}
