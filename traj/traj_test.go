/*
 * traj_test.go, part of remdio.
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

package traj

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(Te *testing.T) {
	err := NewError(StructuralMismatch, "dcd", "a.dcd", "SetupRead", "10 atoms in file, 12 expected")
	var e error = err
	assert.True(Te, errors.Is(e, StructuralMismatch))
	assert.False(Te, errors.Is(e, IOFailure))
	assert.True(Te, err.Critical())
	assert.Contains(Te, err.Error(), "a.dcd")
	assert.Contains(Te, err.Error(), "structural mismatch")

	wrapped := fmt.Errorf("opening ensemble: %w", Decorate(e, "Open"))
	assert.Equal(Te, StructuralMismatch, KindOf(wrapped))
	assert.Equal(Te, []string{"SetupRead", "Open"}, err.Decorate(""))

	last := LastFrameError("crd", "a.crd", "ReadFrame", 5)
	assert.True(Te, LastFrame(last))
	assert.True(Te, errors.Is(last, IOFailure))
	assert.False(Te, last.Critical())
	assert.False(Te, LastFrame(err))

	cause := errors.New("disk on fire")
	w := Wrap(IOFailure, "pdb", "x.pdb", "ReadFrame", cause)
	assert.ErrorIs(Te, w, cause)
}

func TestCompressedSources(Te *testing.T) {
	dir := Te.TempDir()
	for _, c := range []Compression{Plain, Gzip, Zstd} {
		name := filepath.Join(dir, fmt.Sprintf("f%d", c))
		f, err := os.Create(name)
		require.NoError(Te, err)
		w, err := NewCompressor(f, c)
		require.NoError(Te, err)
		_, err = w.Write([]byte("first line\nsecond line\nthird\n"))
		require.NoError(Te, err)
		require.NoError(Te, w.Close())
		require.NoError(Te, f.Close())

		raw, err := os.ReadFile(name)
		require.NoError(Te, err)
		assert.Equal(Te, c, Sniff(raw))

		head, err := Head(name, 5)
		require.NoError(Te, err)
		assert.Equal(Te, "first", string(head))
		lines, err := HeadLines(name, 2)
		require.NoError(Te, err)
		assert.Equal(Te, []string{"first line", "second line"}, lines)
	}
	assert.Equal(Te, Gzip, CompressionFromName("a.crd.gz"))
	assert.Equal(Te, Plain, CompressionFromName("a.crd"))
}
