/*
 * io.go, part of remdio.
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
	"github.com/gochem/remdio/coord"
	"go.uber.org/zap"
)

// Unknown is returned by SetupRead when the number of frames can only be
// determined by reading the whole file. See Scanner.
const Unknown = -2

// Hint is the structural information a trajectory must agree with.
// Names is optional; when given, formats that store atom names check the
// ordering against it.
type Hint struct {
	NAtoms int
	Names  []string
}

// IO is the interface for a trajectory format. An IO value is bound to at
// most one file at a time.
type IO interface {
	//Format returns the short name of the format, e.g. "dcd"
	Format() string

	//ID reports whether the file looks like this format. It opens and closes
	//the file on its own and never disturbs other readers.
	ID(name string) bool

	//SetupRead opens name for reading, checks it against hint and returns
	//the number of frames, or Unknown.
	SetupRead(name string, hint Hint) (int, error)

	//SetupWrite prepares name for writing frames with the given metadata.
	//nframes is the number of frames expected (0 if not known). It fails if
	//the format can't represent something info asks for. No bytes are
	//written to disk before OpenWrite.
	SetupWrite(name string, hint Hint, info coord.Info, nframes int, appending bool) error

	OpenRead() error
	OpenWrite() error

	//ReadFrame puts frame i in F. Sequential formats only support
	//increasing values of i.
	ReadFrame(i int, F *coord.Frame) error

	//ReadVelocity puts only the velocities of frame i in F.
	ReadVelocity(i int, F *coord.Frame) error

	//WriteFrame writes F as the next frame. seq is the caller's output
	//position, and must increase with each call.
	WriteFrame(seq int, F *coord.Frame) error

	//Close releases the file. Calling it more than once is harmless.
	Close() error

	//Info returns the metadata of the frames in the trajectory.
	Info() coord.Info

	//Len returns the number of atoms per frame, 0 before setup.
	Len() int

	//String returns a human readable summary of the trajectory.
	String() string
}

// Scanner is implemented by formats that return Unknown from SetupRead.
// Scan reads through the whole file once and returns the number of frames,
// without changing the read position used by ReadFrame.
type Scanner interface {
	Scan() (int, error)
}

// ArgProcessor is implemented by formats that accept write options.
// ProcessWriteArgs must be called before SetupWrite.
type ArgProcessor interface {
	ProcessWriteArgs(args map[string]string) error
}

// ArrayIO is implemented by formats that can keep a whole replica ensemble
// in one file, as EnsembleSize consecutive frames per step, in member
// order. ReadFrame and WriteFrame still see the individual frames.
type ArrayIO interface {
	//EnsembleSize returns the number of frames per step, or 0 if the file
	//holds a plain trajectory.
	EnsembleSize() int

	//ReadArray reads the frames of step into frames, which must have
	//EnsembleSize elements.
	ReadArray(step int, frames []*coord.Frame) error

	//WriteArray writes frames as the next step.
	WriteArray(seq int, frames []*coord.Frame) error
}

// Logged is implemented by formats that report non-fatal problems.
type Logged interface {
	SetLogger(l *zap.Logger)
}

// NopIfNil returns l, or a no-op logger if l is nil.
func NopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
