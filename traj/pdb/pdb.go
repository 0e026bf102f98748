/*
 * pdb.go, part of remdio.
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

// Package pdb reads and writes multi-model PDB files as trajectories. Each
// MODEL/ENDMDL block is a frame, and a CRYST1 record gives its box. PDB files
// are read sequentially; the number of frames is only known after a Scan.
package pdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	"go.uber.org/zap"
)

const format = "pdb"

// records is the set of record names accepted at the beginning of a file.
var records = map[string]bool{
	"HEADER": true, "TITLE": true, "COMPND": true, "REMARK": true, "CRYST1": true,
	"MODEL": true, "ATOM": true, "HETATM": true, "SOURCE": true, "AUTHOR": true,
	"EXPDTA": true, "KEYWDS": true, "SEQRES": true, "JRNL": true,
}

// recordName returns the record name in the first six columns of l.
func recordName(l string) string {
	if len(l) > 6 {
		l = l[:6]
	}
	return strings.TrimSpace(l)
}

func isAtom(rec string) bool { return rec == "ATOM" || rec == "HETATM" }

// PDBObj is a multi-model PDB file, for reading or for writing.
type PDBObj struct {
	natoms   int
	filename string
	info     coord.Info
	names    []string
	nframes  int
	log      *zap.Logger

	src      *traj.Source
	next     int
	readable bool

	f         *os.File
	w         *bufio.Writer
	comp      io.WriteCloser
	appending bool
	writable  bool
	setupW    bool
}

// New returns a PDBObj with nothing attached to it.
func New() *PDBObj {
	return &PDBObj{log: zap.NewNop(), nframes: traj.Unknown}
}

func (P *PDBObj) Format() string { return format }

// SetLogger sets the logger for non-fatal problems.
func (P *PDBObj) SetLogger(l *zap.Logger) { P.log = traj.NopIfNil(l) }

// Len returns the number of atoms per frame.
func (P *PDBObj) Len() int { return P.natoms }

func (P *PDBObj) Info() coord.Info { return P.info }

func (P *PDBObj) errorf(kind traj.Kind, caller, msg string, a ...interface{}) error {
	return traj.NewError(kind, format, P.filename, caller, fmt.Sprintf(msg, a...))
}

// ID checks that the first two lines start with PDB record names.
func (P *PDBObj) ID(name string) bool {
	lines, err := traj.HeadLines(name, 2)
	if err != nil || len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if !records[recordName(l)] {
			return false
		}
	}
	return true
}

// firstModel reads the first model of r and returns its atom names and
// whether it has a box.
func firstModel(r *bufio.Reader) ([]string, bool, error) {
	var names []string
	box := false
	for {
		l, err := r.ReadString('\n')
		if err != nil && l == "" {
			if errors.Is(err, io.EOF) {
				return names, box, nil
			}
			return nil, false, err
		}
		rec := recordName(l)
		switch {
		case rec == "CRYST1" && names == nil:
			box = true
		case isAtom(rec):
			n := ""
			if len(l) >= 16 {
				n = strings.TrimSpace(l[12:16])
			}
			names = append(names, n)
		case (rec == "ENDMDL" || rec == "END") && len(names) > 0:
			return names, box, nil
		}
	}
}

// ReadHint returns the structural hint given by the first model of a PDB
// file: the number of atoms and their names.
func ReadHint(name string) (traj.Hint, error) {
	src, err := traj.OpenSource(name)
	if err != nil {
		return traj.Hint{}, traj.Wrap(traj.SetupFailure, format, name, "ReadHint", err)
	}
	defer src.Close()
	names, _, err := firstModel(src.Reader)
	if err != nil {
		return traj.Hint{}, traj.Wrap(traj.SetupFailure, format, name, "ReadHint", err)
	}
	if len(names) == 0 {
		return traj.Hint{}, traj.NewError(traj.SetupFailure, format, name, "ReadHint", "no atoms in file")
	}
	return traj.Hint{NAtoms: len(names), Names: names}, nil
}

// SetupRead checks the first model against hint. The number of frames is
// not known until Scan is called.
func (P *PDBObj) SetupRead(name string, hint traj.Hint) (int, error) {
	P.filename = name
	src, err := traj.OpenSource(name)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	defer src.Close()
	names, box, err := firstModel(src.Reader)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	if len(names) == 0 {
		return traj.Unknown, P.errorf(traj.SetupFailure, "SetupRead", "no ATOM or HETATM records")
	}
	if hint.NAtoms > 0 && hint.NAtoms != len(names) {
		return traj.Unknown, P.errorf(traj.StructuralMismatch, "SetupRead", "%d atoms in first model, %d expected", len(names), hint.NAtoms)
	}
	if len(hint.Names) == len(names) {
		for i, n := range hint.Names {
			if n != names[i] {
				return traj.Unknown, P.errorf(traj.StructuralMismatch, "SetupRead", "atom %d is %s, %s expected", i+1, names[i], n)
			}
		}
	}
	P.natoms = len(names)
	P.names = names
	P.info = coord.Info{Box: box}
	if box {
		P.info.BoxShape = coord.Orthogonal
	}
	P.nframes = traj.Unknown
	return traj.Unknown, nil
}

// Scan counts the models in the file.
func (P *PDBObj) Scan() (int, error) {
	if P.nframes != traj.Unknown {
		return P.nframes, nil
	}
	src, err := traj.OpenSource(P.filename)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.IOFailure, format, P.filename, "Scan", err)
	}
	defer src.Close()
	frames, atoms := 0, 0
	for {
		l, err := src.ReadString('\n')
		if err != nil && l == "" {
			if !errors.Is(err, io.EOF) {
				return traj.Unknown, traj.Wrap(traj.IOFailure, format, P.filename, "Scan", err)
			}
			break
		}
		rec := recordName(l)
		switch {
		case isAtom(rec):
			atoms++
		case rec == "ENDMDL" || rec == "END":
			if atoms > 0 {
				frames++
			}
			atoms = 0
		}
	}
	if atoms > 0 {
		frames++
	}
	P.nframes = frames
	return frames, nil
}

func (P *PDBObj) OpenRead() error {
	if P.natoms == 0 {
		return P.errorf(traj.SequenceViolation, "OpenRead", "trajectory not set up for reading")
	}
	var err error
	P.src, err = traj.OpenSource(P.filename)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, P.filename, "OpenRead", err)
	}
	P.next = 0
	P.readable = true
	return nil
}

// ReadFrame reads model i into F. Models before i are skipped; going back
// is not possible.
func (P *PDBObj) ReadFrame(i int, F *coord.Frame) error {
	if !P.readable {
		return P.errorf(traj.SequenceViolation, "ReadFrame", "trajectory not open for reading")
	}
	if i < P.next || P.next < 0 {
		return P.errorf(traj.SequenceViolation, "ReadFrame", "PDB files are read sequentially, can't go back to frame %d from frame %d", i, P.next)
	}
	if P.nframes != traj.Unknown && i >= P.nframes {
		return traj.LastFrameError(format, P.filename, "ReadFrame", i)
	}
	if F == nil || F.Len() != P.natoms {
		return P.errorf(traj.StructuralMismatch, "ReadFrame", "frame buffer has %d atoms, trajectory has %d", F.Len(), P.natoms)
	}
	for P.next < i {
		if err := P.readModel(nil, P.next); err != nil {
			return err
		}
		P.next++
	}
	if err := P.readModel(F, i); err != nil {
		return err
	}
	P.next = i + 1
	return nil
}

// readModel reads the next model into F, or discards it if F is nil.
func (P *PDBObj) readModel(F *coord.Frame, i int) error {
	k := 0
	for {
		l, err := P.src.ReadString('\n')
		if err != nil && l == "" {
			if errors.Is(err, io.EOF) {
				if k == 0 {
					return traj.LastFrameError(format, P.filename, "ReadFrame", i)
				}
				if k == P.natoms {
					return nil
				}
			}
			P.next = -1
			return P.errorf(traj.IOFailure, "ReadFrame", "frame %d truncated after %d atoms", i, k)
		}
		rec := recordName(l)
		switch {
		case rec == "CRYST1" && F != nil:
			b, err := parseCryst1(l)
			if err != nil {
				P.next = -1
				return P.errorf(traj.IOFailure, "ReadFrame", "frame %d: %s", i, err)
			}
			F.Box = b
		case isAtom(rec):
			if k >= P.natoms {
				P.next = -1
				return P.errorf(traj.IOFailure, "ReadFrame", "frame %d has more than %d atoms", i, P.natoms)
			}
			if F != nil {
				if err := parseAtomCoords(l, F, k); err != nil {
					P.next = -1
					return P.errorf(traj.IOFailure, "ReadFrame", "frame %d, atom %d: %s", i, k+1, err)
				}
			}
			k++
		case (rec == "ENDMDL" || rec == "END") && k > 0:
			if k != P.natoms {
				P.next = -1
				return P.errorf(traj.IOFailure, "ReadFrame", "frame %d has %d atoms, %d expected", i, k, P.natoms)
			}
			return nil
		}
	}
}

func parseAtomCoords(l string, F *coord.Frame, k int) error {
	if len(l) < 54 {
		return fmt.Errorf("ATOM record too short")
	}
	var v [3]float64
	for j := 0; j < 3; j++ {
		s := strings.TrimSpace(l[30+8*j : 38+8*j])
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("can't parse coordinate '%s'", s)
		}
		v[j] = f
	}
	F.X.SetVec(k, v[0], v[1], v[2])
	return nil
}

func parseCryst1(l string) (coord.Box, error) {
	var b coord.Box
	if len(l) < 54 {
		return b, fmt.Errorf("CRYST1 record too short")
	}
	cols := [][2]int{{6, 15}, {15, 24}, {24, 33}, {33, 40}, {40, 47}, {47, 54}}
	for j, c := range cols {
		s := strings.TrimSpace(l[c[0]:c[1]])
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("can't parse CRYST1 field '%s'", s)
		}
		if j < 3 {
			b.Lengths[j] = f
		} else {
			b.Angles[j-3] = f
		}
	}
	return b, nil
}

// ReadVelocity always fails: PDB files have no velocities.
func (P *PDBObj) ReadVelocity(i int, F *coord.Frame) error {
	return P.errorf(traj.IOFailure, "ReadVelocity", "PDB files have no velocities")
}

// SetupWrite checks that info can be written as PDB. Atom names are taken
// from hint, or set to "X". When appending, the first model of the existing
// file must match.
func (P *PDBObj) SetupWrite(name string, hint traj.Hint, info coord.Info, nframes int, appending bool) error {
	P.filename = name
	switch {
	case hint.NAtoms <= 0:
		return P.errorf(traj.SetupFailure, "SetupWrite", "number of atoms not given")
	case hint.NAtoms > 99999:
		return P.errorf(traj.SetupFailure, "SetupWrite", "%d atoms don't fit in PDB serial numbers", hint.NAtoms)
	case info.Velocities:
		return P.errorf(traj.SetupFailure, "SetupWrite", "PDB files can't store velocities")
	case info.Temperature:
		return P.errorf(traj.SetupFailure, "SetupWrite", "PDB files can't store temperatures")
	case info.ReplicaIndices:
		return P.errorf(traj.SetupFailure, "SetupWrite", "PDB files can't store replica indices")
	}
	P.natoms = hint.NAtoms
	P.names = make([]string, P.natoms)
	for i := range P.names {
		P.names[i] = "X"
		if len(hint.Names) == P.natoms && hint.Names[i] != "" {
			P.names[i] = hint.Names[i]
		}
	}
	P.info = info
	P.appending = appending
	if appending {
		if st, err := os.Stat(name); err == nil && st.Size() > 0 {
			R := New()
			R.SetLogger(P.log)
			if _, err := R.SetupRead(name, traj.Hint{NAtoms: P.natoms}); err != nil {
				return traj.Decorate(err, "SetupWrite")
			}
			if R.info.Box != info.Box {
				return P.errorf(traj.StructuralMismatch, "SetupWrite", "can't append to a trajectory with different contents: box: expected %t, found %t", info.Box, R.info.Box)
			}
		}
	}
	P.setupW = true
	return nil
}

func (P *PDBObj) OpenWrite() error {
	if !P.setupW {
		return P.errorf(traj.SequenceViolation, "OpenWrite", "trajectory not set up for writing")
	}
	var err error
	if P.appending {
		P.f, err = os.OpenFile(P.filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	} else {
		P.f, err = os.Create(P.filename)
	}
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, P.filename, "OpenWrite", err)
	}
	P.w = bufio.NewWriter(P.f)
	P.comp, err = traj.NewCompressor(P.w, traj.CompressionFromName(P.filename))
	if err != nil {
		P.f.Close()
		return traj.Wrap(traj.IOFailure, format, P.filename, "OpenWrite", err)
	}
	P.writable = true
	return nil
}

// atomName places names shorter than 4 characters from column 14.
func atomName(n string) string {
	if len(n) >= 4 {
		return n[:4]
	}
	return " " + n
}

// WriteFrame writes F as MODEL seq.
func (P *PDBObj) WriteFrame(seq int, F *coord.Frame) error {
	if !P.writable {
		return P.errorf(traj.SequenceViolation, "WriteFrame", "trajectory not open for writing")
	}
	if err := F.Check(P.natoms, P.info); err != nil {
		return P.errorf(traj.StructuralMismatch, "WriteFrame", "%s", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MODEL     %4d\n", seq%10000)
	if P.info.Box {
		l, a := F.Box.Lengths, F.Box.Angles
		fmt.Fprintf(&b, "CRYST1%9.3f%9.3f%9.3f%7.2f%7.2f%7.2f P 1           1\n", l[0], l[1], l[2], a[0], a[1], a[2])
	}
	for i := 0; i < P.natoms; i++ {
		x, y, z := F.X.At(i, 0), F.X.At(i, 1), F.X.At(i, 2)
		xyz := fmt.Sprintf("%8.3f%8.3f%8.3f", x, y, z)
		if len(xyz) != 24 {
			return P.errorf(traj.IOFailure, "WriteFrame", "coordinates of atom %d don't fit in PDB columns", i+1)
		}
		fmt.Fprintf(&b, "ATOM  %5d %-4s %3s %1s%4d    %s%6.2f%6.2f\n", i+1, atomName(P.names[i]), "UNK", "A", 1, xyz, 1.0, 0.0)
	}
	b.WriteString("ENDMDL\n")
	if _, err := io.WriteString(P.comp, b.String()); err != nil {
		return traj.Wrap(traj.IOFailure, format, P.filename, "WriteFrame", err)
	}
	return nil
}

// Close closes the file. A file open for writing gets an END record.
func (P *PDBObj) Close() error {
	var err error
	if P.readable {
		err = P.src.Close()
		P.readable = false
	}
	if P.writable {
		_, werr := io.WriteString(P.comp, "END\n")
		err = errors.Join(werr, P.comp.Close(), P.w.Flush(), P.f.Close())
		P.writable = false
	}
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, P.filename, "Close", err)
	}
	return nil
}

func (P *PDBObj) String() string {
	frames := "unknown number of"
	if P.nframes != traj.Unknown {
		frames = strconv.Itoa(P.nframes)
	}
	return fmt.Sprintf("'%s' is a PDB trajectory, %d atoms, %s frames, %s", P.filename, P.natoms, frames, P.info)
}
