/*
 * xplor.go, part of remdio.
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

// Package xplor writes the atom density of a trajectory as an Xplor map.
// It can't read trajectories: the frames are binned on a grid as they are
// written, and the map is written when the trajectory is closed.
package xplor

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	format         = "xplor"
	defaultSpacing = 0.5
	defaultPad     = 2.0
)

// Mode says where grid values are placed.
type Mode int

const (
	//BinCorner writes each bin as the grid point at its lowest corner.
	BinCorner Mode = iota
	//BinCenter writes grid points at bin corners, each one the average of
	//the bins around it, so the values describe bin centers.
	BinCenter
)

func (m Mode) String() string {
	if m == BinCenter {
		return "bin center"
	}
	return "bin corner"
}

// XplorObj is an Xplor density map being built from the frames written to
// it.
type XplorObj struct {
	natoms   int
	filename string
	title    string
	remark   string
	log      *zap.Logger

	spacing float64
	pad     float64
	mode    Mode

	origin  [3]float64
	n       [3]int
	grid    []float64
	nframes int
	dropped int

	f        *os.File
	setupW   bool
	writable bool
}

// New returns an XplorObj with the default grid spacing, padding and mode.
func New() *XplorObj {
	return &XplorObj{log: zap.NewNop(), spacing: defaultSpacing, pad: defaultPad, title: "remdio density map"}
}

func (X *XplorObj) Format() string { return format }

// SetLogger sets the logger for non-fatal problems.
func (X *XplorObj) SetLogger(l *zap.Logger) { X.log = traj.NopIfNil(l) }

// Len returns the number of atoms per frame.
func (X *XplorObj) Len() int { return X.natoms }

// Info is always empty: only positions are used.
func (X *XplorObj) Info() coord.Info { return coord.Info{} }

// Dims returns the number of bins along each axis, all zero before the
// first frame is written.
func (X *XplorObj) Dims() [3]int { return X.n }

func (X *XplorObj) errorf(kind traj.Kind, caller, msg string, a ...interface{}) error {
	return traj.NewError(kind, format, X.filename, caller, fmt.Sprintf(msg, a...))
}

// ID checks for the empty first line and the !NTITLE line that start an
// Xplor map.
func (X *XplorObj) ID(name string) bool {
	lines, err := traj.HeadLines(name, 2)
	if err != nil || len(lines) < 2 {
		return false
	}
	return strings.TrimSpace(lines[0]) == "" && strings.Contains(lines[1], "!NTITLE")
}

// SetupRead always fails.
func (X *XplorObj) SetupRead(name string, hint traj.Hint) (int, error) {
	X.filename = name
	return 0, X.errorf(traj.SetupFailure, "SetupRead", "Xplor maps can't be read as trajectories")
}

func (X *XplorObj) OpenRead() error {
	return X.errorf(traj.SequenceViolation, "OpenRead", "Xplor maps can't be read as trajectories")
}

func (X *XplorObj) ReadFrame(i int, F *coord.Frame) error {
	return X.errorf(traj.SequenceViolation, "ReadFrame", "Xplor maps can't be read as trajectories")
}

func (X *XplorObj) ReadVelocity(i int, F *coord.Frame) error {
	return X.errorf(traj.SequenceViolation, "ReadVelocity", "Xplor maps can't be read as trajectories")
}

// ProcessWriteArgs accepts "spacing" and "pad" in Angstrom, "mode" (corner
// or center), the flags "bincorner" and "bincenter", "title" and "remark".
func (X *XplorObj) ProcessWriteArgs(args map[string]string) error {
	for k, v := range args {
		switch k {
		case "spacing", "pad":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || k == "spacing" && f == 0 {
				return X.errorf(traj.SetupFailure, "ProcessWriteArgs", "invalid %s '%s'", k, v)
			}
			if k == "spacing" {
				X.spacing = f
			} else {
				X.pad = f
			}
		case "mode":
			switch strings.ToLower(v) {
			case "corner":
				X.mode = BinCorner
			case "center":
				X.mode = BinCenter
			default:
				return X.errorf(traj.SetupFailure, "ProcessWriteArgs", "unknown grid mode '%s'", v)
			}
		case "bincorner":
			X.mode = BinCorner
		case "bincenter":
			X.mode = BinCenter
		case "title":
			X.title = v
		case "remark":
			X.remark = v
		default:
			return X.errorf(traj.SetupFailure, "ProcessWriteArgs", "unknown Xplor option '%s'", k)
		}
	}
	return nil
}

// SetupWrite fails if info asks for anything but positions.
func (X *XplorObj) SetupWrite(name string, hint traj.Hint, info coord.Info, nframes int, appending bool) error {
	X.filename = name
	switch {
	case hint.NAtoms <= 0:
		return X.errorf(traj.SetupFailure, "SetupWrite", "number of atoms not given")
	case info.Velocities || info.Box || info.Temperature || info.ReplicaIndices:
		return X.errorf(traj.SetupFailure, "SetupWrite", "Xplor maps only store positions, not %s", info)
	case appending:
		return X.errorf(traj.SetupFailure, "SetupWrite", "Xplor maps can't be appended to")
	}
	X.natoms = hint.NAtoms
	X.setupW = true
	return nil
}

// OpenWrite creates the file. Nothing is written to it until Close.
func (X *XplorObj) OpenWrite() error {
	if !X.setupW {
		return X.errorf(traj.SequenceViolation, "OpenWrite", "map not set up for writing")
	}
	var err error
	X.f, err = os.Create(X.filename)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, X.filename, "OpenWrite", err)
	}
	X.grid = nil
	X.n = [3]int{}
	X.nframes, X.dropped = 0, 0
	X.writable = true
	return nil
}

// setupGrid sets the grid around the bounding box of F plus the padding.
// The origin is a multiple of the spacing.
func (X *XplorObj) setupGrid(F *coord.Frame) {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < X.natoms; i++ {
		for j := 0; j < 3; j++ {
			v := F.X.At(i, j)
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}
	size := 1
	for j := 0; j < 3; j++ {
		X.origin[j] = math.Floor((lo[j]-X.pad)/X.spacing) * X.spacing
		X.n[j] = int(math.Floor((hi[j]+X.pad-X.origin[j])/X.spacing)) + 1
		size *= X.n[j]
	}
	X.grid = make([]float64, size)
}

func (X *XplorObj) index(i, j, k int) int {
	return (k*X.n[1]+j)*X.n[0] + i
}

// WriteFrame adds the atoms in F to the grid. The grid is set up with the
// first frame; atoms that fall outside it in later frames are not counted.
func (X *XplorObj) WriteFrame(seq int, F *coord.Frame) error {
	if !X.writable {
		return X.errorf(traj.SequenceViolation, "WriteFrame", "map not open for writing")
	}
	if err := F.Check(X.natoms, coord.Info{}); err != nil {
		return X.errorf(traj.StructuralMismatch, "WriteFrame", "%s", err)
	}
	if X.grid == nil {
		X.setupGrid(F)
	}
	var b [3]int
	for i := 0; i < X.natoms; i++ {
		in := true
		for j := 0; j < 3; j++ {
			b[j] = int(math.Floor((F.X.At(i, j) - X.origin[j]) / X.spacing))
			if b[j] < 0 || b[j] >= X.n[j] {
				in = false
			}
		}
		if !in {
			X.dropped++
			continue
		}
		X.grid[X.index(b[0], b[1], b[2])]++
	}
	X.nframes++
	return nil
}

// values returns the grid points to write, the index of the first one along
// each axis, and their number along each axis.
func (X *XplorObj) values() ([]float64, [3]int, [3]int) {
	var first [3]int
	for j := range first {
		first[j] = int(math.Round(X.origin[j] / X.spacing))
	}
	norm := make([]float64, len(X.grid))
	copy(norm, X.grid)
	if X.nframes > 0 {
		floats.Scale(1/float64(X.nframes), norm)
	}
	if X.mode == BinCorner {
		return norm, first, X.n
	}
	np := [3]int{X.n[0] + 1, X.n[1] + 1, X.n[2] + 1}
	out := make([]float64, np[0]*np[1]*np[2])
	for k := 0; k < np[2]; k++ {
		for j := 0; j < np[1]; j++ {
			for i := 0; i < np[0]; i++ {
				sum, cnt := 0.0, 0
				for dk := k - 1; dk <= k; dk++ {
					for dj := j - 1; dj <= j; dj++ {
						for di := i - 1; di <= i; di++ {
							if di < 0 || dj < 0 || dk < 0 || di >= X.n[0] || dj >= X.n[1] || dk >= X.n[2] {
								continue
							}
							sum += norm[X.index(di, dj, dk)]
							cnt++
						}
					}
				}
				out[(k*np[1]+j)*np[0]+i] = sum / float64(cnt)
			}
		}
	}
	return out, first, np
}

func (X *XplorObj) writeMap() error {
	w := bufio.NewWriter(X.f)
	vals, first, np := X.values()
	remarks := []string{fmt.Sprintf("REMARKS FILENAME=\"%s\"", X.filename), "REMARKS " + X.title}
	if X.remark != "" {
		remarks = append(remarks, "REMARKS "+X.remark)
	}
	remarks = append(remarks, fmt.Sprintf("REMARKS %d frames, %s mode", X.nframes, X.mode))
	fmt.Fprintf(w, "\n%8d !NTITLE\n", len(remarks))
	for _, r := range remarks {
		fmt.Fprintln(w, r)
	}
	fmt.Fprintf(w, "%8d%8d%8d%8d%8d%8d%8d%8d%8d\n",
		X.n[0], first[0], first[0]+np[0]-1,
		X.n[1], first[1], first[1]+np[1]-1,
		X.n[2], first[2], first[2]+np[2]-1)
	fmt.Fprintf(w, "%12.5E%12.5E%12.5E%12.5E%12.5E%12.5E\n",
		float64(X.n[0])*X.spacing, float64(X.n[1])*X.spacing, float64(X.n[2])*X.spacing, 90.0, 90.0, 90.0)
	fmt.Fprintln(w, "ZYX")
	per := np[0] * np[1]
	for k := 0; k < np[2]; k++ {
		fmt.Fprintf(w, "%8d\n", k)
		section := vals[k*per : (k+1)*per]
		for c, v := range section {
			fmt.Fprintf(w, "%12.5E", v)
			if (c+1)%6 == 0 {
				w.WriteByte('\n')
			}
		}
		if len(section)%6 != 0 {
			w.WriteByte('\n')
		}
	}
	fmt.Fprintf(w, "%8d\n", -9999)
	mean, std := meanStdDev(vals)
	fmt.Fprintf(w, "%12.4f %12.4f\n", mean, std)
	return w.Flush()
}

func meanStdDev(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	n := float64(len(v))
	mean := floats.Sum(v) / n
	d := make([]float64, len(v))
	copy(d, v)
	floats.AddConst(-mean, d)
	return mean, math.Sqrt(floats.Dot(d, d) / n)
}

// Close writes the map and closes the file. A map with no frames is
// written as an empty file.
func (X *XplorObj) Close() error {
	if !X.writable {
		return nil
	}
	X.writable = false
	var err error
	if X.nframes > 0 {
		err = X.writeMap()
	} else {
		X.log.Warn("no frames written to Xplor map", zap.String("file", X.filename))
	}
	if X.dropped > 0 {
		X.log.Warn("atoms outside the Xplor grid were not counted", zap.String("file", X.filename), zap.Int("atoms", X.dropped))
	}
	if err = errors.Join(err, X.f.Close()); err != nil {
		return traj.Wrap(traj.IOFailure, format, X.filename, "Close", err)
	}
	return nil
}

func (X *XplorObj) String() string {
	return fmt.Sprintf("'%s' is an Xplor density map (%s, spacing %.3f), %d atoms, %d frames, grid %dx%dx%d", X.filename, X.mode, X.spacing, X.natoms, X.nframes, X.n[0], X.n[1], X.n[2])
}
