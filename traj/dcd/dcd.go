/*
 * dcd.go, part of remdio.
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

// Package dcd reads and writes CHARMM/NAMD binary trajectories. Frames have
// a fixed size, so they can be read in any order. The unit cell, when
// present, is stored before the coordinates of each frame.
package dcd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	"go.uber.org/zap"
)

const (
	format   = "dcd"
	maxTitle = 80
	ntitle   = 2
	//CHARMM version written to the header. Non-zero marks a CHARMM file.
	charmmVersion = 24

	cellSize = 6 * 8
)

// Offsets of control values in the first header record, counting the
// leading record marker.
const (
	offNset     = 8
	offIstart   = 12
	offNsavc    = 16
	offFixed    = 40
	offDelta    = 44
	offCell     = 48
	offFourDim  = 52
	offVersion  = 84
	firstRecord = 84
)

// DCDObj is a DCD trajectory, for reading or for writing.
type DCDObj struct {
	natoms   int
	filename string
	info     coord.Info
	log      *zap.Logger
	endian   binary.ByteOrder

	headerSize int64
	frameSize  int64
	fourdim    bool
	nframes    int

	f        *os.File
	buf      []byte
	readable bool

	appending bool
	exists    bool //appending to a file with a valid header
	writable  bool
	setupW    bool
	expected  int
}

// New returns a DCDObj with nothing attached to it.
func New() *DCDObj {
	return &DCDObj{log: zap.NewNop(), endian: binary.LittleEndian}
}

func (D *DCDObj) Format() string { return format }

// SetLogger sets the logger for non-fatal problems.
func (D *DCDObj) SetLogger(l *zap.Logger) { D.log = traj.NopIfNil(l) }

func (D *DCDObj) Info() coord.Info { return D.info }

// Len returns the number of atoms per frame.
func (D *DCDObj) Len() int { return D.natoms }

func (D *DCDObj) errorf(kind traj.Kind, caller, msg string, a ...interface{}) error {
	return traj.NewError(kind, format, D.filename, caller, fmt.Sprintf(msg, a...))
}

// endianness returns the byte order in which the first record marker of a
// DCD header reads 84, or nil if there is none.
func endianness(head []byte) binary.ByteOrder {
	if len(head) < 4 {
		return nil
	}
	if binary.LittleEndian.Uint32(head) == firstRecord {
		return binary.LittleEndian
	}
	if binary.BigEndian.Uint32(head) == firstRecord {
		return binary.BigEndian
	}
	return nil
}

// ID checks for the 84 record marker followed by the CORD magic number.
func (D *DCDObj) ID(name string) bool {
	head, err := traj.Head(name, 8)
	if err != nil || len(head) < 8 {
		return false
	}
	return endianness(head) != nil && string(head[4:8]) == "CORD"
}

// readHeader reads and checks the header of the open file. It returns the
// nset value of the header.
func (D *DCDObj) readHeader() (int, error) {
	head := make([]byte, firstRecord+8)
	if _, err := io.ReadFull(D.f, head); err != nil {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "header too short: %s", err)
	}
	if D.endian = endianness(head); D.endian == nil || string(head[4:8]) != "CORD" {
		head, _ := traj.Head(D.filename, 4)
		if traj.Sniff(head) != traj.Plain {
			return 0, D.errorf(traj.SetupFailure, "readHeader", "compressed DCD files are not supported")
		}
		return 0, D.errorf(traj.SetupFailure, "readHeader", "not a DCD file")
	}
	u32 := func(off int) int32 { return int32(D.endian.Uint32(head[off:])) }
	if u32(offVersion) == 0 {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "X-PLOR DCD files are not supported")
	}
	if u32(offFixed) != 0 {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "DCD files with fixed atoms are not supported")
	}
	if u32(firstRecord+4) != firstRecord {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "wrong end of the first header record")
	}
	nset := int(u32(offNset))
	cell := u32(offCell) != 0
	D.fourdim = u32(offFourDim) == 1
	var rec [4]byte
	if _, err := io.ReadFull(D.f, rec[:]); err != nil {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "no title record: %s", err)
	}
	titleSize := int64(int32(D.endian.Uint32(rec[:])))
	if titleSize < 4 || (titleSize-4)%maxTitle != 0 {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "wrong title record size %d", titleSize)
	}
	if _, err := D.f.Seek(titleSize+4, io.SeekCurrent); err != nil {
		return 0, traj.Wrap(traj.SetupFailure, format, D.filename, "readHeader", err)
	}
	var natoms [12]byte
	if _, err := io.ReadFull(D.f, natoms[:]); err != nil {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "no atom number record: %s", err)
	}
	if D.endian.Uint32(natoms[0:]) != 4 || D.endian.Uint32(natoms[8:]) != 4 {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "wrong atom number record")
	}
	D.natoms = int(int32(D.endian.Uint32(natoms[4:])))
	if D.natoms <= 0 {
		return 0, D.errorf(traj.SetupFailure, "readHeader", "invalid number of atoms %d in header", D.natoms)
	}
	D.headerSize = int64(firstRecord+8) + titleSize + 8 + 12
	D.info = coord.Info{Box: cell}
	D.frameSize = frameSize(D.natoms, cell, D.fourdim)
	return nset, nil
}

func frameSize(natoms int, cell, fourdim bool) int64 {
	s := 3 * (8 + 4*int64(natoms))
	if cell {
		s += 8 + cellSize
	}
	if fourdim {
		s += 8 + 4*int64(natoms)
	}
	return s
}

// SetupRead reads the header of name, checks the number of atoms against
// hint and returns the number of frames, computed from the size of the file.
func (D *DCDObj) SetupRead(name string, hint traj.Hint) (int, error) {
	D.filename = name
	var err error
	D.f, err = os.Open(name)
	if err != nil {
		return 0, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	defer func() {
		D.f.Close()
		D.f = nil
	}()
	nset, err := D.readHeader()
	if err != nil {
		return 0, traj.Decorate(err, "SetupRead")
	}
	if hint.NAtoms > 0 && hint.NAtoms != D.natoms {
		return 0, D.errorf(traj.StructuralMismatch, "SetupRead", "file has %d atoms, %d expected", D.natoms, hint.NAtoms)
	}
	st, err := D.f.Stat()
	if err != nil {
		return 0, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	body := st.Size() - D.headerSize
	D.nframes = int(body / D.frameSize)
	if rem := body % D.frameSize; rem != 0 {
		D.log.Warn("DCD file ends in an incomplete frame, which will be ignored", zap.String("file", name), zap.Int64("extra_bytes", rem))
	}
	if nset != D.nframes {
		D.log.Warn("DCD header frame count doesn't match the file size", zap.String("file", name), zap.Int("header", nset), zap.Int("file_size", D.nframes))
	}
	D.info.BoxShape = coord.NoBox
	if D.info.Box {
		D.info.BoxShape = coord.Orthogonal
		if D.nframes > 0 {
			cell := make([]byte, cellSize)
			if _, err := D.f.ReadAt(cell, D.headerSize+4); err != nil {
				return 0, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
			}
			if sh := D.decodeCell(cell).Shape(); sh != coord.NoBox {
				D.info.BoxShape = sh
			}
		}
	}
	return D.nframes, nil
}

// decodeCell reads the CHARMM unit cell a, gamma, b, beta, alpha, c. Some
// programs store the cosines of the angles instead of the angles.
func (D *DCDObj) decodeCell(b []byte) coord.Box {
	var v [6]float64
	for i := range v {
		v[i] = math.Float64frombits(D.endian.Uint64(b[8*i:]))
	}
	box := coord.Box{Lengths: [3]float64{v[0], v[2], v[5]}, Angles: [3]float64{v[4], v[3], v[1]}}
	cosines := true
	for _, a := range box.Angles {
		if a < -1 || a > 1 {
			cosines = false
		}
	}
	if cosines {
		for i, a := range box.Angles {
			box.Angles[i] = 90 - math.Asin(a)*180/math.Pi
		}
	}
	return box
}

func (D *DCDObj) encodeCell(b []byte, box coord.Box) {
	v := [6]float64{box.Lengths[0], box.Angles[2], box.Lengths[1], box.Angles[1], box.Angles[0], box.Lengths[2]}
	for i := range v {
		D.endian.PutUint64(b[8*i:], math.Float64bits(v[i]))
	}
}

func (D *DCDObj) OpenRead() error {
	if D.frameSize == 0 {
		return D.errorf(traj.SequenceViolation, "OpenRead", "trajectory not set up for reading")
	}
	var err error
	D.f, err = os.Open(D.filename)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "OpenRead", err)
	}
	D.buf = make([]byte, D.frameSize)
	D.readable = true
	return nil
}

// ReadFrame reads frame i into F.
func (D *DCDObj) ReadFrame(i int, F *coord.Frame) error {
	if !D.readable {
		return D.errorf(traj.SequenceViolation, "ReadFrame", "trajectory not open for reading")
	}
	if i < 0 || i >= D.nframes {
		return traj.LastFrameError(format, D.filename, "ReadFrame", i)
	}
	if F.Len() != D.natoms {
		return D.errorf(traj.StructuralMismatch, "ReadFrame", "frame buffer has %d atoms, trajectory has %d", F.Len(), D.natoms)
	}
	if _, err := D.f.ReadAt(D.buf, D.headerSize+int64(i)*D.frameSize); err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "ReadFrame", err)
	}
	b := D.buf
	if D.info.Box {
		if err := D.checkRecord(b, cellSize); err != nil {
			return traj.Decorate(err, "ReadFrame")
		}
		F.Box = D.decodeCell(b[4:])
		b = b[8+cellSize:]
	}
	n := 4 * D.natoms
	for j := 0; j < 3; j++ {
		if err := D.checkRecord(b, n); err != nil {
			return traj.Decorate(err, "ReadFrame")
		}
		for k := 0; k < D.natoms; k++ {
			F.X.Set(k, j, float64(math.Float32frombits(D.endian.Uint32(b[4+4*k:]))))
		}
		b = b[8+n:]
	}
	return nil
}

// checkRecord checks the Fortran record markers around a record of size
// bytes at the start of b.
func (D *DCDObj) checkRecord(b []byte, size int) error {
	if int(D.endian.Uint32(b)) != size || int(D.endian.Uint32(b[4+size:])) != size {
		return D.errorf(traj.IOFailure, "checkRecord", "corrupted frame: wrong record markers")
	}
	return nil
}

// ReadVelocity always fails: DCD coordinate files have no velocities.
func (D *DCDObj) ReadVelocity(i int, F *coord.Frame) error {
	return D.errorf(traj.IOFailure, "ReadVelocity", "DCD files have no velocities")
}

// ProcessWriteArgs accepts "endian", either "little" (default) or "big".
func (D *DCDObj) ProcessWriteArgs(args map[string]string) error {
	for k, v := range args {
		switch k {
		case "endian":
			switch strings.ToLower(v) {
			case "little":
				D.endian = binary.LittleEndian
			case "big":
				D.endian = binary.BigEndian
			default:
				return D.errorf(traj.SetupFailure, "ProcessWriteArgs", "unknown byte order '%s'", v)
			}
		default:
			return D.errorf(traj.SetupFailure, "ProcessWriteArgs", "unknown DCD option '%s'", k)
		}
	}
	return nil
}

// SetupWrite checks that info can be written as DCD. When appending to an
// existing file, its header is checked against hint and info. Nothing is
// written until OpenWrite.
func (D *DCDObj) SetupWrite(name string, hint traj.Hint, info coord.Info, nframes int, appending bool) error {
	D.filename = name
	switch {
	case hint.NAtoms <= 0:
		return D.errorf(traj.SetupFailure, "SetupWrite", "number of atoms not given")
	case info.Velocities:
		return D.errorf(traj.SetupFailure, "SetupWrite", "DCD files can't store velocities")
	case info.Temperature:
		return D.errorf(traj.SetupFailure, "SetupWrite", "DCD files can't store temperatures")
	case info.ReplicaIndices:
		return D.errorf(traj.SetupFailure, "SetupWrite", "DCD files can't store replica indices")
	}
	D.natoms = hint.NAtoms
	D.info = info
	D.fourdim = false
	D.expected = nframes
	D.appending = appending
	D.frameSize = frameSize(D.natoms, info.Box, false)
	D.exists = false
	if appending {
		if st, err := os.Stat(name); err == nil && st.Size() > 0 {
			if err := D.checkAppend(); err != nil {
				return err
			}
		}
	}
	D.setupW = true
	return nil
}

// checkAppend reads the header of the file to append to, which must have
// the same atoms and unit cell layout.
func (D *DCDObj) checkAppend() error {
	R := New()
	R.SetLogger(D.log)
	if _, err := R.SetupRead(D.filename, traj.Hint{NAtoms: D.natoms}); err != nil {
		return traj.Decorate(err, "SetupWrite")
	}
	if R.info.Box != D.info.Box || R.fourdim {
		return D.errorf(traj.StructuralMismatch, "SetupWrite", "can't append to a DCD file with a different unit cell layout")
	}
	D.endian = R.endian
	D.headerSize = R.headerSize
	D.nframes = R.nframes
	D.exists = true
	return nil
}

// OpenWrite creates the file and writes the header. When appending to an
// existing file, the header is checked and new frames go after the last
// complete one.
func (D *DCDObj) OpenWrite() error {
	if !D.setupW {
		return D.errorf(traj.SequenceViolation, "OpenWrite", "trajectory not set up for writing")
	}
	if D.exists {
		return D.openAppend()
	}
	var err error
	D.f, err = os.Create(D.filename)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "OpenWrite", err)
	}
	if err := D.writeHeader(); err != nil {
		D.f.Close()
		return traj.Decorate(err, "OpenWrite")
	}
	D.nframes = 0
	D.buf = make([]byte, D.frameSize)
	D.writable = true
	return nil
}

// openAppend opens the file checked by SetupWrite and places the write
// position after its last complete frame.
func (D *DCDObj) openAppend() error {
	var err error
	D.f, err = os.OpenFile(D.filename, os.O_RDWR, 0644)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "OpenWrite", err)
	}
	end := D.headerSize + int64(D.nframes)*D.frameSize
	if err := D.f.Truncate(end); err != nil {
		D.f.Close()
		return traj.Wrap(traj.IOFailure, format, D.filename, "OpenWrite", err)
	}
	if _, err := D.f.Seek(end, io.SeekStart); err != nil {
		D.f.Close()
		return traj.Wrap(traj.IOFailure, format, D.filename, "OpenWrite", err)
	}
	D.buf = make([]byte, D.frameSize)
	D.writable = true
	return nil
}

func (D *DCDObj) writeHeader() error {
	titleSize := 4 + ntitle*maxTitle
	h := make([]byte, firstRecord+8+titleSize+8+12)
	p32 := func(off int, v int32) { D.endian.PutUint32(h[off:], uint32(v)) }
	p32(0, firstRecord)
	copy(h[4:], "CORD")
	p32(offNset, 0)
	p32(offIstart, 0)
	p32(offNsavc, 1)
	D.endian.PutUint32(h[offDelta:], math.Float32bits(1))
	if D.info.Box {
		p32(offCell, 1)
	}
	p32(offVersion, charmmVersion)
	p32(firstRecord+4, firstRecord)
	off := firstRecord + 8
	p32(off, int32(titleSize))
	p32(off+4, ntitle)
	titles := []string{"remdio DCD trajectory", "written by remdio"}
	for i, t := range titles {
		line := []byte(fmt.Sprintf("%-*s", maxTitle, t))
		copy(h[off+8+i*maxTitle:], line)
	}
	off += 4 + titleSize
	p32(off, int32(titleSize))
	off += 4
	p32(off, 4)
	p32(off+4, int32(D.natoms))
	p32(off+8, 4)
	D.headerSize = int64(len(h))
	if _, err := D.f.Write(h); err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "writeHeader", err)
	}
	return nil
}

// WriteFrame writes F after the last frame and updates the frame count in
// the header.
func (D *DCDObj) WriteFrame(seq int, F *coord.Frame) error {
	if !D.writable {
		return D.errorf(traj.SequenceViolation, "WriteFrame", "trajectory not open for writing")
	}
	if err := F.Check(D.natoms, D.info); err != nil {
		return D.errorf(traj.StructuralMismatch, "WriteFrame", "%s", err)
	}
	b := D.buf
	if D.info.Box {
		D.endian.PutUint32(b, cellSize)
		D.encodeCell(b[4:], F.Box)
		D.endian.PutUint32(b[4+cellSize:], cellSize)
		b = b[8+cellSize:]
	}
	n := 4 * D.natoms
	for j := 0; j < 3; j++ {
		D.endian.PutUint32(b, uint32(n))
		for k := 0; k < D.natoms; k++ {
			D.endian.PutUint32(b[4+4*k:], math.Float32bits(float32(F.X.At(k, j))))
		}
		D.endian.PutUint32(b[4+n:], uint32(n))
		b = b[8+n:]
	}
	if _, err := D.f.Write(D.buf); err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "WriteFrame", err)
	}
	D.nframes++
	return traj.Decorate(D.updateFrames(), "WriteFrame")
}

// DCD keeps the number of frames at the beginning of the file.
func (D *DCDObj) updateFrames() error {
	var b [4]byte
	D.endian.PutUint32(b[:], uint32(D.nframes))
	if _, err := D.f.WriteAt(b[:], offNset); err != nil {
		return traj.Wrap(traj.IOFailure, format, D.filename, "updateFrames", err)
	}
	return nil
}

func (D *DCDObj) Close() error {
	if !D.readable && !D.writable {
		return nil
	}
	if D.writable && D.expected > 0 && D.nframes != D.expected {
		D.log.Info("DCD trajectory closed with a different number of frames than announced", zap.String("file", D.filename), zap.Int("expected", D.expected), zap.Int("written", D.nframes))
	}
	D.readable, D.writable = false, false
	if err := D.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return traj.Wrap(traj.IOFailure, format, D.filename, "Close", err)
	}
	return nil
}

func (D *DCDObj) String() string {
	order := "little"
	if D.endian == binary.BigEndian {
		order = "big"
	}
	return fmt.Sprintf("'%s' is a CHARMM DCD trajectory (%s endian), %d atoms, %d frames, %s", D.filename, order, D.natoms, D.nframes, D.info)
}
