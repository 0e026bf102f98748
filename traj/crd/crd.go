/*
 * crd.go, part of remdio.
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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	"go.uber.org/zap"
)

const (
	format    = "crd"
	width     = 8
	perLine   = 10
	remdTag   = "REMD"
	idxWidth  = 4
)

// CrdObj is an Amber ASCII trajectory, for reading or for writing.
type CrdObj struct {
	natoms   int
	filename string
	title    string
	info     coord.Info
	log      *zap.Logger

	//frame layout, in bytes, line terminators included.
	titleLen int
	remdLen  int
	coordLen int
	boxLen   int
	nframes  int

	src      *traj.Source
	seekable bool
	next     int //index of the frame at the current read position
	readable bool

	f         *os.File
	w         *bufio.Writer
	comp      io.WriteCloser
	appending bool
	exists    bool //appending to a file checked by SetupWrite
	expected  int
	buf       bytes.Buffer
	writable  bool
	setupW    bool
}

// New returns a CrdObj with nothing attached to it.
func New() *CrdObj {
	return &CrdObj{log: zap.NewNop(), title: "remdio Amber trajectory", nframes: traj.Unknown}
}

func (C *CrdObj) Format() string { return format }

// SetLogger sets the logger for non-fatal problems.
func (C *CrdObj) SetLogger(l *zap.Logger) { C.log = traj.NopIfNil(l) }

// Len returns the number of atoms per frame.
func (C *CrdObj) Len() int { return C.natoms }

func (C *CrdObj) Info() coord.Info { return C.info }

func (C *CrdObj) errorf(kind traj.Kind, caller, msg string, a ...interface{}) error {
	return traj.NewError(kind, format, C.filename, caller, fmt.Sprintf(msg, a...))
}

// ID checks that the second line of name is either a REMD line or a line of
// coordinates in 8.3 fixed columns.
func (C *CrdObj) ID(name string) bool {
	lines, err := traj.HeadLines(name, 3)
	if err != nil || len(lines) < 2 {
		return false
	}
	l := lines[1]
	if strings.HasPrefix(l, remdTag) {
		if len(lines) < 3 {
			return false
		}
		l = lines[2]
	}
	if len(l) == 0 || len(l)%width != 0 || len(l) > perLine*width {
		return false
	}
	for i := 0; i < len(l); i += width {
		field := l[i : i+width]
		if field[width-4] != '.' {
			return false
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return false
		}
	}
	return true
}

// coordLines returns the number of values in each of the coordinate lines of
// a frame with natoms atoms.
func coordLines(natoms int) []int {
	total := 3 * natoms
	n := make([]int, 0, total/perLine+1)
	for total > 0 {
		k := perLine
		if total < perLine {
			k = total
		}
		n = append(n, k)
		total -= k
	}
	return n
}

// readLine returns the next line without its terminator, and the number of
// bytes it took in the file.
func readLine(r *bufio.Reader) (string, int, error) {
	l, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && l != "") {
		return "", 0, err
	}
	return strings.TrimRight(l, "\r\n"), len(l), nil
}

// SetupRead learns the frame layout from the first frame, and, for
// uncompressed files, the number of frames from the file size.
func (C *CrdObj) SetupRead(name string, hint traj.Hint) (int, error) {
	C.filename = name
	if hint.NAtoms <= 0 {
		return traj.Unknown, C.errorf(traj.SetupFailure, "SetupRead", "Amber trajectories require the number of atoms")
	}
	C.natoms = hint.NAtoms
	src, err := traj.OpenSource(name)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	defer src.Close()
	title, n, err := readLine(src.Reader)
	if err != nil {
		return traj.Unknown, C.errorf(traj.SetupFailure, "SetupRead", "can't read title: %s", err)
	}
	C.title = title
	C.titleLen = n
	C.info = coord.Info{}
	C.remdLen, C.coordLen, C.boxLen = 0, 0, 0
	line, n, err := readLine(src.Reader)
	if errors.Is(err, io.EOF) {
		C.nframes = 0
		return 0, nil
	} else if err != nil {
		return traj.Unknown, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	if strings.HasPrefix(line, remdTag) {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return traj.Unknown, C.errorf(traj.SetupFailure, "SetupRead", "malformed REMD line: '%s'", line)
		}
		C.info.Temperature = true
		if nd := len(fields) - 5; nd > 0 {
			C.info.ReplicaIndices = true
			C.info.NDims = nd
		}
		C.remdLen = n
		if line, n, err = readLine(src.Reader); err != nil {
			return traj.Unknown, C.errorf(traj.StructuralMismatch, "SetupRead", "first frame ends after its REMD line")
		}
	}
	expected := coordLines(C.natoms)
	for k, nvals := range expected {
		if k > 0 {
			if line, n, err = readLine(src.Reader); err != nil {
				return traj.Unknown, C.errorf(traj.StructuralMismatch, "SetupRead", "first frame has %d coordinate lines, %d expected for %d atoms", k, len(expected), C.natoms)
			}
		}
		if len(line) != nvals*width {
			return traj.Unknown, C.errorf(traj.StructuralMismatch, "SetupRead", "coordinate line %d has %d columns, %d expected for %d atoms", k+1, len(line), nvals*width, C.natoms)
		}
		C.coordLen += n
	}
	//Is there a box line? Without REMD lines, a box line of the same width
	//as the first coordinate line of the next frame is taken as coordinates.
	line, n, err = readLine(src.Reader)
	if err == nil && !strings.HasPrefix(line, remdTag) && !C.boxAmbiguous(len(line)/width, C.remdLen > 0) {
		switch len(line) {
		case 3 * width:
			C.info.Box = true
			C.info.BoxShape = coord.Orthogonal
			C.boxLen = n
		case 6 * width:
			C.info.Box = true
			C.info.BoxShape = coord.Triclinic
			C.boxLen = n
		}
	}
	C.seekable = src.Compression == traj.Plain
	if !C.seekable {
		C.log.Debug("compressed Amber trajectory will be read sequentially", zap.String("file", name))
		C.nframes = traj.Unknown
		return traj.Unknown, nil
	}
	st, err := src.File.Stat()
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	body := st.Size() - int64(C.titleLen)
	fsize := int64(C.frameSize())
	if body%fsize != 0 {
		return traj.Unknown, C.errorf(traj.StructuralMismatch, "SetupRead", "%d bytes of frames is not a whole number of %d-byte frames of %d atoms", body, fsize, C.natoms)
	}
	C.nframes = int(body / fsize)
	return C.nframes, nil
}

// boxAmbiguous reports whether a box line of nvals values can't be told
// apart from the first coordinate line of a frame. That only happens for
// one or two atoms, in files without REMD lines.
func (C *CrdObj) boxAmbiguous(nvals int, remd bool) bool {
	return !remd && coordLines(C.natoms)[0] == nvals
}

func (C *CrdObj) frameSize() int {
	return C.remdLen + C.coordLen + C.boxLen
}

// OpenRead opens the file set up by SetupRead and places the read position
// at the first frame.
func (C *CrdObj) OpenRead() error {
	if C.filename == "" || C.natoms == 0 {
		return C.errorf(traj.SequenceViolation, "OpenRead", "trajectory not set up for reading")
	}
	var err error
	C.src, err = traj.OpenSource(C.filename)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, C.filename, "OpenRead", err)
	}
	if _, _, err := readLine(C.src.Reader); err != nil {
		C.src.Close()
		return traj.Wrap(traj.IOFailure, format, C.filename, "OpenRead", err)
	}
	C.next = 0
	C.readable = true
	return nil
}

// Scan counts the frames of a compressed trajectory by reading it through.
func (C *CrdObj) Scan() (int, error) {
	if C.nframes != traj.Unknown {
		return C.nframes, nil
	}
	src, err := traj.OpenSource(C.filename)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.IOFailure, format, C.filename, "Scan", err)
	}
	defer src.Close()
	var total int64
	buf := make([]byte, 64*1024)
	for {
		n, err := src.Read(buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return traj.Unknown, traj.Wrap(traj.IOFailure, format, C.filename, "Scan", err)
		}
	}
	body := total - int64(C.titleLen)
	fsize := int64(C.frameSize())
	if body%fsize != 0 {
		C.log.Warn("trajectory does not end in a whole frame", zap.String("file", C.filename), zap.Int64("extra_bytes", body%fsize))
	}
	C.nframes = int(body / fsize)
	return C.nframes, nil
}

// ReadFrame reads frame i into F. Uncompressed files support any order.
func (C *CrdObj) ReadFrame(i int, F *coord.Frame) error {
	if !C.readable {
		return C.errorf(traj.SequenceViolation, "ReadFrame", "trajectory not open for reading")
	}
	if i < 0 || (C.nframes != traj.Unknown && i >= C.nframes) {
		return traj.LastFrameError(format, C.filename, "ReadFrame", i)
	}
	if err := C.seekFrame(i); err != nil {
		return err
	}
	if err := C.readFrame(F, i); err != nil {
		//the read position is no longer known.
		C.next = -1
		return err
	}
	C.next = i + 1
	return nil
}

func (C *CrdObj) seekFrame(i int) error {
	if i == C.next {
		return nil
	}
	if C.seekable {
		off := int64(C.titleLen) + int64(i)*int64(C.frameSize())
		if _, err := C.src.File.Seek(off, io.SeekStart); err != nil {
			return traj.Wrap(traj.IOFailure, format, C.filename, "ReadFrame", err)
		}
		C.src.Reset(C.src.File)
		C.next = i
		return nil
	}
	if i < C.next || C.next < 0 {
		return C.errorf(traj.SequenceViolation, "ReadFrame", "compressed trajectory can't go back to frame %d from frame %d", i, C.next)
	}
	for C.next < i {
		if _, err := C.src.Discard(C.frameSize()); err != nil {
			if errors.Is(err, io.EOF) {
				return traj.LastFrameError(format, C.filename, "ReadFrame", i)
			}
			return traj.Wrap(traj.IOFailure, format, C.filename, "ReadFrame", err)
		}
		C.next++
	}
	return nil
}

func (C *CrdObj) readFrame(F *coord.Frame, i int) error {
	if F == nil || F.Len() != C.natoms {
		return C.errorf(traj.StructuralMismatch, "ReadFrame", "frame buffer has %d atoms, trajectory has %d", F.Len(), C.natoms)
	}
	first := true
	next := func() (string, error) {
		l, _, err := readLine(C.src.Reader)
		if err != nil {
			if errors.Is(err, io.EOF) && first {
				return "", traj.LastFrameError(format, C.filename, "ReadFrame", i)
			}
			return "", C.errorf(traj.IOFailure, "ReadFrame", "truncated frame %d: %s", i, err)
		}
		first = false
		return l, nil
	}
	if C.remdLen > 0 {
		l, err := next()
		if err != nil {
			return err
		}
		if err := C.parseRemd(l, F); err != nil {
			return err
		}
	}
	data := F.X.Raw()
	k := 0
	for _, nvals := range coordLines(C.natoms) {
		l, err := next()
		if err != nil {
			return err
		}
		if len(l) != nvals*width {
			return C.errorf(traj.IOFailure, "ReadFrame", "frame %d: coordinate line has %d columns, %d expected", i, len(l), nvals*width)
		}
		if err := parseFixed(l, data[k:k+nvals]); err != nil {
			return C.errorf(traj.IOFailure, "ReadFrame", "frame %d: %s", i, err)
		}
		k += nvals
	}
	if C.boxLen > 0 {
		l, err := next()
		if err != nil {
			return err
		}
		var vals [6]float64
		nb := len(l) / width
		if nb != 3 && nb != 6 {
			return C.errorf(traj.IOFailure, "ReadFrame", "frame %d: malformed box line '%s'", i, l)
		}
		if err := parseFixed(l, vals[:nb]); err != nil {
			return C.errorf(traj.IOFailure, "ReadFrame", "frame %d: box: %s", i, err)
		}
		F.Box = coord.OrthoBox(vals[0], vals[1], vals[2])
		if nb == 6 {
			copy(F.Box.Angles[:], vals[3:6])
		}
	}
	return nil
}

func (C *CrdObj) parseRemd(l string, F *coord.Frame) error {
	fields := strings.Fields(l)
	if len(fields) != 5+C.info.NDims || fields[0] != remdTag {
		return C.errorf(traj.IOFailure, "ReadFrame", "malformed REMD line: '%s'", l)
	}
	t, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return C.errorf(traj.IOFailure, "ReadFrame", "can't read temperature from '%s'", l)
	}
	F.Temp = t
	if C.info.NDims == 0 {
		return nil
	}
	if len(F.Idx) != C.info.NDims {
		F.Idx = make([]int, C.info.NDims)
	}
	for j, s := range fields[5:] {
		if F.Idx[j], err = strconv.Atoi(s); err != nil {
			return C.errorf(traj.IOFailure, "ReadFrame", "can't read replica index from '%s'", l)
		}
	}
	return nil
}

// parseFixed parses len(dst) values of width columns from l.
func parseFixed(l string, dst []float64) error {
	for j := range dst {
		s := strings.TrimSpace(l[j*width : (j+1)*width])
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("can't parse '%s'", s)
		}
		dst[j] = v
	}
	return nil
}

// ReadVelocity always fails: Amber ASCII trajectories have no velocities.
func (C *CrdObj) ReadVelocity(i int, F *coord.Frame) error {
	return C.errorf(traj.IOFailure, "ReadVelocity", "Amber ASCII trajectories have no velocities")
}

// ProcessWriteArgs accepts "title".
func (C *CrdObj) ProcessWriteArgs(args map[string]string) error {
	if t, ok := args["title"]; ok {
		C.title = t
	}
	return nil
}

// SetupWrite checks that info can be written in this format. Nothing
// is written to disk.
func (C *CrdObj) SetupWrite(name string, hint traj.Hint, info coord.Info, nframes int, appending bool) error {
	C.filename = name
	switch {
	case hint.NAtoms <= 0:
		return C.errorf(traj.SetupFailure, "SetupWrite", "number of atoms not given")
	case info.Velocities:
		return C.errorf(traj.SetupFailure, "SetupWrite", "Amber ASCII trajectories can't store velocities")
	case info.ReplicaIndices && !info.Temperature:
		return C.errorf(traj.SetupFailure, "SetupWrite", "replica indices are only written in REMD lines, together with the temperature")
	}
	C.natoms = hint.NAtoms
	C.info = info
	if info.Box && info.BoxShape == coord.NoBox {
		C.info.BoxShape = coord.Orthogonal
	}
	if C.info.Box {
		nvals := 3
		if C.info.BoxShape == coord.Triclinic {
			nvals = 6
		}
		if C.boxAmbiguous(nvals, C.info.Temperature) {
			return C.errorf(traj.SetupFailure, "SetupWrite", "a %s box of %d atoms can't be told apart from coordinates without REMD lines", C.info.BoxShape, C.natoms)
		}
	}
	C.expected = nframes
	C.appending = appending
	C.exists = false
	if appending {
		if st, err := os.Stat(name); err == nil && st.Size() > 0 {
			if err := C.checkAppend(); err != nil {
				return err
			}
			C.exists = true
		}
	}
	C.setupW = true
	return nil
}

// OpenWrite creates the file, or, when appending to an existing file,
// positions the writer at its end.
func (C *CrdObj) OpenWrite() error {
	if !C.setupW {
		return C.errorf(traj.SequenceViolation, "OpenWrite", "trajectory not set up for writing")
	}
	var err error
	exists := C.exists
	if exists {
		C.f, err = os.OpenFile(C.filename, os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		C.f, err = os.Create(C.filename)
	}
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, C.filename, "OpenWrite", err)
	}
	C.w = bufio.NewWriter(C.f)
	C.comp, err = traj.NewCompressor(C.w, traj.CompressionFromName(C.filename))
	if err != nil {
		C.f.Close()
		return traj.Wrap(traj.IOFailure, format, C.filename, "OpenWrite", err)
	}
	if !exists {
		title := C.title
		if len(title) > 80 {
			title = title[:80]
		}
		if _, err := fmt.Fprintf(C.comp, "%s\n", title); err != nil {
			C.comp.Close()
			C.f.Close()
			return traj.Wrap(traj.IOFailure, format, C.filename, "OpenWrite", err)
		}
	}
	C.writable = true
	return nil
}

// checkAppend reads the layout of the file to append to, which must agree
// with the atom count and the metadata being written.
func (C *CrdObj) checkAppend() error {
	R := New()
	R.SetLogger(C.log)
	n, err := R.SetupRead(C.filename, traj.Hint{NAtoms: C.natoms})
	if err != nil {
		return traj.Decorate(err, "SetupWrite")
	}
	if n == 0 {
		return nil
	}
	if err := C.info.Compatible(R.info); err != nil {
		return C.errorf(traj.StructuralMismatch, "SetupWrite", "can't append to a trajectory with different contents: %s", err)
	}
	if R.info.Box && R.info.BoxShape != C.info.BoxShape {
		C.info.BoxShape = R.info.BoxShape
	}
	return nil
}

// WriteFrame writes F at the end of the trajectory. The frame is built in
// memory and written at once.
func (C *CrdObj) WriteFrame(seq int, F *coord.Frame) error {
	if !C.writable {
		return C.errorf(traj.SequenceViolation, "WriteFrame", "trajectory not open for writing")
	}
	if err := F.Check(C.natoms, C.info); err != nil {
		return C.errorf(traj.StructuralMismatch, "WriteFrame", "%s", err)
	}
	C.buf.Reset()
	if C.info.Temperature {
		fmt.Fprintf(&C.buf, "%s  %8d%8d%8d%8.2f", remdTag, 0, 0, seq, F.Temp)
		if C.info.ReplicaIndices {
			for _, v := range F.Idx {
				s := fmt.Sprintf("%*d", idxWidth, v)
				if len(s) > idxWidth {
					return C.errorf(traj.IOFailure, "WriteFrame", "replica index %d doesn't fit in %d columns", v, idxWidth)
				}
				C.buf.WriteString(" " + s)
			}
		}
		C.buf.WriteByte('\n')
	}
	data := F.X.Raw()
	k := 0
	for _, nvals := range coordLines(C.natoms) {
		if err := writeFixed(&C.buf, data[k:k+nvals]); err != nil {
			return C.errorf(traj.IOFailure, "WriteFrame", "atom %d: %s", k/3, err)
		}
		k += nvals
	}
	if C.info.Box {
		b := F.Box
		vals := b.Lengths[:]
		if C.info.BoxShape == coord.Triclinic {
			vals = append(append([]float64{}, b.Lengths[:]...), b.Angles[:]...)
		}
		if err := writeFixed(&C.buf, vals); err != nil {
			return C.errorf(traj.IOFailure, "WriteFrame", "box: %s", err)
		}
	}
	if _, err := C.comp.Write(C.buf.Bytes()); err != nil {
		return traj.Wrap(traj.IOFailure, format, C.filename, "WriteFrame", err)
	}
	return nil
}

// writeFixed writes vals as 8.3 fixed columns followed by a newline.
func writeFixed(b *bytes.Buffer, vals []float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("can't write %v", v)
		}
		s := strconv.FormatFloat(v, 'f', 3, 64)
		if len(s) > width {
			return fmt.Errorf("%s overflows %d columns", s, width)
		}
		for j := len(s); j < width; j++ {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	b.WriteByte('\n')
	return nil
}

// Close closes the trajectory. It can be called several times.
func (C *CrdObj) Close() error {
	var err error
	if C.readable {
		err = C.src.Close()
		C.readable = false
	}
	if C.writable {
		err = errors.Join(C.comp.Close(), C.w.Flush(), C.f.Close())
		C.writable = false
	}
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, C.filename, "Close", err)
	}
	return nil
}

func (C *CrdObj) String() string {
	frames := "unknown number of"
	if C.nframes != traj.Unknown {
		frames = strconv.Itoa(C.nframes)
	}
	return fmt.Sprintf("'%s' is an Amber ASCII trajectory (%s), %d atoms, %s frames, %s", C.filename, C.title, C.natoms, frames, C.info)
}
