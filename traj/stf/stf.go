/*
 * stf.go, part of remdio.
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
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/traj"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	format      = "stf"
	defaultPrec = 3
)

// StfObj is an STF trajectory, for reading or for writing.
type StfObj struct {
	natoms   int
	filename string
	info     coord.Info
	header   map[string]string
	prec     int
	mult     float64
	nframes  int
	esize    int //frames per step in an ensemble file
	log      *zap.Logger

	src      *traj.Source
	next     int
	readable bool
	fields   []string

	f         *os.File
	w         *bufio.Writer
	comp      io.WriteCloser
	level     zstd.EncoderLevel
	appending bool
	exists    bool //appending to a file with a valid header
	writable  bool
	setupW    bool
	line      []byte
}

// New returns a StfObj with nothing attached to it.
func New() *StfObj {
	return &StfObj{log: zap.NewNop(), nframes: traj.Unknown, prec: defaultPrec, level: zstd.SpeedDefault}
}

func (S *StfObj) Format() string { return format }

// SetLogger sets the logger for non-fatal problems.
func (S *StfObj) SetLogger(l *zap.Logger) { S.log = traj.NopIfNil(l) }

// Len returns the number of atoms per frame.
func (S *StfObj) Len() int { return S.natoms }

func (S *StfObj) Info() coord.Info { return S.info }

// Header returns the key=value pairs in the header of the file.
func (S *StfObj) Header() map[string]string { return S.header }

func (S *StfObj) errorf(kind traj.Kind, caller, msg string, a ...interface{}) error {
	return traj.NewError(kind, format, S.filename, caller, fmt.Sprintf(msg, a...))
}

// ID checks that the file, once decompressed, starts with a key=value
// line or with the end of the header.
func (S *StfObj) ID(name string) bool {
	lines, err := traj.HeadLines(name, 1)
	if err != nil || len(lines) == 0 {
		return false
	}
	l := lines[0]
	if strings.HasPrefix(l, "** ") {
		_, err := strconv.Atoi(strings.TrimSpace(l[3:]))
		return err == nil
	}
	k, _, ok := strings.Cut(l, "=")
	if !ok || k == "" {
		return false
	}
	for _, c := range k {
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// readHeader reads the header from r, and sets the number of atoms, the
// precision and the flags in the header.
func (S *StfObj) readHeader(r *bufio.Reader) error {
	S.header = make(map[string]string)
	S.info = coord.Info{}
	S.prec = defaultPrec
	S.esize = 0
	for {
		str, err := r.ReadString('\n')
		if err != nil {
			return S.errorf(traj.SetupFailure, "readHeader", "can't read header: %s", err)
		}
		str = strings.TrimRight(str, "\r\n")
		if strings.HasPrefix(str, "**") {
			nat := strings.Fields(str)
			if len(nat) < 2 {
				return S.errorf(traj.SetupFailure, "readHeader", "can't read atom number from '%s'", str)
			}
			S.natoms, err = strconv.Atoi(nat[1])
			if err != nil || S.natoms <= 0 {
				return S.errorf(traj.SetupFailure, "readHeader", "can't read atom number from '%s'", nat[1])
			}
			break
		}
		k, v, ok := strings.Cut(str, "=")
		if !ok {
			return S.errorf(traj.SetupFailure, "readHeader", "malformed header line '%s'", str)
		}
		S.header[k] = v
	}
	if p, ok := S.header["prec"]; ok {
		prec, err := strconv.Atoi(p)
		if err != nil || prec < 1 || prec > 9 {
			return S.errorf(traj.SetupFailure, "readHeader", "invalid precision '%s'", p)
		}
		S.prec = prec
	} else {
		S.log.Warn("STF file has no precision in its header, assuming the default", zap.String("file", S.filename), zap.Int("prec", defaultPrec))
	}
	S.mult = math.Pow(10, float64(S.prec))
	S.info.Velocities = S.header["vel"] == "1"
	S.info.Temperature = S.header["temp"] == "1"
	if nd, ok := S.header["ndims"]; ok {
		n, err := strconv.Atoi(nd)
		if err != nil || n < 1 {
			return S.errorf(traj.SetupFailure, "readHeader", "invalid number of replica dimensions '%s'", nd)
		}
		S.info.ReplicaIndices = true
		S.info.NDims = n
	}
	if e, ok := S.header["ensemble"]; ok {
		n, err := strconv.Atoi(e)
		if err != nil || n < 1 {
			return S.errorf(traj.SetupFailure, "readHeader", "invalid ensemble size '%s'", e)
		}
		S.esize = n
	}
	return nil
}

// SetupRead reads the header and the first frame of name. STF files are
// compressed streams, so the number of frames is not known before a Scan.
func (S *StfObj) SetupRead(name string, hint traj.Hint) (int, error) {
	S.filename = name
	src, err := traj.OpenSource(name)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.SetupFailure, format, name, "SetupRead", err)
	}
	defer src.Close()
	if err := S.readHeader(src.Reader); err != nil {
		return traj.Unknown, traj.Decorate(err, "SetupRead")
	}
	if hint.NAtoms > 0 && hint.NAtoms != S.natoms {
		return traj.Unknown, S.errorf(traj.StructuralMismatch, "SetupRead", "file has %d atoms, %d expected", S.natoms, hint.NAtoms)
	}
	//The box is only given by the frames, so we look at the first one.
	F := coord.NewFrame(S.natoms, S.info)
	S.src = src
	box, err := S.readFrame(F, false)
	S.src = nil
	switch {
	case traj.LastFrame(err):
		S.nframes = 0
	case err != nil:
		return traj.Unknown, traj.Decorate(err, "SetupRead")
	case box:
		S.info.Box = true
		S.info.BoxShape = F.Box.Shape()
	}
	S.next = 0
	return traj.Unknown, nil
}

// Scan decompresses the whole file and counts its frames.
func (S *StfObj) Scan() (int, error) {
	if S.nframes != traj.Unknown {
		return S.nframes, nil
	}
	src, err := traj.OpenSource(S.filename)
	if err != nil {
		return traj.Unknown, traj.Wrap(traj.IOFailure, format, S.filename, "Scan", err)
	}
	defer src.Close()
	frames := 0
	header := true
	for {
		l, err := src.ReadSlice('\n')
		if len(l) > 0 {
			switch {
			case header:
				header = !(len(l) > 1 && l[0] == '*' && l[1] == '*')
			case l[0] == '*':
				frames++
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			//a long header line. The rest of it doesn't matter.
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = src.ReadSlice('\n')
			}
		}
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return traj.Unknown, traj.Wrap(traj.IOFailure, format, S.filename, "Scan", err)
		}
	}
	S.nframes = frames
	return frames, nil
}

func (S *StfObj) OpenRead() error {
	if S.natoms == 0 {
		return S.errorf(traj.SequenceViolation, "OpenRead", "trajectory not set up for reading")
	}
	var err error
	S.src, err = traj.OpenSource(S.filename)
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, S.filename, "OpenRead", err)
	}
	info := S.info
	if err := S.readHeader(S.src.Reader); err != nil {
		S.src.Close()
		return traj.Decorate(err, "OpenRead")
	}
	S.info = info
	S.next = 0
	S.readable = true
	return nil
}

func (S *StfObj) seek(i int, caller string) error {
	if !S.readable {
		return S.errorf(traj.SequenceViolation, caller, "trajectory not open for reading")
	}
	if i < S.next || S.next < 0 {
		return S.errorf(traj.SequenceViolation, caller, "STF files are read sequentially, can't go back to frame %d from frame %d", i, S.next)
	}
	if S.nframes != traj.Unknown && i >= S.nframes {
		return traj.LastFrameError(format, S.filename, caller, i)
	}
	for S.next < i {
		if _, err := S.readFrame(nil, false); err != nil {
			return traj.Decorate(err, caller)
		}
		S.next++
	}
	return nil
}

// ReadFrame reads frame i into F. Frames before i are skipped; going back
// is not possible.
func (S *StfObj) ReadFrame(i int, F *coord.Frame) error {
	if F.Len() != S.natoms {
		return S.errorf(traj.StructuralMismatch, "ReadFrame", "frame buffer has %d atoms, trajectory has %d", F.Len(), S.natoms)
	}
	if err := S.seek(i, "ReadFrame"); err != nil {
		return err
	}
	if _, err := S.readFrame(F, false); err != nil {
		return traj.Decorate(err, "ReadFrame")
	}
	S.next = i + 1
	return nil
}

// ReadVelocity reads only the velocities of frame i into F.V. The frame is
// consumed, so it can't be read again with ReadFrame.
func (S *StfObj) ReadVelocity(i int, F *coord.Frame) error {
	if !S.info.Velocities {
		return S.errorf(traj.IOFailure, "ReadVelocity", "trajectory has no velocities")
	}
	if F == nil || F.V == nil || F.V.NVecs() != S.natoms {
		return S.errorf(traj.StructuralMismatch, "ReadVelocity", "frame buffer has no room for %d velocities", S.natoms)
	}
	if err := S.seek(i, "ReadVelocity"); err != nil {
		return err
	}
	if _, err := S.readFrame(F, true); err != nil {
		return traj.Decorate(err, "ReadVelocity")
	}
	S.next = i + 1
	return nil
}

// readFrame reads the next frame into F, or discards it if F is nil. With
// velOnly, only velocities are decoded. It reports whether the frame had a
// box.
func (S *StfObj) readFrame(F *coord.Frame, velOnly bool) (bool, error) {
	nf := 3
	if S.info.Velocities {
		nf = 6
	}
	for k := 0; k < S.natoms; k++ {
		l, err := S.src.ReadString('\n')
		if err != nil && (l == "" || !errors.Is(err, io.EOF)) {
			if k == 0 && errors.Is(err, io.EOF) {
				return false, traj.LastFrameError(format, S.filename, "readFrame", S.next)
			}
			err := S.errorf(traj.IOFailure, "readFrame", "frame %d truncated after %d atoms", S.next, k)
			S.next = -1
			return false, err
		}
		if F == nil {
			continue
		}
		S.fields = appendFields(S.fields[:0], l)
		if len(S.fields) != nf {
			S.next = -1
			return false, S.errorf(traj.IOFailure, "readFrame", "atom line %d has %d fields, %d expected: '%s'", k+1, len(S.fields), nf, strings.TrimSpace(l))
		}
		from, to := 0, 3
		if velOnly {
			from, to = 3, 6
		} else if F.V != nil && nf == 6 {
			to = 6
		}
		for j := from; j < to; j++ {
			v, err := strconv.ParseInt(S.fields[j], 10, 64)
			if err != nil {
				S.next = -1
				return false, S.errorf(traj.IOFailure, "readFrame", "can't parse '%s' in atom line %d", S.fields[j], k+1)
			}
			if j < 3 {
				F.X.Set(k, j, float64(v)/S.mult)
			} else {
				F.V.Set(k, j-3, float64(v)/S.mult)
			}
		}
	}
	l, err := S.src.ReadString('\n')
	if err != nil && l == "" {
		S.next = -1
		return false, S.errorf(traj.IOFailure, "readFrame", "frame without terminator line")
	}
	if len(l) == 0 || l[0] != '*' {
		S.next = -1
		return false, S.errorf(traj.IOFailure, "readFrame", "wrong number of atoms in frame, or missing terminator line")
	}
	box, err := S.parseTerminator(l, F, velOnly)
	if err != nil {
		S.next = -1
	}
	return box, err
}

func appendFields(dst []string, l string) []string {
	return append(dst, strings.Fields(l)...)
}

// parseTerminator reads the box, temperature and replica indices from the
// line that ends a frame.
func (S *StfObj) parseTerminator(l string, F *coord.Frame, velOnly bool) (bool, error) {
	fields := strings.Fields(l[1:])
	var box []float64
	gotTemp, gotIdx := false, false
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "t="):
			gotTemp = true
			if F == nil || velOnly {
				continue
			}
			t, err := strconv.ParseFloat(f[2:], 64)
			if err != nil {
				return false, S.errorf(traj.IOFailure, "parseTerminator", "can't parse temperature '%s'", f)
			}
			F.Temp = t
		case strings.HasPrefix(f, "i="):
			gotIdx = true
			if F == nil || velOnly {
				continue
			}
			idx := strings.Split(f[2:], ",")
			if len(idx) != S.info.NDims || len(F.Idx) != S.info.NDims {
				return false, S.errorf(traj.IOFailure, "parseTerminator", "%d replica indices, %d expected", len(idx), S.info.NDims)
			}
			for j, s := range idx {
				v, err := strconv.Atoi(s)
				if err != nil {
					return false, S.errorf(traj.IOFailure, "parseTerminator", "can't parse replica index '%s'", s)
				}
				F.Idx[j] = v
			}
		default:
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return false, S.errorf(traj.IOFailure, "parseTerminator", "can't parse box value '%s'", f)
			}
			box = append(box, v)
		}
	}
	if S.info.Temperature && !gotTemp || S.info.ReplicaIndices && !gotIdx {
		return false, S.errorf(traj.IOFailure, "parseTerminator", "frame lacks the replica exchange data the header announces")
	}
	if len(box) != 0 && len(box) != 9 {
		return false, S.errorf(traj.IOFailure, "parseTerminator", "%d box values, 9 expected", len(box))
	}
	if len(box) == 9 && F != nil && !velOnly {
		F.Box = coord.BoxFromVectors(mat.NewDense(3, 3, box))
	}
	return len(box) == 9, nil
}

// ProcessWriteArgs accepts "prec", the number of decimals kept (1 to 9),
// "level", the compression level (fastest, default, better or best) and
// "ensemble", the number of members of an ensemble kept in the file.
func (S *StfObj) ProcessWriteArgs(args map[string]string) error {
	for k, v := range args {
		switch k {
		case "prec":
			p, err := strconv.Atoi(v)
			if err != nil || p < 1 || p > 9 {
				return S.errorf(traj.SetupFailure, "ProcessWriteArgs", "invalid precision '%s'", v)
			}
			S.prec = p
		case "level":
			ok, l := zstd.EncoderLevelFromString(v)
			if !ok {
				return S.errorf(traj.SetupFailure, "ProcessWriteArgs", "unknown compression level '%s'", v)
			}
			S.level = l
		case "ensemble":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return S.errorf(traj.SetupFailure, "ProcessWriteArgs", "invalid ensemble size '%s'", v)
			}
			S.esize = n
		default:
			return S.errorf(traj.SetupFailure, "ProcessWriteArgs", "unknown STF option '%s'", k)
		}
	}
	return nil
}

// SetupWrite prepares name for writing. STF can store everything in info.
func (S *StfObj) SetupWrite(name string, hint traj.Hint, info coord.Info, nframes int, appending bool) error {
	S.filename = name
	if hint.NAtoms <= 0 {
		return S.errorf(traj.SetupFailure, "SetupWrite", "number of atoms not given")
	}
	if info.ReplicaIndices && info.NDims < 1 {
		return S.errorf(traj.SetupFailure, "SetupWrite", "replica indices requested with %d dimensions", info.NDims)
	}
	S.natoms = hint.NAtoms
	S.info = info
	S.appending = appending
	S.mult = math.Pow(10, float64(S.prec))
	S.exists = false
	if appending {
		if st, err := os.Stat(name); err == nil && st.Size() > 0 {
			if err := S.checkAppend(); err != nil {
				return err
			}
			S.exists = true
		}
	}
	S.setupW = true
	return nil
}

func (S *StfObj) compressor(w io.Writer) (io.WriteCloser, error) {
	if strings.HasSuffix(strings.ToLower(S.filename), "z") {
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(S.level))
}

// OpenWrite creates the file and writes the header. When appending to an
// existing file, the new frames go in a new compressed stream at its end.
func (S *StfObj) OpenWrite() error {
	if !S.setupW {
		return S.errorf(traj.SequenceViolation, "OpenWrite", "trajectory not set up for writing")
	}
	exists := S.exists
	var err error
	if exists {
		S.f, err = os.OpenFile(S.filename, os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		S.f, err = os.Create(S.filename)
	}
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, S.filename, "OpenWrite", err)
	}
	S.w = bufio.NewWriter(S.f)
	S.comp, err = S.compressor(S.w)
	if err != nil {
		S.f.Close()
		return traj.Wrap(traj.IOFailure, format, S.filename, "OpenWrite", err)
	}
	if !exists {
		if _, err := io.WriteString(S.comp, S.headerString()); err != nil {
			S.comp.Close()
			S.f.Close()
			return traj.Wrap(traj.IOFailure, format, S.filename, "OpenWrite", err)
		}
	}
	S.writable = true
	return nil
}

func (S *StfObj) headerString() string {
	h := map[string]string{"prec": strconv.Itoa(S.prec)}
	if S.info.Velocities {
		h["vel"] = "1"
	}
	if S.info.Temperature {
		h["temp"] = "1"
	}
	if S.info.ReplicaIndices {
		h["ndims"] = strconv.Itoa(S.info.NDims)
	}
	if S.esize > 0 {
		h["ensemble"] = strconv.Itoa(S.esize)
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, h[k])
	}
	fmt.Fprintf(&b, "** %d\n", S.natoms)
	return b.String()
}

func (S *StfObj) checkAppend() error {
	R := New()
	R.SetLogger(S.log)
	if _, err := R.SetupRead(S.filename, traj.Hint{NAtoms: S.natoms}); err != nil {
		return traj.Decorate(err, "SetupWrite")
	}
	existing := R.info
	if R.nframes == 0 {
		existing.Box = S.info.Box
	}
	if err := S.info.Compatible(existing); err != nil {
		return S.errorf(traj.StructuralMismatch, "SetupWrite", "can't append to a trajectory with different contents: %s", err)
	}
	if R.esize != S.esize {
		return S.errorf(traj.StructuralMismatch, "SetupWrite", "can't append %d frames per step to a file with %d", S.esize, R.esize)
	}
	S.prec = R.prec
	S.mult = R.mult
	return nil
}

func (S *StfObj) appendInt(v float64) {
	S.line = strconv.AppendInt(S.line, int64(math.RoundToEven(v*S.mult)), 10)
}

// WriteFrame writes F after the last frame.
func (S *StfObj) WriteFrame(seq int, F *coord.Frame) error {
	if !S.writable {
		return S.errorf(traj.SequenceViolation, "WriteFrame", "trajectory not open for writing")
	}
	if err := F.Check(S.natoms, S.info); err != nil {
		return S.errorf(traj.StructuralMismatch, "WriteFrame", "%s", err)
	}
	for i := 0; i < S.natoms; i++ {
		S.line = S.line[:0]
		for j := 0; j < 3; j++ {
			if j > 0 {
				S.line = append(S.line, ' ')
			}
			S.appendInt(F.X.At(i, j))
		}
		if S.info.Velocities {
			for j := 0; j < 3; j++ {
				S.line = append(S.line, ' ')
				S.appendInt(F.V.At(i, j))
			}
		}
		S.line = append(S.line, '\n')
		if _, err := S.comp.Write(S.line); err != nil {
			return traj.Wrap(traj.IOFailure, format, S.filename, "WriteFrame", err)
		}
	}
	S.line = append(S.line[:0], '*')
	if S.info.Box {
		v := F.Box.Vectors()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				S.line = append(S.line, ' ')
				S.line = strconv.AppendFloat(S.line, v.At(i, j), 'f', 6, 64)
			}
		}
	}
	if S.info.Temperature {
		S.line = append(S.line, " t="...)
		S.line = strconv.AppendFloat(S.line, F.Temp, 'g', -1, 64)
	}
	if S.info.ReplicaIndices {
		S.line = append(S.line, " i="...)
		for j, v := range F.Idx {
			if j > 0 {
				S.line = append(S.line, ',')
			}
			S.line = strconv.AppendInt(S.line, int64(v), 10)
		}
	}
	S.line = append(S.line, '\n')
	if _, err := S.comp.Write(S.line); err != nil {
		return traj.Wrap(traj.IOFailure, format, S.filename, "WriteFrame", err)
	}
	return nil
}

// EnsembleSize returns the number of frames per step of an ensemble file,
// or 0.
func (S *StfObj) EnsembleSize() int { return S.esize }

// ReadArray reads the frames of every member at step. A step with only
// some of its frames is an error, not the end of the file.
func (S *StfObj) ReadArray(step int, frames []*coord.Frame) error {
	if S.esize == 0 {
		return S.errorf(traj.IOFailure, "ReadArray", "not an ensemble file")
	}
	if len(frames) != S.esize {
		return S.errorf(traj.EnsembleSizeMismatch, "ReadArray", "%d frame buffers for %d members", len(frames), S.esize)
	}
	for p, F := range frames {
		err := S.ReadFrame(step*S.esize+p, F)
		if p > 0 && traj.LastFrame(err) {
			S.next = -1
			return S.errorf(traj.IOFailure, "ReadArray", "step %d has %d of %d frames", step, p, S.esize)
		}
		if err != nil {
			return traj.Decorate(err, "ReadArray")
		}
	}
	return nil
}

// WriteArray writes the frames of every member as one step.
func (S *StfObj) WriteArray(seq int, frames []*coord.Frame) error {
	if S.esize == 0 {
		return S.errorf(traj.SetupFailure, "WriteArray", "not an ensemble file")
	}
	if len(frames) != S.esize {
		return S.errorf(traj.EnsembleSizeMismatch, "WriteArray", "%d frames for %d members", len(frames), S.esize)
	}
	for _, F := range frames {
		if err := S.WriteFrame(seq, F); err != nil {
			return traj.Decorate(err, "WriteArray")
		}
	}
	return nil
}

func (S *StfObj) Close() error {
	var err error
	if S.readable {
		err = S.src.Close()
		S.readable = false
	}
	if S.writable {
		err = errors.Join(S.comp.Close(), S.w.Flush(), S.f.Close())
		S.writable = false
	}
	if err != nil {
		return traj.Wrap(traj.IOFailure, format, S.filename, "Close", err)
	}
	return nil
}

func (S *StfObj) String() string {
	frames := "unknown number of"
	if S.nframes != traj.Unknown {
		frames = strconv.Itoa(S.nframes)
	}
	if S.esize > 0 {
		return fmt.Sprintf("'%s' is an STF ensemble of %d members (precision %d), %d atoms, %s frames, %s", S.filename, S.esize, S.prec, S.natoms, frames, S.info)
	}
	return fmt.Sprintf("'%s' is an STF trajectory (precision %d), %d atoms, %s frames, %s", S.filename, S.prec, S.natoms, frames, S.info)
}
