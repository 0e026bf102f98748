/*
 * stream.go, part of remdio.
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

package trajfile

import (
	"fmt"
	"time"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/metrics"
	"github.com/gochem/remdio/traj"
	"go.uber.org/zap"
)

// State is a stage in the life of a Stream. A stream only moves forward.
type State int

const (
	Unconfigured State = iota
	ReadSetup
	WriteSetup
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case ReadSetup:
		return "set up for reading"
	case WriteSetup:
		return "set up for writing"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stream is a trajectory file with its backend. It owns the frame buffer
// returned by ReadFrame. A Stream is used once: after Close it can't be
// set up again. It is not safe for concurrent use.
type Stream struct {
	io      traj.IO
	state   State
	writing bool
	name    string
	nframes int
	frame   *coord.Frame
	array   []*coord.Frame
	lastSeq int
	written int

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewStream returns an unconfigured stream. Both arguments may be nil.
func NewStream(logger *zap.Logger, m *metrics.Metrics) *Stream {
	return &Stream{log: traj.NopIfNil(logger), metrics: m, nframes: traj.Unknown}
}

func (S *Stream) errorf(kind traj.Kind, caller, msg string, a ...interface{}) error {
	f := ""
	if S.io != nil {
		f = S.io.Format()
	}
	err := traj.NewError(kind, f, S.name, caller, fmt.Sprintf(msg, a...))
	S.metrics.Error(kind.String())
	return err
}

// fail records err and returns it decorated with caller.
func (S *Stream) fail(err error, caller string) error {
	if k := traj.KindOf(err); k != 0 && !traj.LastFrame(err) {
		S.metrics.Error(k.String())
	}
	return traj.Decorate(err, caller)
}

func (S *Stream) attach(b traj.IO) {
	S.io = b
	if l, ok := b.(traj.Logged); ok {
		l.SetLogger(S.log)
	}
}

// SetupRead prepares name for reading. An empty format means the format
// is detected from the contents of the file. On error the stream stays
// unconfigured and no file is left open.
func (S *Stream) SetupRead(name, format string, hint traj.Hint) error {
	if S.state != Unconfigured {
		return S.errorf(traj.SequenceViolation, "SetupRead", "stream is %s", S.state)
	}
	S.name = name
	var b traj.IO
	var err error
	if format == "" {
		b, err = Detect(name)
	} else {
		b, err = New(format)
	}
	if err != nil {
		return S.fail(err, "SetupRead")
	}
	S.attach(b)
	n, err := b.SetupRead(name, hint)
	if err != nil {
		b.Close()
		S.io = nil
		return S.fail(err, "SetupRead")
	}
	S.nframes = n
	S.frame = coord.NewFrame(b.Len(), b.Info())
	S.state = ReadSetup
	S.log.Debug("trajectory set up for reading", zap.String("file", name), zap.String("format", b.Format()), zap.Int("frames", n))
	return nil
}

// SetupWrite prepares name for writing frames with the given metadata.
// An empty format is guessed from the file name. args are format-specific
// options. Nothing is written to disk before Open.
func (S *Stream) SetupWrite(name, format string, hint traj.Hint, info coord.Info, nframes int, appending bool, args map[string]string) error {
	if S.state != Unconfigured {
		return S.errorf(traj.SequenceViolation, "SetupWrite", "stream is %s", S.state)
	}
	S.name = name
	b, err := ForWrite(format, name)
	if err != nil {
		return S.fail(err, "SetupWrite")
	}
	S.attach(b)
	if len(args) > 0 {
		ap, ok := b.(traj.ArgProcessor)
		if !ok {
			S.io = nil
			return S.errorf(traj.SetupFailure, "SetupWrite", "the %s format takes no write options", b.Format())
		}
		if err := ap.ProcessWriteArgs(args); err != nil {
			S.io = nil
			return S.fail(err, "SetupWrite")
		}
	}
	if err := b.SetupWrite(name, hint, info, nframes, appending); err != nil {
		b.Close()
		S.io = nil
		return S.fail(err, "SetupWrite")
	}
	S.writing = true
	S.nframes = 0
	S.lastSeq = -1 << 62
	S.state = WriteSetup
	S.log.Debug("trajectory set up for writing", zap.String("file", name), zap.String("format", b.Format()), zap.Stringer("info", info))
	return nil
}

// Open opens the file set up by SetupRead or SetupWrite. If it fails, the
// stream is closed.
func (S *Stream) Open() error {
	var err error
	switch S.state {
	case ReadSetup:
		err = S.io.OpenRead()
	case WriteSetup:
		err = S.io.OpenWrite()
	default:
		return S.errorf(traj.SequenceViolation, "Open", "stream is %s", S.state)
	}
	if err != nil {
		S.io.Close()
		S.state = Closed
		return S.fail(err, "Open")
	}
	S.state = Open
	return nil
}

// ReadFrame reads frame i and returns the stream's frame buffer, which is
// overwritten by the next read.
func (S *Stream) ReadFrame(i int) (*coord.Frame, error) {
	if S.state != Open || S.writing {
		return nil, S.errorf(traj.SequenceViolation, "ReadFrame", "stream is %s, not open for reading", S.state)
	}
	t := time.Now()
	if err := S.io.ReadFrame(i, S.frame); err != nil {
		return nil, S.fail(err, "ReadFrame")
	}
	S.metrics.FrameRead(S.io.Format(), time.Since(t))
	return S.frame, nil
}

// ReadVelocity reads only the velocities of frame i into the frame buffer.
func (S *Stream) ReadVelocity(i int) (*coord.Frame, error) {
	if S.state != Open || S.writing {
		return nil, S.errorf(traj.SequenceViolation, "ReadVelocity", "stream is %s, not open for reading", S.state)
	}
	if err := S.io.ReadVelocity(i, S.frame); err != nil {
		return nil, S.fail(err, "ReadVelocity")
	}
	return S.frame, nil
}

// WriteFrame writes F. seq must be larger than in the previous call.
func (S *Stream) WriteFrame(seq int, F *coord.Frame) error {
	if S.state != Open || !S.writing {
		return S.errorf(traj.SequenceViolation, "WriteFrame", "stream is %s, not open for writing", S.state)
	}
	if seq <= S.lastSeq {
		return S.errorf(traj.SequenceViolation, "WriteFrame", "sequence number %d after %d", seq, S.lastSeq)
	}
	if err := S.io.WriteFrame(seq, F); err != nil {
		return S.fail(err, "WriteFrame")
	}
	S.lastSeq = seq
	S.written++
	S.metrics.FrameWritten(S.io.Format())
	return nil
}

// EnsembleSize returns the number of frames per step if the file holds a
// whole ensemble, and 0 otherwise.
func (S *Stream) EnsembleSize() int {
	if a, ok := S.io.(traj.ArrayIO); ok {
		return a.EnsembleSize()
	}
	return 0
}

func (S *Stream) arrayIO(caller string, writing bool) (traj.ArrayIO, error) {
	if S.state != Open || S.writing != writing {
		return nil, S.errorf(traj.SequenceViolation, caller, "stream is %s, not open for this operation", S.state)
	}
	a, ok := S.io.(traj.ArrayIO)
	if !ok || a.EnsembleSize() == 0 {
		return nil, S.errorf(traj.SetupFailure, caller, "%s is not a single-file ensemble", S.name)
	}
	return a, nil
}

// ReadArray reads the frames of every member at step from a single-file
// ensemble. The frames belong to the stream and are overwritten by the
// next read.
func (S *Stream) ReadArray(step int) ([]*coord.Frame, error) {
	a, err := S.arrayIO("ReadArray", false)
	if err != nil {
		return nil, err
	}
	if len(S.array) != a.EnsembleSize() {
		S.array = make([]*coord.Frame, a.EnsembleSize())
		for p := range S.array {
			S.array[p] = coord.NewFrame(S.io.Len(), S.io.Info())
		}
	}
	t := time.Now()
	if err := a.ReadArray(step, S.array); err != nil {
		return nil, S.fail(err, "ReadArray")
	}
	d := time.Since(t) / time.Duration(len(S.array))
	for range S.array {
		S.metrics.FrameRead(S.io.Format(), d)
	}
	return S.array, nil
}

// WriteArray writes frames as step seq of a single-file ensemble. seq
// must be larger than in the previous call.
func (S *Stream) WriteArray(seq int, frames []*coord.Frame) error {
	a, err := S.arrayIO("WriteArray", true)
	if err != nil {
		return err
	}
	if seq <= S.lastSeq {
		return S.errorf(traj.SequenceViolation, "WriteArray", "sequence number %d after %d", seq, S.lastSeq)
	}
	if err := a.WriteArray(seq, frames); err != nil {
		return S.fail(err, "WriteArray")
	}
	S.lastSeq = seq
	S.written += len(frames)
	for range frames {
		S.metrics.FrameWritten(S.io.Format())
	}
	return nil
}

// Close releases the file. Closing a closed stream does nothing.
func (S *Stream) Close() error {
	if S.state == Closed {
		return nil
	}
	S.state = Closed
	if S.io == nil {
		return nil
	}
	if err := S.io.Close(); err != nil {
		return S.fail(err, "Close")
	}
	return nil
}

// Count returns the number of frames in a stream set up for reading. If
// the format could not tell at setup, the file is scanned once and the
// result is kept. For a stream being written, it is the number of frames
// written so far.
func (S *Stream) Count() (int, error) {
	if S.writing {
		return S.written, nil
	}
	if S.io == nil {
		return 0, S.errorf(traj.SequenceViolation, "Count", "stream is %s", S.state)
	}
	if S.nframes != traj.Unknown {
		return S.nframes, nil
	}
	sc, ok := S.io.(traj.Scanner)
	if !ok {
		return traj.Unknown, S.errorf(traj.SetupFailure, "Count", "the %s format can't count its frames", S.io.Format())
	}
	n, err := sc.Scan()
	if err != nil {
		return traj.Unknown, S.fail(err, "Count")
	}
	S.nframes = n
	return n, nil
}

// Describe returns a human readable summary of the stream.
func (S *Stream) Describe() string {
	if S.io == nil {
		return fmt.Sprintf("trajectory stream '%s', %s", S.name, S.state)
	}
	return S.io.String()
}

// Info returns the metadata of the frames in the stream.
func (S *Stream) Info() coord.Info {
	if S.io == nil {
		return coord.Info{}
	}
	return S.io.Info()
}

// Len returns the number of atoms per frame.
func (S *Stream) Len() int {
	if S.io == nil {
		return 0
	}
	return S.io.Len()
}

func (S *Stream) State() State { return S.state }

func (S *Stream) Name() string { return S.name }

// Format returns the name of the format of the stream, or "" if it has no
// backend yet.
func (S *Stream) Format() string {
	if S.io == nil {
		return ""
	}
	return S.io.Format()
}

// Writing reports whether the stream was set up for writing.
func (S *Stream) Writing() bool { return S.writing }

// OpenRead sets up name for reading and opens it.
func OpenRead(name, format string, hint traj.Hint, logger *zap.Logger, m *metrics.Metrics) (*Stream, error) {
	S := NewStream(logger, m)
	if err := S.SetupRead(name, format, hint); err != nil {
		return nil, traj.Decorate(err, "OpenRead")
	}
	if err := S.Open(); err != nil {
		return nil, traj.Decorate(err, "OpenRead")
	}
	return S, nil
}

// Create sets up name for writing and opens it.
func Create(name, format string, hint traj.Hint, info coord.Info, nframes int, appending bool, args map[string]string, logger *zap.Logger, m *metrics.Metrics) (*Stream, error) {
	S := NewStream(logger, m)
	if err := S.SetupWrite(name, format, hint, info, nframes, appending, args); err != nil {
		return nil, traj.Decorate(err, "Create")
	}
	if err := S.Open(); err != nil {
		return nil, traj.Decorate(err, "Create")
	}
	return S, nil
}
