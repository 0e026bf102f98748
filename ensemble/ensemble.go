/*
 * ensemble.go, part of remdio.
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

// Package ensemble reads the trajectories of a replica exchange simulation
// in lock-step, and sorts the frames of each step by their exchange
// coordinate, temperature or replica indices, instead of by the file they
// come from. The ensemble can also be kept in a single file, with all the
// frames of a step stored together.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/metrics"
	"github.com/gochem/remdio/replica"
	"github.com/gochem/remdio/traj"
	"github.com/gochem/remdio/trajfile"
	"go.uber.org/zap"
)

// Target is the exchange coordinate used to sort the frames of a step.
type Target int

const (
	//None keeps the frames in the order of the member files.
	None Target = iota
	ByTemperature
	ByIndices
)

func (t Target) String() string {
	switch t {
	case ByTemperature:
		return "temperature"
	case ByIndices:
		return "indices"
	}
	return "none"
}

// ParseTarget returns the Target with the given name, as given by String.
func ParseTarget(s string) (Target, error) {
	for _, t := range []Target{None, ByTemperature, ByIndices} {
		if t.String() == s {
			return t, nil
		}
	}
	return None, fmt.Errorf("unknown ensemble target '%s'", s)
}

// Batch is the result of an ensemble step. Frames[r] is the frame of
// logical replica r, read from member Slots[r]. If Reliable is false, the
// exchange coordinates of the step collided, and Frames is in member
// order. The frames belong to the member streams: they are only valid
// until the next step is read.
type Batch struct {
	Step     int
	Frames   []*coord.Frame
	Slots    []int
	Reliable bool
}

// Options for a Reader. All fields may be left empty.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	//Runner defaults to Parallel.
	Runner Runner
}

// Reader reads an ensemble of trajectories in lock-step. It owns its
// member streams.
type Reader struct {
	members []*trajfile.Stream
	single  bool //members[0] holds the whole ensemble
	target  Target
	setup   bool
	closed  bool

	temps *replica.Map[float64]
	idx   *replica.Map[[]int]
	tkeys []float64
	ikeys [][]int

	frames []*coord.Frame //in member order
	batch  Batch
	bad    bool
	fault  error
	nsteps int

	log     *zap.Logger
	metrics *metrics.Metrics
	runner  Runner
}

// New returns a reader for the given members, which must be open for
// reading. Setup must be called before reading.
func New(members []*trajfile.Stream, opts Options) *Reader {
	R := &Reader{
		members: members,
		log:     traj.NopIfNil(opts.Logger),
		metrics: opts.Metrics,
		runner:  opts.Runner,
		nsteps:  traj.Unknown,
	}
	if R.runner == nil {
		R.runner = Parallel{}
	}
	return R
}

// NewSingle returns a reader for an ensemble kept in the single file s,
// which must be open for reading. Setup must be called before reading.
func NewSingle(s *trajfile.Stream, opts Options) *Reader {
	R := New([]*trajfile.Stream{s}, opts)
	R.single = true
	return R
}

func (R *Reader) mismatch(name, msg string, a ...interface{}) error {
	return traj.NewError(traj.EnsembleSizeMismatch, "", name, "Setup", fmt.Sprintf(msg, a...))
}

// Setup checks that all members agree on the number of atoms and the
// metadata of their frames, and that they carry the exchange coordinate
// target needs. If they don't, all members are closed.
func (R *Reader) Setup(target Target) error {
	if R.setup || R.closed {
		return traj.NewError(traj.SequenceViolation, "", "", "Setup", "ensemble reader already set up")
	}
	if err := R.check(target); err != nil {
		R.Close()
		return err
	}
	m := R.Size()
	R.target = target
	R.frames = make([]*coord.Frame, m)
	R.batch = Batch{Frames: make([]*coord.Frame, m), Slots: make([]int, m)}
	switch target {
	case ByTemperature:
		R.temps = replica.Temperatures()
		R.tkeys = make([]float64, m)
	case ByIndices:
		R.idx = replica.Indices()
		R.ikeys = make([][]int, m)
	}
	R.setup = true
	R.metrics.Members(m)
	R.log.Info("ensemble set up", zap.Int("members", m), zap.Stringer("target", target), zap.Int("atoms", R.members[0].Len()), zap.Stringer("info", R.members[0].Info()))
	return nil
}

func (R *Reader) check(target Target) error {
	if len(R.members) == 0 {
		return R.mismatch("", "ensemble has no members")
	}
	first := R.members[0]
	if R.single && first.EnsembleSize() == 0 {
		return R.mismatch(first.Name(), "file holds a plain trajectory, not an ensemble")
	}
	for _, s := range R.members {
		if s.State() != trajfile.Open || s.Writing() {
			return R.mismatch(s.Name(), "member is %s, not open for reading", s.State())
		}
		if s.Len() != first.Len() {
			return R.mismatch(s.Name(), "%d atoms, %d expected (as in %s)", s.Len(), first.Len(), first.Name())
		}
		if err := first.Info().Compatible(s.Info()); err != nil {
			return R.mismatch(s.Name(), "frame metadata differs from %s: %s", first.Name(), err)
		}
		switch {
		case target == ByTemperature && !s.Info().Temperature:
			return R.mismatch(s.Name(), "temperature ensemble, but member has no temperatures")
		case target == ByIndices && !s.Info().ReplicaIndices:
			return R.mismatch(s.Name(), "replica index ensemble, but member has no replica indices")
		}
	}
	return nil
}

// Size returns the number of members.
func (R *Reader) Size() int {
	if R.single {
		return R.members[0].EnsembleSize()
	}
	return len(R.members)
}

// Members returns the member streams, in member order. A single-file
// ensemble has one stream.
func (R *Reader) Members() []*trajfile.Stream { return R.members }

// Len returns the number of steps in the ensemble: the smallest number of
// frames among its members. Members that can't tell without a scan are
// scanned once. In a single-file ensemble, an incomplete last step is not
// counted.
func (R *Reader) Len() (int, error) {
	if R.nsteps != traj.Unknown {
		return R.nsteps, nil
	}
	if R.single {
		c, err := R.members[0].Count()
		if err != nil {
			return traj.Unknown, traj.Decorate(err, "Len")
		}
		m := R.members[0].EnsembleSize()
		if c%m != 0 {
			R.log.Warn("incomplete last step in ensemble file", zap.String("file", R.members[0].Name()), zap.Int("frames", c), zap.Int("members", m))
		}
		R.nsteps = c / m
		return R.nsteps, nil
	}
	n := -1
	for _, s := range R.members {
		c, err := s.Count()
		if err != nil {
			return traj.Unknown, traj.Decorate(err, "Len")
		}
		if n < 0 || c < n {
			n = c
		}
	}
	if n < 0 {
		n = 0
	}
	R.nsteps = n
	return n, nil
}

// ReadStep reads frame step from every member and returns the frames in
// logical order. If any member fails, the step fails. A collision of the
// exchange coordinates is not an error: the batch comes back unreliable,
// and BadEnsemble reports true from then on. The context is checked before
// each frame is read.
func (R *Reader) ReadStep(ctx context.Context, step int) (*Batch, error) {
	if !R.setup || R.closed {
		return nil, traj.NewError(traj.SequenceViolation, "", "", "ReadStep", "ensemble reader not set up")
	}
	t := time.Now()
	var err error
	if R.single {
		err = R.readArray(ctx, step)
	} else {
		err = R.readMembers(ctx, step)
	}
	if err != nil {
		R.metrics.StepFailed()
		return nil, traj.Decorate(err, "ReadStep")
	}
	ok := R.resolve()
	R.batch.Step = step
	R.batch.Reliable = ok
	for r, p := range R.batch.Slots {
		R.batch.Frames[r] = R.frames[p]
	}
	if !ok {
		R.collision(step)
	}
	R.metrics.Step(time.Since(t), !ok)
	return &R.batch, nil
}

func (R *Reader) readArray(ctx context.Context, step int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frames, err := R.members[0].ReadArray(step)
	if err != nil {
		return err
	}
	copy(R.frames, frames)
	return nil
}

func (R *Reader) readMembers(ctx context.Context, step int) error {
	return R.runner.Run(ctx, len(R.members), func(ctx context.Context, p int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		F, err := R.members[p].ReadFrame(step)
		if err != nil {
			return err
		}
		R.frames[p] = F
		return nil
	})
}

func (R *Reader) resolve() bool {
	switch R.target {
	case ByTemperature:
		for p, F := range R.frames {
			R.tkeys[p] = F.Temp
		}
		return R.temps.Resolve(R.tkeys, R.batch.Slots)
	case ByIndices:
		for p, F := range R.frames {
			R.ikeys[p] = F.Idx
		}
		return R.idx.Resolve(R.ikeys, R.batch.Slots)
	}
	for p := range R.batch.Slots {
		R.batch.Slots[p] = p
	}
	return true
}

// collision records the first collision, which is also logged.
func (R *Reader) collision(step int) {
	R.bad = true
	if R.fault != nil {
		return
	}
	var keys interface{} = R.tkeys
	if R.target == ByIndices {
		keys = R.ikeys
	}
	msg := fmt.Sprintf("exchange coordinates at step %d are not a permutation of the target set: %v", step, keys)
	R.fault = traj.NewError(traj.EnsembleCoordinateCollision, "", "", "ReadStep", msg)
	R.log.Warn("bad ensemble: replica ordering is unreliable from now on", zap.Int("step", step), zap.Stringer("target", R.target), zap.Any("coordinates", keys))
}

// BadEnsemble reports whether any step read so far had colliding exchange
// coordinates. Once true, it stays true.
func (R *Reader) BadEnsemble() bool { return R.bad }

// Fault returns the error describing the first collision, or nil.
func (R *Reader) Fault() error { return R.fault }

// Targets returns the exchange coordinates of the logical replicas, in
// logical order, once they are known.
func (R *Reader) Targets() []string {
	var out []string
	switch R.target {
	case ByTemperature:
		for _, t := range R.temps.Targets() {
			out = append(out, fmt.Sprintf("%g", t))
		}
	case ByIndices:
		for _, t := range R.idx.Targets() {
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// Close closes all the members. Closing a closed reader does nothing.
func (R *Reader) Close() error {
	if R.closed {
		return nil
	}
	R.closed = true
	var errs []error
	for _, s := range R.members {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Open opens each file in names for reading, with the given format, or
// detecting it if format is empty, and sets up a reader over them. On error,
// every file opened is closed.
func Open(names []string, format string, hint traj.Hint, target Target, opts Options) (*Reader, error) {
	members := make([]*trajfile.Stream, 0, len(names))
	for _, name := range names {
		s, err := trajfile.OpenRead(name, format, hint, opts.Logger, opts.Metrics)
		if err != nil {
			for _, m := range members {
				m.Close()
			}
			return nil, traj.Decorate(err, "ensemble.Open")
		}
		members = append(members, s)
	}
	R := New(members, opts)
	if err := R.Setup(target); err != nil {
		return nil, traj.Decorate(err, "ensemble.Open")
	}
	return R, nil
}

// OpenSingle opens name, a file that holds a whole ensemble, and sets up a
// reader over it.
func OpenSingle(name, format string, hint traj.Hint, target Target, opts Options) (*Reader, error) {
	s, err := trajfile.OpenRead(name, format, hint, opts.Logger, opts.Metrics)
	if err != nil {
		return nil, traj.Decorate(err, "ensemble.OpenSingle")
	}
	R := NewSingle(s, opts)
	if err := R.Setup(target); err != nil {
		return nil, traj.Decorate(err, "ensemble.OpenSingle")
	}
	return R, nil
}
