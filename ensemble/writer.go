/*
 * writer.go, part of remdio.
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

package ensemble

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/metrics"
	"github.com/gochem/remdio/traj"
	"github.com/gochem/remdio/trajfile"
	"go.uber.org/zap"
)

// Writer writes each logical replica of an ensemble to its own trajectory,
// or the whole ensemble to a single file.
type Writer struct {
	streams []*trajfile.Stream
	single  int //members in streams[0], 0 for one file per replica
	log     *zap.Logger
}

// MemberNames returns the names prefix.0.ext, prefix.1.ext... for n
// replicas.
func MemberNames(prefix, ext string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s.%d.%s", prefix, i, ext)
	}
	return names
}

// NewWriter creates one output trajectory per name. args are
// format-specific write options. On error, the files already created are
// closed.
func NewWriter(names []string, format string, hint traj.Hint, info coord.Info, nframes int, args map[string]string, logger *zap.Logger, m *metrics.Metrics) (*Writer, error) {
	W := &Writer{log: traj.NopIfNil(logger)}
	for _, name := range names {
		s, err := trajfile.Create(name, format, hint, info, nframes, false, args, logger, m)
		if err != nil {
			W.Close()
			return nil, traj.Decorate(err, "NewWriter")
		}
		W.streams = append(W.streams, s)
	}
	return W, nil
}

// NewSingleWriter creates name, a file that keeps all the m replicas of
// the ensemble. The format must support ensemble files.
func NewSingleWriter(name, format string, hint traj.Hint, info coord.Info, nframes, m int, args map[string]string, logger *zap.Logger, met *metrics.Metrics) (*Writer, error) {
	if m < 1 {
		return nil, traj.NewError(traj.EnsembleSizeMismatch, format, name, "NewSingleWriter", fmt.Sprintf("ensemble of %d members", m))
	}
	a := map[string]string{"ensemble": strconv.Itoa(m)}
	for k, v := range args {
		a[k] = v
	}
	s, err := trajfile.Create(name, format, hint, info, nframes*m, false, a, logger, met)
	if err != nil {
		return nil, traj.Decorate(err, "NewSingleWriter")
	}
	if s.EnsembleSize() != m {
		s.Close()
		return nil, traj.NewError(traj.SetupFailure, s.Format(), name, "NewSingleWriter", "format can't keep an ensemble in one file")
	}
	return &Writer{streams: []*trajfile.Stream{s}, single: m, log: traj.NopIfNil(logger)}, nil
}

// Streams returns the output streams, in logical order.
func (W *Writer) Streams() []*trajfile.Stream { return W.streams }

// WriteBatch writes frame r of b to output r, with sequence number seq. In
// a single file, the frames are written as one step, in logical order.
func (W *Writer) WriteBatch(seq int, b *Batch) error {
	n := len(W.streams)
	if W.single > 0 {
		n = W.single
	}
	if len(b.Frames) != n {
		return traj.NewError(traj.EnsembleSizeMismatch, "", "", "WriteBatch", fmt.Sprintf("batch of %d frames for %d outputs", len(b.Frames), n))
	}
	if !b.Reliable {
		W.log.Debug("writing an unreliable batch in member order", zap.Int("step", b.Step))
	}
	if W.single > 0 {
		return traj.Decorate(W.streams[0].WriteArray(seq, b.Frames), "WriteBatch")
	}
	for r, F := range b.Frames {
		if err := W.streams[r].WriteFrame(seq, F); err != nil {
			return traj.Decorate(err, "WriteBatch")
		}
	}
	return nil
}

// Close closes all the outputs.
func (W *Writer) Close() error {
	var errs []error
	for _, s := range W.streams {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
