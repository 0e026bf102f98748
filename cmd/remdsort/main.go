/*
 * main.go, part of remdio.
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

// Command remdsort reads the trajectories of a replica exchange simulation
// and writes one trajectory per temperature (or per set of replica
// indices), instead of one per replica. It can also compute the radius of
// gyration of each sorted trajectory and plot the walk of the replicas.
//
//	remdsort -config job.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gochem/remdio/analysis"
	"github.com/gochem/remdio/config"
	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/ensemble"
	"github.com/gochem/remdio/metrics"
	"github.com/gochem/remdio/remdplot"
	"github.com/gochem/remdio/traj"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	path := flag.String("config", "remdsort.toml", "job configuration, TOML or YAML")
	flag.Parse()
	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()
	logger.Info("Configuration loaded",
		zap.String("config", *path),
		zap.Int("members", len(cfg.Ensemble.Files)),
		zap.String("target", cfg.Ensemble.Target))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rep, err := run(ctx, cfg, logger, m)
	if cfg.Metrics.Enabled {
		if merr := dumpMetrics(cfg.Metrics.File, reg); merr != nil {
			logger.Error("Failed to write metrics", zap.Error(merr))
		}
	}
	if err != nil {
		logger.Error("remdsort failed", zap.Error(err))
		return 1
	}
	if rep.fault != nil {
		logger.Warn("Finished with a bad ensemble: the replica ordering of some steps is unreliable",
			zap.Int("frames", rep.frames), zap.Error(rep.fault))
		return 0
	}
	logger.Info("Finished", zap.Int("frames", rep.frames))
	return 0
}

func initLogger(c config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func dumpMetrics(name string, g prometheus.Gatherer) error {
	var w io.Writer = os.Stderr
	if name != "" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return metrics.WriteText(w, g)
}

// report is the outcome of a run.
type report struct {
	frames int
	//fault is the first replica coordinate collision, if any.
	fault error
}

// run sorts the ensemble.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (rep report, err error) {
	e := cfg.Ensemble
	hint := traj.Hint{NAtoms: e.Atoms, Names: e.Names}
	R, err := ensemble.Open(e.Files, e.Format, hint, cfg.Target(), ensemble.Options{Logger: logger, Metrics: m, Runner: cfg.Runner()})
	if err != nil {
		return rep, err
	}
	defer func() {
		R.Close()
		rep.fault = R.Fault()
	}()
	nsteps, err := R.Len()
	if err != nil {
		return rep, err
	}
	last := e.Stop
	if last < 0 || last >= nsteps {
		last = nsteps - 1
	}
	nout := 0
	if last >= e.Start {
		nout = (last-e.Start)/e.Offset + 1
	}
	logger.Info("Ensemble opened", zap.Int("steps", nsteps), zap.Int("output_frames", nout))

	W, err := newWriter(cfg, hint, R, nout, logger, m)
	if err != nil {
		return rep, err
	}
	defer W.Close()

	var rgs []*analysis.RadGyr
	if cfg.Analysis.RadGyr {
		for r := 0; r < R.Size(); r++ {
			var a analysis.Action = &analysis.RadGyr{Mask: cfg.Analysis.Mask, Mass: cfg.Analysis.Mass}
			if err := a.Setup(hint); err != nil {
				return rep, err
			}
			rgs = append(rgs, a.(*analysis.RadGyr))
		}
	}
	trace := remdplot.NewTrace(R.Size())

	seq := 0
	for step := e.Start; step <= last; step += e.Offset {
		b, err := R.ReadStep(ctx, step)
		if err != nil {
			return rep, err
		}
		if err := W.WriteBatch(seq, b); err != nil {
			return rep, err
		}
		seq++
		rep.frames = seq
		for r, a := range rgs {
			if err := a.Do(step, b.Frames[r]); err != nil {
				return rep, err
			}
		}
		if err := trace.Add(b); err != nil {
			return rep, err
		}
	}
	if err := W.Close(); err != nil {
		return rep, err
	}
	logger.Info("Sorted trajectories written", zap.Int("frames", seq), zap.Strings("files", outNames(W)))

	if rgs != nil {
		if err := writeRadGyr(cfg.Analysis.File, rgs); err != nil {
			return rep, err
		}
	}
	if cfg.Plot.File != "" && trace.Len() > 0 {
		labels := R.Targets()
		if len(labels) != R.Size() {
			labels = nil
		} else if cfg.Target() == ensemble.ByTemperature {
			for i := range labels {
				labels[i] += " K"
			}
		}
		if err := trace.Save(cfg.Plot.Title, labels, cfg.Plot.File); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// newWriter creates the outputs. If the output format can't store some of
// the metadata of the ensemble, only the positions and the box are kept.
func newWriter(cfg *config.Config, hint traj.Hint, R *ensemble.Reader, nout int, logger *zap.Logger, m *metrics.Metrics) (*ensemble.Writer, error) {
	o := cfg.Output
	names := ensemble.MemberNames(o.Prefix, o.Ext, R.Size())
	info := R.Members()[0].Info()
	W, err := ensemble.NewWriter(names, o.Format, hint, info, nout, o.Args, logger, m)
	if err == nil || !errors.Is(err, traj.SetupFailure) {
		return W, err
	}
	reduced := coord.Info{Box: info.Box, BoxShape: info.BoxShape}
	logger.Warn("Output format can't store all the frame metadata, writing positions only",
		zap.Stringer("input", info), zap.Stringer("output", reduced), zap.Error(err))
	return ensemble.NewWriter(names, o.Format, hint, reduced, nout, o.Args, logger, m)
}

func outNames(W *ensemble.Writer) []string {
	var names []string
	for _, s := range W.Streams() {
		names = append(names, s.Name())
	}
	return names
}

func writeRadGyr(name string, rgs []*analysis.RadGyr) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	fmt.Fprint(f, "#step")
	for r := range rgs {
		fmt.Fprintf(f, " rg_%d max_%d", r, r)
	}
	fmt.Fprintln(f)
	for i, step := range rgs[0].Steps {
		fmt.Fprintf(f, "%d", step)
		for _, a := range rgs {
			fmt.Fprintf(f, " %.4f %.4f", a.Rg[i], a.Max[i])
		}
		fmt.Fprintln(f)
	}
	return f.Close()
}
