/*
 * main_test.go, part of remdio.
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

package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gochem/remdio/config"
	"github.com/gochem/remdio/coord"
	"github.com/gochem/remdio/ensemble"
	"github.com/gochem/remdio/metrics"
	"github.com/gochem/remdio/traj"
	"github.com/gochem/remdio/trajfile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var temps = [][]float64{
	{300, 310, 320},
	{310, 300, 320},
	{320, 300, 310},
	{320, 300, 300},
}

func members(Te *testing.T, dir string) []string {
	info := coord.Info{Temperature: true}
	names := ensemble.MemberNames(filepath.Join(dir, "rem"), "crd", 3)
	for p, name := range names {
		S, err := trajfile.Create(name, "", traj.Hint{NAtoms: 2}, info, len(temps), false, nil, nil, nil)
		require.NoError(Te, err)
		for s := range temps {
			F := coord.NewFrame(2, info)
			F.X.SetVec(1, float64(p+1), 0, 0)
			F.Temp = temps[s][p]
			require.NoError(Te, S.WriteFrame(s, F))
		}
		require.NoError(Te, S.Close())
	}
	return names
}

func job(dir string, files []string, ext string) *config.Config {
	return &config.Config{
		Ensemble: config.EnsembleConfig{Files: files, Atoms: 2, Names: []string{"C", "C"}, Target: "temperature", Runner: "serial", Stop: -1, Offset: 1},
		Output:   config.OutputConfig{Prefix: filepath.Join(dir, "sorted"), Ext: ext},
		Analysis: config.AnalysisConfig{RadGyr: true, Mass: true, File: filepath.Join(dir, "rg.dat")},
		Plot:     config.PlotConfig{File: filepath.Join(dir, "walk.png"), Title: "walk"},
		Logging:  config.LoggingConfig{Level: "debug", Format: "console"},
	}
}

func TestRun(Te *testing.T) {
	dir := Te.TempDir()
	cfg := job(dir, members(Te, dir), "stf")
	require.NoError(Te, cfg.Validate())
	reg := prometheus.NewRegistry()
	rep, err := run(context.Background(), cfg, zaptest.NewLogger(Te), metrics.New(reg))
	require.NoError(Te, err)
	assert.Equal(Te, 4, rep.frames)
	assert.ErrorIs(Te, rep.fault, traj.EnsembleCoordinateCollision)

	S, err := trajfile.OpenRead(filepath.Join(dir, "sorted.1.stf"), "", traj.Hint{NAtoms: 2}, nil, nil)
	require.NoError(Te, err)
	defer S.Close()
	want := []float64{310, 310, 310, 300}
	for i, t := range want {
		F, err := S.ReadFrame(i)
		require.NoError(Te, err)
		assert.Equal(Te, t, F.Temp, i)
	}

	f, err := os.Open(cfg.Analysis.File)
	require.NoError(Te, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(Te, lines, 5)
	//two carbons at distance p+1: rg is half of it
	assert.Equal(Te, "0 0.5000 0.5000 1.0000 1.0000 1.5000 1.5000", lines[1])
	assert.Equal(Te, "1 1.0000 1.0000 0.5000 0.5000 1.5000 1.5000", lines[2])

	_, err = os.Stat(cfg.Plot.File)
	assert.NoError(Te, err)
	var sb strings.Builder
	require.NoError(Te, metrics.WriteText(&sb, reg))
	assert.Contains(Te, sb.String(), "collisions")
}

func TestRunPositionsOnly(Te *testing.T) {
	dir := Te.TempDir()
	cfg := job(dir, members(Te, dir), "dcd")
	cfg.Analysis.RadGyr = false
	cfg.Plot.File = ""
	cfg.Ensemble.Start, cfg.Ensemble.Stop, cfg.Ensemble.Offset = 1, 2, 1
	rep, err := run(context.Background(), cfg, zaptest.NewLogger(Te), nil)
	require.NoError(Te, err)
	assert.Equal(Te, 2, rep.frames)
	assert.NoError(Te, rep.fault)
	S, err := trajfile.OpenRead(filepath.Join(dir, "sorted.0.dcd"), "", traj.Hint{NAtoms: 2}, nil, nil)
	require.NoError(Te, err)
	defer S.Close()
	assert.Equal(Te, 2, S.Len())
	n, err := S.Count()
	require.NoError(Te, err)
	assert.Equal(Te, 2, n)
	assert.False(Te, S.Info().Temperature)
}

func TestRunCanceled(Te *testing.T) {
	dir := Te.TempDir()
	cfg := job(dir, members(Te, dir), "stf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run(ctx, cfg, zaptest.NewLogger(Te), nil)
	assert.ErrorIs(Te, err, context.Canceled)
}
