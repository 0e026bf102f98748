/*
 * metrics_test.go, part of remdio.
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

package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(Te *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.FrameRead("dcd", time.Millisecond)
	m.FrameRead("dcd", time.Millisecond)
	m.FrameWritten("crd")
	m.Step(time.Millisecond, false)
	m.Step(time.Millisecond, true)
	m.StepFailed()
	m.Members(4)
	m.Error("IOFailure")
	assert.Equal(Te, 2.0, testutil.ToFloat64(m.FramesReadTotal.WithLabelValues("dcd")))
	assert.Equal(Te, 1.0, testutil.ToFloat64(m.FramesWrittenTotal.WithLabelValues("crd")))
	assert.Equal(Te, 2.0, testutil.ToFloat64(m.EnsembleStepsTotal))
	assert.Equal(Te, 1.0, testutil.ToFloat64(m.EnsembleCollisionsTotal))
	assert.Equal(Te, 4.0, testutil.ToFloat64(m.EnsembleMembers))

	var b bytes.Buffer
	require.NoError(Te, WriteText(&b, reg))
	assert.Contains(Te, b.String(), `remdio_traj_frames_read_total{format="dcd"} 2`)
	assert.Contains(Te, b.String(), "remdio_ensemble_failed_steps_total 1")
}

func TestNilMetrics(Te *testing.T) {
	var m *Metrics
	assert.NotPanics(Te, func() {
		m.FrameRead("pdb", time.Second)
		m.FrameWritten("pdb")
		m.Step(time.Second, true)
		m.StepFailed()
		m.Members(2)
		m.Error("x")
	})
}
