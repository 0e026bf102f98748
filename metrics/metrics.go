/*
 * metrics.go, part of remdio.
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

// Package metrics holds the Prometheus metrics for trajectory and ensemble
// processing. A nil *Metrics is valid and records nothing.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "remdio"

// Metrics holds all Prometheus metrics for trajectory I/O.
type Metrics struct {
	// Trajectory metrics
	FramesReadTotal    *prometheus.CounterVec
	FramesWrittenTotal *prometheus.CounterVec
	FrameReadDuration  *prometheus.HistogramVec
	StreamErrorsTotal  *prometheus.CounterVec

	// Ensemble metrics
	EnsembleStepsTotal      prometheus.Counter
	EnsembleCollisionsTotal prometheus.Counter
	EnsembleFailedSteps     prometheus.Counter
	EnsembleStepDuration    prometheus.Histogram
	EnsembleMembers         prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg means the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		FramesReadTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "traj",
			Name:      "frames_read_total",
			Help:      "Total number of frames read, per format",
		}, []string{"format"}),
		FramesWrittenTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "traj",
			Name:      "frames_written_total",
			Help:      "Total number of frames written, per format",
		}, []string{"format"}),
		FrameReadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "traj",
			Name:      "frame_read_duration_seconds",
			Help:      "Histogram of frame read durations, per format",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"format"}),
		StreamErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "traj",
			Name:      "errors_total",
			Help:      "Total number of trajectory errors, per kind",
		}, []string{"kind"}),

		EnsembleStepsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "steps_total",
			Help:      "Total number of ensemble steps read",
		}),
		EnsembleCollisionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "collisions_total",
			Help:      "Total number of steps with colliding replica coordinates",
		}),
		EnsembleFailedSteps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "failed_steps_total",
			Help:      "Total number of ensemble steps that failed to read",
		}),
		EnsembleStepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "step_duration_seconds",
			Help:      "Histogram of ensemble step durations",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
		EnsembleMembers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ensemble",
			Name:      "members",
			Help:      "Number of member trajectories in the ensemble",
		}),
	}
}

// FrameRead records a frame read in the given format.
func (m *Metrics) FrameRead(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.FramesReadTotal.WithLabelValues(format).Inc()
	m.FrameReadDuration.WithLabelValues(format).Observe(d.Seconds())
}

// FrameWritten records a frame written in the given format.
func (m *Metrics) FrameWritten(format string) {
	if m == nil {
		return
	}
	m.FramesWrittenTotal.WithLabelValues(format).Inc()
}

// Error records a trajectory error of the given kind.
func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.StreamErrorsTotal.WithLabelValues(kind).Inc()
}

// Step records an ensemble step. collision says whether the replica
// coordinates of the step collided.
func (m *Metrics) Step(d time.Duration, collision bool) {
	if m == nil {
		return
	}
	m.EnsembleStepsTotal.Inc()
	m.EnsembleStepDuration.Observe(d.Seconds())
	if collision {
		m.EnsembleCollisionsTotal.Inc()
	}
}

// StepFailed records an ensemble step that could not be read.
func (m *Metrics) StepFailed() {
	if m == nil {
		return
	}
	m.EnsembleFailedSteps.Inc()
}

// Members sets the number of ensemble members.
func (m *Metrics) Members(n int) {
	if m == nil {
		return
	}
	m.EnsembleMembers.Set(float64(n))
}

// WriteText writes all the metrics gathered by g to w in the Prometheus
// text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
