/*
 * remdplot.go, part of remdio.
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

// Package remdplot plots the walk of the logical replicas of an ensemble
// through the member trajectories.
package remdplot

import (
	"fmt"
	"image/color"
	"math"

	"github.com/gochem/remdio/ensemble"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Trace records, for each step, which member carried each logical
// replica.
type Trace struct {
	walks []plotter.XYs
	bad   plotter.XYs
}

// NewTrace returns a trace for n logical replicas.
func NewTrace(n int) *Trace {
	return &Trace{walks: make([]plotter.XYs, n)}
}

// Add records the slots of b. Unreliable batches are marked.
func (T *Trace) Add(b *ensemble.Batch) error {
	if len(b.Slots) != len(T.walks) {
		return fmt.Errorf("remdplot: batch with %d slots for a trace of %d replicas", len(b.Slots), len(T.walks))
	}
	x := float64(b.Step)
	for r, p := range b.Slots {
		T.walks[r] = append(T.walks[r], plotter.XY{X: x, Y: float64(p)})
	}
	if !b.Reliable {
		for p := range b.Slots {
			T.bad = append(T.bad, plotter.XY{X: x, Y: float64(p)})
		}
	}
	return nil
}

// Len returns the number of steps recorded.
func (T *Trace) Len() int {
	if len(T.walks) == 0 {
		return 0
	}
	return len(T.walks[0])
}

// Walk returns the member that carried replica r, for each recorded step.
func (T *Trace) Walk(r int) []int {
	w := make([]int, len(T.walks[r]))
	for i, xy := range T.walks[r] {
		w[i] = int(xy.Y)
	}
	return w
}

// Plot builds the replica walk plot. labels, if not nil, names each
// replica in the legend.
func (T *Trace) Plot(title string, labels []string) (*plot.Plot, error) {
	if T.Len() == 0 {
		return nil, fmt.Errorf("remdplot: empty trace")
	}
	if labels != nil && len(labels) != len(T.walks) {
		return nil, fmt.Errorf("remdplot: %d labels for %d replicas", len(labels), len(T.walks))
	}
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Member"
	p.Y.Min = -0.5
	p.Y.Max = float64(len(T.walks)) - 0.5
	p.Add(plotter.NewGrid())
	for r, w := range T.walks {
		l, err := plotter.NewLine(w)
		if err != nil {
			return nil, err
		}
		l.LineStyle.Color = colors(r, len(T.walks))
		l.LineStyle.Width = vg.Points(1.5)
		p.Add(l)
		name := fmt.Sprintf("replica %d", r)
		if labels != nil {
			name = labels[r]
		}
		p.Legend.Add(name, l)
	}
	if len(T.bad) > 0 {
		s, err := plotter.NewScatter(T.bad)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Color = color.Black
		p.Add(s)
		p.Legend.Add("unreliable", s)
	}
	p.Legend.Top = true
	return p, nil
}

// Save writes the plot to filename. The image format is taken from the
// extension.
func (T *Trace) Save(title string, labels []string, filename string) error {
	p, err := T.Plot(title, labels)
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, filename)
}

// colors spreads n replicas over the hue circle, skipping the band around
// yellow, which is hard to see on white.
func colors(key, n int) color.Color {
	norm := 260.0 / float64(n)
	h := float64(key)*norm + 20.0
	if h < 55 {
		h -= 20.0
	} else {
		h += 20.0
	}
	r, g, b := hsv2rgb(h, 1, 1)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// hsv2rgb takes hue (0-360), saturation and value (0-1) and returns the
// 0-255 RGB components.
func hsv2rgb(h, s, v float64) (uint8, uint8, uint8) {
	if s == 0.0 {
		c := uint8(255 * v)
		return c, c, c
	}
	h /= 60
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}
