/*
 * runner.go, part of remdio.
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
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner runs one function per ensemble member and returns when all of
// them have finished. It is the barrier of an ensemble step.
type Runner interface {
	Run(ctx context.Context, n int, f func(ctx context.Context, member int) error) error
}

// Parallel runs each member in its own goroutine. The first error cancels
// the context passed to the others.
type Parallel struct{}

func (Parallel) Run(ctx context.Context, n int, f func(ctx context.Context, member int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return f(gctx, i)
		})
	}
	return g.Wait()
}

// Serial runs the members one after the other in the calling goroutine,
// stopping at the first error.
type Serial struct{}

func (Serial) Run(ctx context.Context, n int, f func(ctx context.Context, member int) error) error {
	for i := 0; i < n; i++ {
		if err := f(ctx, i); err != nil {
			return err
		}
	}
	return nil
}
