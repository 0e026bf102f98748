/*
 * doc.go, part of remdio.
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

/*
Package crd reads and writes Amber ASCII coordinate trajectories.

The file starts with a title line. Each frame is, in this order:

	an optional replica exchange line, "REMD" followed by the replica index,
	the coordinate index, the step and the temperature, and, for multi-dimensional
	runs, one index per exchange dimension:  REMD  %8d%8d%8d%8.2f[%4d...]

	3N coordinates written as %8.3f, ten per line

	an optional box line with the three box lengths, or the lengths and the
	three angles for non-orthogonal boxes, as %8.3f

All frames in a file have the same layout, so for uncompressed files the number
of frames follows from the file size and any frame can be read directly.
Gzip-compressed files (.gz) are read sequentially.

The format stores no atom count and no velocities.
*/
package crd
