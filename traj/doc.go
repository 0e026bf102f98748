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
Package traj defines the contract that every trajectory format implements (IO),
the structural hint used to validate files against a topology, and the error
type shared by all formats.

The formats themselves live in the subpackages (crd, pdb, dcd, stf, xplor).
Format detection and the lifecycle of an open trajectory are handled by the
trajfile package.
*/
package traj
