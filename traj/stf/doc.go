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
Package stf implements the simple trajectory format, a compressed text
format meant to be trivial to read and write from any language.

An STF file is compressed with Z-standard, or with gzip if the last letter
of its name is 'z'. It may only contain ASCII characters.

The file starts with a header of key=value lines, ending with a line that
starts with "**", followed by one or more spaces and the number of atoms
per frame. The header must contain the key "prec", an integer between 1
and 9. It may contain "vel=1" if the frames carry velocities, "temp=1" if
they carry temperatures and "ndims=N" if they carry N replica indices.
Other keys are kept but not interpreted.

After the header come the frames. A frame has one line per atom, with the
x, y and z coordinates in Angstrom multiplied by 10^prec and rounded to an
integer. If the file has velocities, each line has three more integers,
the velocities scaled the same way.

Each frame ends with a line starting with the character "*", optionally
followed by nine numbers giving the box vectors in Angstrom, "t=" and the
temperature, and "i=" and the comma-separated replica indices, all
separated by spaces. The "**" sequence only ends the header, and can't
appear anywhere else.

Several compressed streams may follow each other in the same file. This is
how frames are appended to an existing trajectory.
*/
package stf
