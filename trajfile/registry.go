/*
 * registry.go, part of remdio.
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

// Package trajfile opens trajectory files of any supported format and
// drives them through their lifecycle: setup, open, read or write, close.
package trajfile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gochem/remdio/traj"
	"github.com/gochem/remdio/traj/crd"
	"github.com/gochem/remdio/traj/dcd"
	"github.com/gochem/remdio/traj/pdb"
	"github.com/gochem/remdio/traj/stf"
	"github.com/gochem/remdio/traj/xplor"
)

// Formats lists the supported formats in the order Detect tries them.
var Formats = []string{"dcd", "stf", "xplor", "pdb", "crd"}

// New returns an unconfigured backend for the named format.
func New(format string) (traj.IO, error) {
	switch strings.ToLower(format) {
	case "dcd":
		return dcd.New(), nil
	case "stf":
		return stf.New(), nil
	case "xplor":
		return xplor.New(), nil
	case "pdb":
		return pdb.New(), nil
	case "crd", "mdcrd":
		return crd.New(), nil
	}
	return nil, traj.NewError(traj.FormatUnrecognized, format, "", "New", "no such trajectory format")
}

// Detect checks name with each format in the order given by Formats and
// returns an unconfigured backend for the first one that recognizes it.
// The checks leave no file open.
func Detect(name string) (traj.IO, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, traj.Wrap(traj.SetupFailure, "", name, "Detect", err)
	}
	for _, f := range Formats {
		b, _ := New(f)
		if b.ID(name) {
			return b, nil
		}
	}
	return nil, traj.NewError(traj.FormatUnrecognized, "", name, "Detect", "no known trajectory format matches the file")
}

// extensions maps file extensions to formats, for files to be written.
var extensions = map[string]string{
	".dcd":   "dcd",
	".stf":   "stf",
	".stz":   "stf",
	".xplor": "xplor",
	".map":   "xplor",
	".pdb":   "pdb",
	".ent":   "pdb",
	".crd":   "crd",
	".mdcrd": "crd",
	".trj":   "crd",
	".x":     "crd",
}

// FormatFromName guesses the format of name from its extension, ignoring
// a .gz or .zst suffix. It returns "" if the extension is not known.
func FormatFromName(name string) string {
	l := strings.ToLower(name)
	l = strings.TrimSuffix(strings.TrimSuffix(l, ".gz"), ".zst")
	return extensions[filepath.Ext(l)]
}

// ForWrite returns an unconfigured backend to write name. If format is
// empty, it is guessed from the extension of name.
func ForWrite(format, name string) (traj.IO, error) {
	if format == "" {
		format = FormatFromName(name)
		if format == "" {
			return nil, traj.NewError(traj.FormatUnrecognized, "", name, "ForWrite", "can't guess the format from the file name")
		}
	}
	b, err := New(format)
	if err != nil {
		return nil, traj.Decorate(err, "ForWrite")
	}
	return b, nil
}
