/*
 * masses.go, part of remdio.
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

package analysis

import (
	"fmt"
	"strings"
)

// Masses of common bio-elements.
var symbolMass = map[string]float64{
	"H":  1.0,
	"C":  12.01,
	"O":  16.00,
	"N":  14.01,
	"P":  30.97,
	"S":  32.06,
	"Se": 78.96,
	"K":  39.1,
	"Ca": 40.08,
	"Mg": 24.30,
	"Cl": 35.45,
	"Na": 22.99,
	"Cu": 63.55,
	"Zn": 65.38,
	"Co": 58.93,
	"Fe": 55.84,
	"Mn": 54.94,
	"Si": 28.08,
	"F":  18.998,
	"Br": 79.904,
	"I":  126.90,
}

// Symbol guesses the element of an atom from its PDB-style name.
// Names starting with a digit, as in 1HB, are hydrogens. A two-letter
// ion name (CL, NA, ZN...) gives the ion, so CA is a carbon, never calcium.
func Symbol(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("empty atom name")
	}
	if name[0] >= '0' && name[0] <= '9' || len(name) == 4 && name[1] == 'H' {
		return "H", nil
	}
	switch name {
	case "CU", "CO", "CL", "NA", "SE", "ZN", "MG", "FE", "MN", "BR", "K":
		return string(name[0]) + strings.ToLower(name[1:]), nil
	}
	switch name[0] {
	case 'H', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		return name[:1], nil
	}
	return "", fmt.Errorf("can't guess the element of atom '%s'", name)
}

// Masses returns the mass of each atom in names, guessing their elements
// with Symbol.
func Masses(names []string) ([]float64, error) {
	m := make([]float64, len(names))
	for i, n := range names {
		s, err := Symbol(n)
		if err != nil {
			return nil, fmt.Errorf("atom %d: %w", i, err)
		}
		m[i] = symbolMass[s]
	}
	return m, nil
}
