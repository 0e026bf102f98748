/*
 * replica.go, part of remdio.
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

// Package replica maps the exchange coordinates of replica exchange
// simulations, temperatures or tuples of indices, to the trajectory that
// carries each replica at a given step.
package replica

import (
	"cmp"
	"fmt"
	"slices"
)

// Map is a bijection, rebuilt at every step, from logical positions to
// physical slots. Logical position r is the r-th smallest key in the target
// set. The target set is taken from the first step whose keys are all
// different, unless it was given with SetTargets.
type Map[K any] struct {
	cmp     func(a, b K) int
	clone   func(K) K
	targets []K
	slots   []int
	byKey   []int //physical slots sorted by key, scratch space
}

// New returns an empty map that orders keys with compare. clone copies a
// key so the map doesn't keep references to caller memory; it may be nil
// for value types.
func New[K any](compare func(a, b K) int, clone func(K) K) *Map[K] {
	if clone == nil {
		clone = func(k K) K { return k }
	}
	return &Map[K]{cmp: compare, clone: clone}
}

// Temperatures returns a map for temperature exchange. Temperatures must
// match exactly; they are written and read back by the same program.
func Temperatures() *Map[float64] {
	return New(cmp.Compare[float64], nil)
}

// Indices returns a map for exchange over tuples of indices, ordered
// lexicographically.
func Indices() *Map[[]int] {
	return New(slices.Compare[[]int], slices.Clone[[]int])
}

// SetTargets sets the target set. keys must all be different.
func (M *Map[K]) SetTargets(keys []K) error {
	t := make([]K, len(keys))
	for i, k := range keys {
		t[i] = M.clone(k)
	}
	slices.SortFunc(t, M.cmp)
	for i := 1; i < len(t); i++ {
		if M.cmp(t[i-1], t[i]) == 0 {
			return fmt.Errorf("repeated exchange coordinate %v in target set", t[i])
		}
	}
	M.targets = t
	return nil
}

// Targets returns the target set in logical order, or nil if it has not
// been established yet.
func (M *Map[K]) Targets() []K { return M.targets }

// Len returns the size of the target set.
func (M *Map[K]) Len() int { return len(M.targets) }

// Resolve builds the map for one step. keys[p] is the exchange coordinate
// reported by physical slot p. On success, slots[r] is the physical slot
// that carries logical position r, and Resolve returns true. If two slots
// report the same key, or a key is not in the target set, the step has no
// bijection: slots is left in physical order and Resolve returns false.
// slots must have the same length as keys.
func (M *Map[K]) Resolve(keys []K, slots []int) bool {
	if len(slots) != len(keys) {
		panic(fmt.Sprintf("replica: %d slots for %d keys", len(slots), len(keys)))
	}
	for p := range slots {
		slots[p] = p
	}
	if M.targets == nil {
		if err := M.SetTargets(keys); err != nil {
			return false
		}
	}
	if len(keys) != len(M.targets) {
		return false
	}
	M.byKey = append(M.byKey[:0], slots...)
	slices.SortStableFunc(M.byKey, func(a, b int) int { return M.cmp(keys[a], keys[b]) })
	for r, p := range M.byKey {
		if M.cmp(keys[p], M.targets[r]) != 0 {
			return false
		}
	}
	copy(slots, M.byKey)
	M.slots = append(M.slots[:0], slots...)
	return true
}

// Slot returns the physical slot of logical position r in the last step
// resolved successfully.
func (M *Map[K]) Slot(r int) int { return M.slots[r] }

// Position returns the logical position of the target key k, or -1 if k is
// not in the target set.
func (M *Map[K]) Position(k K) int {
	r, ok := slices.BinarySearchFunc(M.targets, k, M.cmp)
	if !ok {
		return -1
	}
	return r
}
