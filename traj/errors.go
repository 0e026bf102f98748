/*
 * errors.go, part of remdio.
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

package traj

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies trajectory and ensemble errors.
type Kind int

const (
	FormatUnrecognized Kind = iota + 1
	StructuralMismatch
	SetupFailure
	IOFailure
	SequenceViolation
	EnsembleSizeMismatch
	EnsembleCoordinateCollision
)

var kindNames = map[Kind]string{
	FormatUnrecognized:          "format unrecognized",
	StructuralMismatch:          "structural mismatch",
	SetupFailure:                "setup failure",
	IOFailure:                   "I/O failure",
	SequenceViolation:           "sequence violation",
	EnsembleSizeMismatch:        "ensemble size mismatch",
	EnsembleCoordinateCollision: "ensemble coordinate collision",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error makes a Kind usable as a target for errors.Is.
func (k Kind) Error() string { return k.String() }

// Error is the error type for all trajectory formats and for the ensemble
// reader. It can be decorated with the names of the functions it passes
// through on its way up.
type Error struct {
	kind     Kind
	message  string
	filename string //the file that has problems, or empty string if none.
	format   string
	deco     []string
	cause    error
	last     bool //normal end of the trajectory
}

// NewError returns an error of the given kind for the file filename in
// format. caller is the first decoration.
func NewError(kind Kind, format, filename, caller, message string) *Error {
	return &Error{kind: kind, message: message, filename: filename, format: format, deco: []string{caller}}
}

// Wrap is NewError with cause as the message and as the wrapped error.
func Wrap(kind Kind, format, filename, caller string, cause error) *Error {
	E := NewError(kind, format, filename, caller, cause.Error())
	E.cause = cause
	return E
}

// LastFrameError returns the IOFailure signaling that frame i is past the
// end of the trajectory.
func LastFrameError(format, filename, caller string, i int) *Error {
	E := NewError(IOFailure, format, filename, caller, fmt.Sprintf("no frame %d: end of trajectory", i))
	E.last = true
	return E
}

func (err *Error) Error() string {
	var b strings.Builder
	if err.format != "" {
		b.WriteString(err.format)
		b.WriteString(" ")
	}
	if err.filename != "" {
		fmt.Fprintf(&b, "file %s ", err.filename)
	}
	fmt.Fprintf(&b, "%s: %s", err.kind, err.message)
	return b.String()
}

// Kind returns the class of the error.
func (err *Error) Kind() Kind { return err.kind }

// FileName returns the file associated to the error.
func (err *Error) FileName() string { return err.filename }

// Format returns the format of the file associated to the error.
func (err *Error) Format() string { return err.format }

// Critical returns false for conditions processing can continue after: a
// replica coordinate collision and the normal end of a trajectory.
func (err *Error) Critical() bool {
	return !err.last && err.kind != EnsembleCoordinateCollision
}

// Decorate adds deco to the trail of callers and returns the trail.
// An empty deco just returns the current trail.
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *Error) Unwrap() error { return err.cause }

// Is reports whether target is the Kind of err.
func (err *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == err.kind
}

// Decorate adds caller to err if it is an *Error, and returns err.
func Decorate(err error, caller string) error {
	var E *Error
	if errors.As(err, &E) {
		E.Decorate(caller)
	}
	return err
}

// LastFrame reports whether err signals the normal end of a trajectory.
func LastFrame(err error) bool {
	var E *Error
	return errors.As(err, &E) && E.last
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var E *Error
	if errors.As(err, &E) {
		return E.kind
	}
	return 0
}
