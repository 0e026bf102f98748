/*
 * source.go, part of remdio.
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
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the compression of a trajectory file.
type Compression int

const (
	Plain Compression = iota
	Gzip
	Zstd
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff returns the compression given the first bytes of a file.
func Sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	}
	return Plain
}

// CompressionFromName guesses the compression for a new file from its
// extension: .gz for gzip, .zst for zstd, anything else is plain.
func CompressionFromName(name string) Compression {
	l := strings.ToLower(name)
	switch {
	case strings.HasSuffix(l, ".gz"):
		return Gzip
	case strings.HasSuffix(l, ".zst"):
		return Zstd
	}
	return Plain
}

// zstdCloser adapts *zstd.Decoder, whose Close has no return value,
// to io.ReadCloser.
type zstdCloser struct {
	*zstd.Decoder
}

func (z zstdCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// Source is a buffered reader over a possibly compressed file.
type Source struct {
	*bufio.Reader
	File        *os.File
	Compression Compression
	dec         io.ReadCloser
}

// OpenSource opens name and returns a Source that decompresses it if the
// file starts with a gzip or zstd magic number.
func OpenSource(name string) (*Source, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	raw := bufio.NewReader(f)
	head, _ := raw.Peek(4)
	S := &Source{File: f, Compression: Sniff(head)}
	switch S.Compression {
	case Gzip:
		S.dec, err = gzip.NewReader(raw)
	case Zstd:
		var d *zstd.Decoder
		d, err = zstd.NewReader(raw)
		if err == nil {
			S.dec = zstdCloser{d}
		}
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	if S.dec != nil {
		S.Reader = bufio.NewReader(S.dec)
	} else {
		S.Reader = raw
	}
	return S, nil
}

// Close closes the decompressor, if any, and the file.
func (S *Source) Close() error {
	var err error
	if S.dec != nil {
		err = S.dec.Close()
	}
	return errors.Join(err, S.File.Close())
}

// Head returns up to n bytes from the start of name, decompressed if needed.
// It is meant for format identification, and does not keep the file open.
func Head(name string, n int) ([]byte, error) {
	S, err := OpenSource(name)
	if err != nil {
		return nil, err
	}
	defer S.Close()
	buf := make([]byte, n)
	r, err := io.ReadFull(S, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:r], nil
}

// HeadLines returns up to n lines from the start of name, without the line
// terminators.
func HeadLines(name string, n int) ([]string, error) {
	S, err := OpenSource(name)
	if err != nil {
		return nil, err
	}
	defer S.Close()
	lines := make([]string, 0, n)
	for len(lines) < n {
		l, err := S.ReadString('\n')
		if l != "" {
			lines = append(lines, strings.TrimRight(l, "\r\n"))
		}
		if err != nil {
			break
		}
	}
	return lines, nil
}

// NewCompressor wraps w so data written to it is compressed with c. For
// Plain, w is returned with a Close that does nothing.
func NewCompressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
