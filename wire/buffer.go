// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"bufio"
	"io"
)

// blockSize is the padding boundary open-stream operations are aligned to
// when buffering is enabled (spec.md §4.1: "a subsequent open-stream
// operation starts at a block boundary").
const blockSize = 64

// BufferedWriter wraps w in a fixed-block buffer. Close flushes any
// buffered bytes and pads the underlying stream out to the next blockSize
// boundary with zero bytes, so a later open-stream operation against the
// same underlying stream can resume buffering from a clean boundary.
type BufferedWriter struct {
	buf     *bufio.Writer
	written int
	under   io.Writer
}

// NewBufferedWriter returns a Writer that block-buffers writes to w.
func NewBufferedWriter(w io.Writer) *BufferedWriter {
	return &BufferedWriter{buf: bufio.NewWriterSize(w, blockSize), under: w}
}

func (b *BufferedWriter) Write(p []byte) (int, error) {
	n, err := b.buf.Write(p)
	b.written += n
	return n, err
}

// Close flushes the buffer and pads to the next block boundary.
func (b *BufferedWriter) Close() error {
	if err := b.buf.Flush(); err != nil {
		return err
	}
	if rem := b.written % blockSize; rem != 0 {
		pad := make([]byte, blockSize-rem)
		if _, err := b.under.Write(pad); err != nil {
			return err
		}
		b.written += len(pad)
	}
	return nil
}

// BufferedReader mirrors BufferedWriter on the read side: it tracks bytes
// consumed so a caller can skip forward to the next block boundary between
// open-stream operations.
type BufferedReader struct {
	buf   *bufio.Reader
	read  int
	under io.Reader
}

// NewBufferedReader returns a Reader that block-buffers reads from r.
func NewBufferedReader(r io.Reader) *BufferedReader {
	return &BufferedReader{buf: bufio.NewReaderSize(r, blockSize), under: r}
}

func (b *BufferedReader) Read(p []byte) (int, error) {
	n, err := b.buf.Read(p)
	b.read += n
	return n, err
}

// AlignToBoundary discards any bytes remaining before the next block
// boundary, restoring the symmetry the matching BufferedWriter.Close
// established when it padded.
func (b *BufferedReader) AlignToBoundary() error {
	if rem := b.read % blockSize; rem != 0 {
		skip := blockSize - rem
		if _, err := io.CopyN(io.Discard, b, int64(skip)); err != nil {
			return err
		}
	}
	return nil
}
