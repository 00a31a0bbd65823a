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

package vomgraph

import (
	"io"

	"github.com/binarygraph/vomgraph/graph"
)

// StreamWriter serializes many root values onto one underlying io.Writer,
// sharing identity and type-stamp tables across calls per the
// ReferencePreservation policy in Settings (spec.md §6 "Open stream
// session").
type StreamWriter struct {
	w *graph.Writer
}

// NewStreamWriter opens a multi-value write session over w.
func NewStreamWriter(w io.Writer, s Settings) (*StreamWriter, error) {
	if err := installErrorSurrogate(&s); err != nil {
		return nil, err
	}
	return &StreamWriter{w: graph.NewWriter(w, s)}, nil
}

// Write serializes one root value and everything newly reachable from it.
func (sw *StreamWriter) Write(v any) error {
	return sw.w.Serialize(v)
}

// Close reports the first error encountered. It writes nothing itself:
// with Settings.UseBuffering, each Write has already flushed and padded
// its own output.
func (sw *StreamWriter) Close() error {
	return sw.w.Error()
}

// StreamReader decodes many root values from one underlying io.Reader,
// mirroring StreamWriter.
type StreamReader struct {
	r *graph.Reader
}

// NewStreamReader opens a multi-value read session over r.
func NewStreamReader(r io.Reader, s Settings) (*StreamReader, error) {
	if err := installErrorSurrogate(&s); err != nil {
		return nil, err
	}
	return &StreamReader{r: graph.NewReader(r, s)}, nil
}

// Read decodes the next root value from the stream.
func (sr *StreamReader) Read() (any, error) {
	return sr.r.Deserialize()
}
