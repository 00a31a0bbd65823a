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
	"bytes"
	"reflect"

	"github.com/binarygraph/vomgraph/graph"
)

// Clone deep-copies v by serializing it and decoding the result back into
// a freshly allocated value of v's own type (spec.md §1 lists this as an
// external collaborator built atop the core). It re-serializes the clone
// and compares the two byte slices, surfacing graph.InvariantViolation if
// they differ; the clone would otherwise look successful while silently
// failing spec.md §8 property 4 (round-tripping an object and
// re-serializing it yields byte-identical output).
func Clone(v any, s Settings) (any, error) {
	data, err := Marshal(v, s)
	if err != nil {
		return nil, err
	}

	rt := reflect.TypeOf(v)
	ptr := reflect.New(rt)
	if err := Unmarshal(data, ptr.Interface(), s); err != nil {
		return nil, err
	}
	cloned := ptr.Elem().Interface()

	verify, err := Marshal(cloned, s)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data, verify) {
		return nil, graph.InvariantViolation{Reason: "Clone: re-serializing the decoded value did not reproduce the original bytes"}
	}
	return cloned, nil
}
