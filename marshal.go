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
	"fmt"
	"reflect"

	"github.com/binarygraph/vomgraph/graph"
)

// Settings configures a Marshal/Unmarshal call or an open-stream session.
// It is the same type graph.Writer/graph.Reader consume directly; aliased
// here so callers need only import the root package for the common case.
type Settings = graph.Settings

// Marshal serializes v and everything reachable from it into a single
// self-contained byte slice (spec.md §6).
func Marshal(v any, s Settings) ([]byte, error) {
	if err := installErrorSurrogate(&s); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := graph.NewWriter(&buf, s)
	if err := w.Serialize(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v, which must be a non-nil pointer to a type
// assignable from the decoded root value (spec.md §6).
func Unmarshal(data []byte, v any, s Settings) error {
	if err := installErrorSurrogate(&s); err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("vomgraph: Unmarshal destination must be a non-nil pointer, got %T", v)
	}

	r := graph.NewReader(bytes.NewReader(data), s)
	got, err := r.Deserialize()
	if err != nil {
		return err
	}
	target := rv.Elem()
	if got == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	gv := reflect.ValueOf(got)
	if !gv.Type().AssignableTo(target.Type()) {
		return fmt.Errorf("vomgraph: decoded %s is not assignable to %s", gv.Type(), target.Type())
	}
	target.Set(gv)
	return nil
}
