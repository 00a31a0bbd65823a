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

package graph

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
)

// fieldKey identifies one wire field name on one live struct type, the
// unit the Generated method memoizes (spec.md §9's "Dynamically
// generated per-type writers/readers" design note, re-expressed for a
// reflection-based target as a resolved-path cache rather than emitted
// code).
type fieldKey struct {
	rt   reflect.Type
	name string
}

// compiledFieldPaths caches, per (struct type, wire field name), the
// reflect.Value.FieldByIndex path that reaches it. It is built once, the
// first time SerializationMethod/DeserializationMethod == Generated sees
// that pair, and reused by every later value of the same type, so a field
// is never re-resolved through fieldGoName's tag scan more than once per
// program run.
var compiledFieldPaths = xsync.NewMapOf[fieldKey, []int]()

// fieldIndexPath mirrors fieldGoName's vom-tag-aware lookup but returns a
// FieldByIndex path instead of a field name.
func fieldIndexPath(rt reflect.Type, wireName string) []int {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if tagVal := f.Tag.Get(tagKey); tagVal != "" {
			if name := splitTagName(tagVal); name == wireName {
				return []int{i}
			}
		}
		if f.Name == wireName {
			return []int{i}
		}
	}
	// fieldGoName falls back to wireName itself, which FieldByName then
	// finds among promoted (embedded base) fields; do the same here.
	if f, ok := rt.FieldByName(wireName); ok {
		return f.Index
	}
	return nil
}

// resolveFieldPath is the Generated-method field locator: a cache hit
// walks straight to the field, a cache miss resolves and memoizes it
// once.
func resolveFieldPath(rt reflect.Type, wireName string) []int {
	k := fieldKey{rt: rt, name: wireName}
	if idx, ok := compiledFieldPaths.Load(k); ok {
		return idx
	}
	idx := fieldIndexPath(rt, wireName)
	idx, _ = compiledFieldPaths.LoadOrStore(k, idx)
	return idx
}
