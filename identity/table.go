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

// Package identity implements the identity table: dense integer id
// assignment for each distinct object encountered during a traversal, with
// optional weak-reference discipline across open-stream operations, per
// spec.md §3/§4.5. Grounded on framework/binary/cyclic/doc.go's wire model
// (a uint32 key per object instance, 0 reserved for nil, subsequent
// mentions of the same object re-emitting only the key).
package identity

import "fmt"

// NullID is the reserved sentinel id denoting absence/nil (spec.md
// invariant 2).
const NullID uint64 = 0

// Preservation selects how identities persist across operations on an
// open stream (spec.md §6 ReferencePreservation).
type Preservation int

const (
	DoNotPreserve Preservation = iota
	UseWeakReference
	Preserve
)

// WriteTable assigns and remembers ids for the write side of a traversal.
// Ids start at 1 (0 is NullID) and are assigned in first-encounter order.
type WriteTable struct {
	preservation Preservation
	byObject     map[any]uint64
	next         uint64
	weak         map[uint64]struct{} // ids eligible for drop between operations, when UseWeakReference.
}

// NewWriteTable creates a write-side identity table.
func NewWriteTable(p Preservation) *WriteTable {
	return &WriteTable{
		preservation: p,
		byObject:     make(map[any]uint64),
		next:         1,
		weak:         make(map[uint64]struct{}),
	}
}

// Lookup returns the existing id for key and true, or (0, false) if key
// has not been seen yet in this traversal. key must be comparable (for
// pointer-identity objects, callers pass the pointer value itself).
func (t *WriteTable) Lookup(key any) (uint64, bool) {
	id, ok := t.byObject[key]
	return id, ok
}

// Assign allocates a new id for key and remembers it (spec.md invariant 1:
// "every distinct object is assigned exactly one integer id").
func (t *WriteTable) Assign(key any) uint64 {
	id := t.next
	t.next++
	t.byObject[key] = id
	if t.preservation == UseWeakReference {
		t.weak[id] = struct{}{}
	}
	return id
}

// EndOperation implements the weak-reference discipline: under
// UseWeakReference, identities are dropped between operations on an open
// stream, forcing the writer to re-stamp them on next use; under
// DoNotPreserve everything is discarded; under Preserve nothing is
// dropped.
func (t *WriteTable) EndOperation() {
	switch t.preservation {
	case DoNotPreserve:
		t.byObject = make(map[any]uint64)
		t.weak = make(map[uint64]struct{})
	case UseWeakReference:
		for key, id := range t.byObject {
			if _, stillWeak := t.weak[id]; stillWeak {
				delete(t.byObject, key)
			}
		}
		t.weak = make(map[uint64]struct{})
	case Preserve:
		// retained across operations.
	}
}

// ReadTable fills slots as instances are materialized on the read side.
// A forward cyclic reference never actually arrives before its target
// slot exists: the reader allocates and fills a reference value's slot
// the moment it is materialized (a pointer, slice, or map header is a
// stable Go reference before its contents are populated), then recurses
// into its fields/elements. Any back-reference encountered mid-populate
// therefore always finds an already-filled slot, so this table only ever
// needs Fill-then-Get, never a deferred-patch path.
type ReadTable struct {
	slots  map[uint64]any
	filled map[uint64]bool
}

// NewReadTable creates a read-side identity table.
func NewReadTable() *ReadTable {
	return &ReadTable{
		slots:  make(map[uint64]any),
		filled: make(map[uint64]bool),
	}
}

// Get returns the current value in id's slot and whether the slot has
// been filled.
func (t *ReadTable) Get(id uint64) (any, bool) {
	return t.slots[id], t.filled[id]
}

// Fill populates id's slot (spec.md §4.5).
func (t *ReadTable) Fill(id uint64, value any) {
	t.slots[id] = value
	t.filled[id] = true
}

// EndOperation mirrors WriteTable.EndOperation for the read side.
func (t *ReadTable) EndOperation(p Preservation) {
	if p != Preserve {
		t.slots = make(map[uint64]any)
		t.filled = make(map[uint64]bool)
	}
}

func (t *ReadTable) String() string {
	return fmt.Sprintf("identity.ReadTable{%d slots}", len(t.slots))
}
