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

// Package surrogate implements the swap table: an insertion-ordered,
// append-only (until first use) registry mapping a declared type to a
// user-supplied conversion function, used symmetrically for
// object-to-surrogate (write side) and surrogate-to-object (read side)
// substitution, per spec.md §3/§4.2.
package surrogate

import (
	"fmt"
	"reflect"
)

// Func converts a value of (an assignable subtype of) the declared type
// into its surrogate representation, or back again; the same Func shape
// serves both directions, mirroring spec.md §4.2's symmetric use.
type Func func(v any) (any, error)

type entry struct {
	declared reflect.Type
	fn       Func
	order    int // insertion sequence number, used for most-recent tiebreak.
}

// Table is a swap table. The zero value is ready to use.
type Table struct {
	entries map[reflect.Type]*entry
	order   []reflect.Type // insertion order, for deterministic re-registration behavior.
	seq     int
	used    bool
}

// IllegalStateAfterUse is returned by AddOrReplace once the table has been
// consulted by Find (i.e. the owning serializer has performed its first
// write or read), per spec.md §4.2 and invariant 7.
type IllegalStateAfterUse struct{}

func (IllegalStateAfterUse) Error() string {
	return "surrogate: swap table modified after first use"
}

// AddOrReplace inserts a mapping from declaredType to fn. If declaredType
// is already registered, both the callable and its insertion-order
// position are replaced (spec.md §4.2), which is why "replace" keeps the
// original order slot rather than appending a duplicate.
func (t *Table) AddOrReplace(declaredType reflect.Type, fn Func) error {
	if t.used {
		return IllegalStateAfterUse{}
	}
	if t.entries == nil {
		t.entries = make(map[reflect.Type]*entry)
	}
	if e, ok := t.entries[declaredType]; ok {
		e.fn = fn
		e.order = t.seq
		t.seq++
		return nil
	}
	e := &entry{declared: declaredType, fn: fn, order: t.seq}
	t.seq++
	t.entries[declaredType] = e
	t.order = append(t.order, declaredType)
	return nil
}

// Find returns the Func registered for the most-derived type assignable
// from queryType, breaking ties by most recent insertion (spec.md §4.2).
// Calling Find freezes the table against further AddOrReplace calls.
func (t *Table) Find(queryType reflect.Type) (Func, bool) {
	t.used = true
	var best *entry
	for _, dt := range t.order {
		e := t.entries[dt]
		if !queryType.AssignableTo(dt) {
			continue
		}
		if best == nil || moreDerived(e, best, queryType) {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.fn, true
}

// moreDerived reports whether candidate should win over current as the
// "most-derived type assignable from query" match: a strictly narrower
// declared type wins; on a tie in specificity, the most recently inserted
// entry wins, per spec.md §4.2.
func moreDerived(candidate, current *entry, query reflect.Type) bool {
	cNarrower := candidate.declared.AssignableTo(current.declared) && candidate.declared != current.declared
	curNarrower := current.declared.AssignableTo(candidate.declared) && candidate.declared != current.declared
	switch {
	case cNarrower && !curNarrower:
		return true
	case curNarrower && !cNarrower:
		return false
	default:
		return candidate.order > current.order
	}
}

func (t *Table) String() string {
	return fmt.Sprintf("surrogate.Table{%d entries, used=%v}", len(t.entries), t.used)
}
