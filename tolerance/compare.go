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

// Package tolerance implements the stamp comparator: reconciling a
// persisted TypeDescriptor against the TypeDescriptor discovered in the
// running environment, and producing an ordered read plan, per spec.md
// §4.4. framework/binary/registry.go's UpgradeDecoder is the closest
// analogue among the reference sources, and it hands the whole decode to
// hand-written code rather than comparing field-by-field; this algorithm
// is grounded directly on spec.md §4.4's numbered steps instead.
package tolerance

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/binarygraph/vomgraph/typeinfo"
)

// Flags are the schema-drift permissions from spec.md §6.
type Flags uint8

const (
	AllowGuidChange Flags = 1 << iota
	AllowAssemblyVersionChange
	AllowFieldAddition
	AllowFieldRemoval
	AllowInheritanceChainChange
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// DriftKind names the category of structural difference found between two
// type descriptors (spec.md §4.4).
type DriftKind int

const (
	FieldsAdded DriftKind = iota
	FieldsRemoved
	FieldsChanged
)

// TypeStructureChanged is returned when the comparator finds a drift the
// configured Flags forbid. It carries the first offending field name and
// drift kind, per spec.md §7.
type TypeStructureChanged struct {
	Field string
	Kind  DriftKind
}

func (e *TypeStructureChanged) Error() string {
	return fmt.Sprintf("tolerance: field %q: %s not tolerated", e.Field, e.Kind)
}

func (k DriftKind) String() string {
	switch k {
	case FieldsAdded:
		return "field addition"
	case FieldsRemoved:
		return "field removal"
	case FieldsChanged:
		return "field type change"
	default:
		return "unknown drift"
	}
}

// EntryTag is the kind of action a ReadPlanEntry performs.
type EntryTag int

const (
	Read EntryTag = iota
	Skip
	ConstructorInit
)

// ReadPlanEntry is one positional step of a ReadPlan (spec.md §3).
type ReadPlanEntry struct {
	Tag   EntryTag
	Field *typeinfo.FieldDescriptor // set for Read and ConstructorInit
	Type  *typeinfo.TypeDescriptor  // set for Skip: the stream-side field type to recurse into
}

// ReadPlan is the ordered sequence of steps needed to decode one instance,
// preserving the stream's field ordering (spec.md §4.4: "otherwise the
// byte sequence cannot be decoded").
type ReadPlan []ReadPlanEntry

// Compare reconciles prev (read from the stream's type stamp) against cur
// (discovered from the running environment) for the same full name,
// implementing spec.md §4.4's seven-step algorithm exactly.
func Compare(prev, cur *typeinfo.TypeDescriptor, flags Flags, log *zap.Logger) (ReadPlan, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Step 1/2: identical module GUID short-circuits the whole comparison.
	if prev.Assembly != nil && cur.Assembly != nil &&
		prev.Assembly.ModuleID == cur.Assembly.ModuleID {
		return identityPlan(cur), nil
	}
	if !flags.has(AllowGuidChange) {
		return nil, errors.Wrapf(
			&TypeStructureChanged{Field: cur.FullName, Kind: FieldsChanged},
			"module guid changed for %s and AllowGuidChange is not set", cur.FullName)
	}

	// Step 5: base-type identity.
	if !baseEqual(prev.Base, cur.Base) && !flags.has(AllowInheritanceChainChange) {
		return nil, &TypeStructureChanged{Field: cur.FullName, Kind: FieldsChanged}
	}

	// Step 6: assembly version drift.
	if prev.Assembly != nil && cur.Assembly != nil &&
		prev.Assembly.Version != cur.Assembly.Version &&
		!flags.has(AllowAssemblyVersionChange) {
		return nil, errors.Wrapf(
			&TypeStructureChanged{Field: cur.FullName, Kind: FieldsChanged},
			"assembly version drift for %s and AllowAssemblyVersionChange is not set", cur.FullName)
	}

	// Step 3/4: walk cur's non-transient fields against a working copy of
	// prev's fields, removing matches so whatever remains was removed.
	prevByKey := map[typeinfo.Key]*typeinfo.FieldDescriptor{}
	for _, f := range prev.NonTransientFields() {
		prevByKey[f.Key()] = f
	}
	curByKey := map[typeinfo.Key]*typeinfo.FieldDescriptor{}

	var added, removed []string
	for _, cf := range cur.NonTransientFields() {
		curByKey[cf.Key()] = cf
		pf, ok := prevByKey[cf.Key()]
		switch {
		case !ok:
			added = append(added, cf.Name)
			if !flags.has(AllowFieldAddition) {
				return nil, &TypeStructureChanged{Field: cf.Name, Kind: FieldsAdded}
			}
		case !fieldTypesCompatible(pf.Type, cf.Type):
			// Field type changes are always fatal (spec.md §4.4 step 3).
			return nil, &TypeStructureChanged{Field: cf.Name, Kind: FieldsChanged}
		default:
			delete(prevByKey, cf.Key())
		}
	}
	for _, pf := range prevByKey {
		removed = append(removed, pf.Name)
	}
	if len(removed) > 0 && !flags.has(AllowFieldRemoval) {
		return nil, &TypeStructureChanged{Field: removed[0], Kind: FieldsRemoved}
	}

	// Build the plan in the stream's field order (spec.md §4.4: "the
	// stream's field ordering ... otherwise the byte sequence cannot be
	// decoded"), then append ConstructorInit entries for fields the
	// current type added and for constructor-recreated transient fields.
	finalPlan := make(ReadPlan, 0, len(prev.NonTransientFields())+len(added))
	for _, pf := range prev.NonTransientFields() {
		if cf, ok := curByKey[pf.Key()]; ok {
			finalPlan = append(finalPlan, ReadPlanEntry{Tag: Read, Field: cf})
		} else {
			finalPlan = append(finalPlan, ReadPlanEntry{Tag: Skip, Type: pf.Type})
		}
	}
	for _, name := range added {
		for _, cf := range cur.NonTransientFields() {
			if cf.Name == name {
				finalPlan = append(finalPlan, ReadPlanEntry{Tag: ConstructorInit, Field: cf})
				break
			}
		}
	}
	for _, cf := range cur.Fields {
		if cf.Transient && cf.ConstructorRecreated {
			finalPlan = append(finalPlan, ReadPlanEntry{Tag: ConstructorInit, Field: cf})
		}
	}

	if len(added) > 0 {
		log.Warn("tolerance: fields added", zap.String("type", cur.FullName), zap.Strings("fields", added))
	}
	if len(removed) > 0 {
		log.Warn("tolerance: fields removed", zap.String("type", cur.FullName), zap.Strings("fields", removed))
	}

	return finalPlan, nil
}

func identityPlan(cur *typeinfo.TypeDescriptor) ReadPlan {
	plan := make(ReadPlan, 0, len(cur.Fields))
	for _, f := range cur.Fields {
		switch {
		case f.Transient && f.ConstructorRecreated:
			plan = append(plan, ReadPlanEntry{Tag: ConstructorInit, Field: f})
		case f.Transient:
			continue
		default:
			plan = append(plan, ReadPlanEntry{Tag: Read, Field: f})
		}
	}
	return plan
}

func baseEqual(a, b *typeinfo.TypeDescriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}

// fieldTypesCompatible is intentionally strict: spec.md §4.4 step 3 says a
// field type change is "always fatal," so compatibility here means "same
// full name," not a numeric-widening rule. The assembly is left out, since
// it differs whenever the module guid has changed.
func fieldTypesCompatible(prev, cur *typeinfo.TypeDescriptor) bool {
	if prev == nil || cur == nil {
		return prev == cur
	}
	return prev.FullName == cur.FullName
}
