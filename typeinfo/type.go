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

package typeinfo

import (
	"fmt"
	"reflect"
	"strings"
)

// tag is the struct-tag key this package reads from runtime types, playing
// the role `disable`/`version`/`identity` tags play in
// framework/binary/entity.go's InitEntity, narrowed to the flags spec.md
// §3/§4.3 actually needs.
const tag = "vom"

// TypeDescriptor is either resolved-from-runtime (built by reflection,
// memoized in the process-wide Cache keyed by reflect.Type) or
// resolved-from-stream (built by reading a type stamp, with Fields
// already populated from the wire). graph.Reader binds a stream-side
// descriptor's live counterpart itself (graph.Reader.resolve), keeping
// the two separate rather than mutating the stream descriptor in place,
// since the two can legitimately disagree under schema drift and
// tolerance.Compare needs both at once.
//
// Go has no open/closed-generic distinction to mirror exactly; GenericArgs
// here names the element type(s) of a composite type (slice element,
// map key+value, pointer pointee) rather than true generic type
// parameters, since compiled Go reflection does not expose the latter for
// an instantiated generic type. This is recorded as a deliberate mapping,
// not an omission.
type TypeDescriptor struct {
	FullName    string
	Assembly    *AssemblyDescriptor
	GenericArgs []*TypeDescriptor
	Base        *TypeDescriptor // nil if no base type.
	Fields      []*FieldDescriptor

	// Kind records the reflect.Kind the descriptor was built from (or, for
	// a stream-side descriptor, the kind read off the wire). A version-
	// tolerant skip of a dropped field has no live reflect.Type to consult,
	// so the decoder needs Kind, GenericArgs and Fields to know the shape
	// of the bytes it must discard (spec.md §4.4/§4.7).
	Kind reflect.Kind

	aqn string
}

// AssemblyQualifiedName is a pure function of the descriptor tree used for
// equality and hashing (spec.md invariant 6).
func (t *TypeDescriptor) AssemblyQualifiedName() string {
	if t.aqn != "" {
		return t.aqn
	}
	var b strings.Builder
	b.WriteString(t.FullName)
	if len(t.GenericArgs) > 0 {
		b.WriteByte('[')
		for i, a := range t.GenericArgs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a.AssemblyQualifiedName())
		}
		b.WriteByte(']')
	}
	if t.Assembly != nil {
		b.WriteString(", ")
		b.WriteString(t.Assembly.AssemblyQualifiedName())
	}
	t.aqn = b.String()
	return t.aqn
}

// Equal compares by AssemblyQualifiedName, per spec.md invariant 6.
func (t *TypeDescriptor) Equal(o *TypeDescriptor) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.AssemblyQualifiedName() == o.AssemblyQualifiedName()
}

// NonTransientFields returns the fields that are written to the stream, in
// declared order (base-first, per spec.md §4.3).
func (t *TypeDescriptor) NonTransientFields() []*FieldDescriptor {
	out := make([]*FieldDescriptor, 0, len(t.Fields))
	for _, f := range t.Fields {
		if !f.Transient {
			out = append(out, f)
		}
	}
	return out
}

// FromRuntimeType builds (or fetches from cache) a TypeDescriptor for t,
// whose Kind must be Struct (after following any pointer indirection),
// mirroring framework/binary/entity.go's InitEntity panic-on-non-struct
// contract, generalized to also accept structs reached through pointers
// (the common Go idiom for passing a value to serialize).
func FromRuntimeType(cache *Cache, t reflect.Type, asm *AssemblyDescriptor) (*TypeDescriptor, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("typeinfo: %v is not struct-kind (kind=%v)", t, t.Kind())
	}
	if td, ok := cache.get(t); ok {
		return td, nil
	}

	td := &TypeDescriptor{
		FullName: fullName(t),
		Assembly: asm,
		Kind:     reflect.Struct,
	}
	// Reserve the slot before recursing into field types, so a
	// self-referential (cyclic) struct type doesn't recurse forever.
	cache.put(t, td)

	walkFields(cache, t, asm, td)
	return td, nil
}

func fullName(t reflect.Type) string {
	if pkg := t.PkgPath(); pkg != "" {
		return pkg + "." + t.Name()
	}
	return t.String()
}

// walkFields implements the base-first, declaration-order walk spec.md
// §4.3 requires, grounded on entity.go's InitEntity loop. When the first
// field is an anonymous embedded struct, it is treated as the base type
// (recursively walked) rather than as an ordinary field, matching Go's own
// embedding semantics; an embedded struct in any later position is an
// ordinary field.
func walkFields(cache *Cache, t reflect.Type, asm *AssemblyDescriptor, td *TypeDescriptor) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue // unexported, non-embeddable field.
		}
		tagVal := f.Tag.Get(tag)
		if tagVal == "-" {
			continue
		}
		opts := strings.Split(tagVal, ",")
		name := f.Name
		if opts[0] != "" {
			name = opts[0]
		}
		transient, ctor := false, false
		for _, o := range opts[1:] {
			switch o {
			case "transient":
				transient = true
			case "ctor":
				transient, ctor = true, true
			}
		}

		if i == 0 && f.Anonymous && f.Type.Kind() == reflect.Struct {
			base, err := FromRuntimeType(cache, f.Type, asm)
			if err == nil {
				td.Base = base
				td.Fields = append(td.Fields, base.Fields...)
				continue
			}
		}

		ft, err := fieldType(cache, f.Type, asm)
		if err != nil {
			// Unsupported field kind (func/chan): hard reject at use time,
			// not at registration time, so a type with an unused bad field
			// can still be described; graph.Writer/Reader refuse to touch
			// the value itself (DESIGN.md, Open Question 2).
			ft = &TypeDescriptor{FullName: f.Type.String()}
		}
		td.Fields = append(td.Fields, &FieldDescriptor{
			DeclaringType:        td.FullName,
			Name:                 name,
			Type:                 ft,
			Transient:            transient,
			ConstructorRecreated: ctor,
		})
	}
}

// fieldType builds a TypeDescriptor for a field's static type, recursing
// into struct kinds and recording composite element types as GenericArgs.
func fieldType(cache *Cache, t reflect.Type, asm *AssemblyDescriptor) (*TypeDescriptor, error) {
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, fmt.Errorf("typeinfo: unsupported field kind %v", t.Kind())
	case reflect.Ptr:
		elem, err := fieldType(cache, t.Elem(), asm)
		if err != nil {
			return nil, err
		}
		return &TypeDescriptor{FullName: "*" + elem.FullName, Kind: reflect.Ptr, GenericArgs: []*TypeDescriptor{elem}}, nil
	case reflect.Slice, reflect.Array:
		elem, err := fieldType(cache, t.Elem(), asm)
		if err != nil {
			return nil, err
		}
		return &TypeDescriptor{FullName: "[]" + elem.FullName, Kind: t.Kind(), GenericArgs: []*TypeDescriptor{elem}}, nil
	case reflect.Map:
		kt, err := fieldType(cache, t.Key(), asm)
		if err != nil {
			return nil, err
		}
		vt, err := fieldType(cache, t.Elem(), asm)
		if err != nil {
			return nil, err
		}
		return &TypeDescriptor{
			FullName:    "map[" + kt.FullName + "]" + vt.FullName,
			Kind:        reflect.Map,
			GenericArgs: []*TypeDescriptor{kt, vt},
		}, nil
	case reflect.Struct:
		return FromRuntimeType(cache, t, asm)
	default:
		return &TypeDescriptor{FullName: t.String(), Kind: t.Kind()}, nil
	}
}

// StreamTypeDescriptor builds a TypeDescriptor from a type stamp read off
// the wire. graph.Reader binds it to a live reflect.Type itself
// (graph.Reader.resolve) rather than mutating this descriptor in place.
func StreamTypeDescriptor(fullName string, kind reflect.Kind, asm *AssemblyDescriptor, genArgs []*TypeDescriptor, base *TypeDescriptor, fields []*FieldDescriptor) *TypeDescriptor {
	return &TypeDescriptor{
		FullName:    fullName,
		Kind:        kind,
		Assembly:    asm,
		GenericArgs: genArgs,
		Base:        base,
		Fields:      fields,
	}
}

func (t *TypeDescriptor) String() string {
	return t.AssemblyQualifiedName()
}

