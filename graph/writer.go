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
	"fmt"
	"io"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/binarygraph/vomgraph/identity"
	"github.com/binarygraph/vomgraph/typeinfo"
	"github.com/binarygraph/vomgraph/wire"
)

// state is the traversal state machine from spec.md §4.6: idle → writing
// header → writing root → (writing objects)* → done.
type state int

const (
	stateIdle state = iota
	stateHeader
	stateRoot
	stateObjects
	stateDone
)

// Writer drives the traversal: consults surrogates, allocates identities,
// writes type stamps on first sight, and dispatches to per-kind field
// emitters (spec.md §4.6). Grounded on framework/binary/cyclic's
// key/type/body wire model.
type Writer struct {
	w    io.Writer
	wr   wire.Writer
	st   Settings
	log  *zap.Logger
	state state

	// buffered is non-nil when Settings.UseBuffering selected the
	// block-buffered codec; Serialize closes it (flush + pad to the next
	// block boundary) after every operation, so a subsequent open-stream
	// operation on the same Writer resumes at a clean boundary (spec.md
	// §4.1).
	buffered *wire.BufferedWriter

	identities *identity.WriteTable
	typeIDs    map[string]uint64 // keyed by TypeDescriptor.AssemblyQualifiedName()
	nextTypeID uint64
	asmIDs     map[string]uint64
	nextAsmID  uint64

	seenOnce map[any]bool // objects that have already run PreSerialize/PostSerialize this traversal.
}

// NewWriter creates a Writer over w, ready to Open a stream and Serialize
// one or more root values (spec.md §6 "Open stream session"). When
// st.UseBuffering is set, w is wrapped in a block-buffered codec (spec.md
// §4.1) instead of being written to directly.
func NewWriter(w io.Writer, st Settings) *Writer {
	under := io.Writer(w)
	var buffered *wire.BufferedWriter
	if st.UseBuffering {
		buffered = wire.NewBufferedWriter(w)
		under = buffered
	}
	return &Writer{
		w:          under,
		wr:         wire.NewWriter(under),
		buffered:   buffered,
		st:         st,
		log:        st.logger(),
		identities: identity.NewWriteTable(st.ReferencePreservation),
		typeIDs:    map[string]uint64{},
		asmIDs:     map[string]uint64{},
		seenOnce:   map[any]bool{},
	}
}

// Open writes the 5-byte stream header (spec.md §6) if it has not already
// been written on this Writer.
func (w *Writer) Open() error {
	if w.state != stateIdle {
		return nil
	}
	w.state = stateHeader
	w.wr.Data(magic[:])
	w.wr.Uint8(currentVersion)
	preserve := uint8(0)
	if w.st.ReferencePreservation != identity.DoNotPreserve {
		preserve = 1
	}
	w.wr.Uint8(preserve)
	w.state = stateRoot
	return w.wr.Error()
}

// Serialize writes one root value and everything reachable from it,
// forming one self-contained body segment of the stream. Call it
// repeatedly on the same Writer for an open-stream session.
func (w *Writer) Serialize(root any) error {
	if err := w.Open(); err != nil {
		return err
	}
	w.state = stateObjects
	w.seenOnce = map[any]bool{}
	w.writeValue(reflect.ValueOf(root))
	w.state = stateRoot
	w.identities.EndOperation()
	if w.buffered != nil {
		if err := w.buffered.Close(); err != nil {
			w.wr.SetError(err)
		}
	}
	return w.wr.Error()
}

// identityKey returns a comparable key for v's current object, or nil if v
// does not carry a stable identity in this traversal (spec.md maps
// "object" onto Go's reference kinds: pointers, maps, and slices/chans are
// the values that can alias; plain structs passed by value cannot).
func identityKey(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan:
		if v.IsNil() {
			return nil
		}
		return v.Pointer()
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		return v.Pointer()
	default:
		return nil
	}
}

// writeValue implements spec.md §4.6 steps 1-4.
func (w *Writer) writeValue(v reflect.Value) {
	if w.wr.Error() != nil {
		return
	}
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			w.wr.Uint64(identity.NullID)
			return
		}
		v = v.Elem()
	}
	if !v.IsValid() || isNilable(v) && v.IsNil() {
		w.wr.Uint64(identity.NullID)
		return
	}

	// Step 2: surrogate substitution (object -> surrogate). The original
	// object never receives an id; the surrogate value is serialized in
	// its place. The substitute itself is not looked up again, so a
	// surrogate whose type also matches its own entry (an error surrogate
	// that is itself an error) is applied once.
	if w.st.ObjectSurrogates != nil {
		if fn, ok := w.st.ObjectSurrogates.Find(v.Type()); ok {
			sub, err := fn(v.Interface())
			if err != nil {
				w.wr.SetError(fmt.Errorf("graph: surrogate for %s: %w", v.Type(), err))
				return
			}
			v = reflect.ValueOf(sub)
			if !v.IsValid() || isNilable(v) && v.IsNil() {
				w.wr.Uint64(identity.NullID)
				return
			}
		}
	}

	key := identityKey(v)
	if key != nil {
		if id, ok := w.identities.Lookup(key); ok {
			w.wr.Uint64(id)
			return
		}
	}

	var id uint64
	if key != nil {
		id = w.identities.Assign(key)
	} else {
		// Value types with no stable identity still occupy a position in
		// the id stream so the reader's slot bookkeeping stays aligned;
		// they are never looked up again.
		id = w.identities.Assign(new(byte))
	}
	w.wr.Uint64(id)
	w.wr.Bool(v.Kind() == reflect.Ptr)

	hookKey := key
	if hookKey == nil {
		hookKey = id
	}
	if w.st.PreSerialize != nil && !w.seenOnce[hookKey] {
		w.st.PreSerialize(v.Interface())
	}

	w.writeTypedBody(v)

	if w.st.PostSerialize != nil && !w.seenOnce[hookKey] {
		w.st.PostSerialize(v.Interface())
		w.seenOnce[hookKey] = true
	}
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}

// writeTypedBody writes the type id (stamping if new) and then the
// type-appropriate body. The type stamp always names the pointee's shape,
// never "*T" itself: pointer-ness was already recorded as a single bit
// in writeValue, ahead of the type id, so a field can freely switch
// between T and *T across versions without the stamp needing to change
// (spec.md §4.6).
func (w *Writer) writeTypedBody(v reflect.Value) {
	rt := v.Type()
	if rt.Kind() == reflect.Func || rt.Kind() == reflect.Chan || rt.Kind() == reflect.UnsafePointer {
		w.wr.SetError(InvariantViolation{Reason: fmt.Sprintf("kind %v cannot be serialized", rt.Kind())})
		return
	}

	bodyVal := v
	if rt.Kind() == reflect.Ptr {
		bodyVal = v.Elem()
	}
	bodyKind := bodyVal.Kind()
	if bodyKind == reflect.Func || bodyKind == reflect.Chan || bodyKind == reflect.UnsafePointer {
		w.wr.SetError(InvariantViolation{Reason: fmt.Sprintf("kind %v cannot be serialized", bodyKind)})
		return
	}

	td, err := w.descriptorFor(bodyVal.Type())
	if err != nil {
		w.wr.SetError(err)
		return
	}
	id, isNew := w.ensureTypeID(td)
	w.wr.Uint64(id)
	if isNew {
		w.writeTypeStamp(td)
	}

	switch {
	case bodyKind == reflect.Struct:
		w.writeStructFields(bodyVal, td)
	case (bodyKind == reflect.Slice || bodyKind == reflect.Array) && !w.st.TreatCollectionAsUserObject:
		w.writeSequence(bodyVal)
	case bodyKind == reflect.Map && !w.st.TreatCollectionAsUserObject:
		w.writeMap(bodyVal)
	default:
		w.writePrimitiveOrFallback(bodyVal)
	}
}

// descriptorFor resolves (and memoizes) the TypeDescriptor for t, which is
// always already the dereferenced, non-pointer shape (spec.md §4.6's
// structure-stamp necessity rule decides later whether this descriptor
// needs a structure stamp).
func (w *Writer) descriptorFor(t reflect.Type) (*typeinfo.TypeDescriptor, error) {
	if t.Kind() == reflect.Struct {
		return typeinfo.FromRuntimeType(w.st.cache(), t, w.st.Assembly)
	}
	return &typeinfo.TypeDescriptor{FullName: t.String(), Kind: t.Kind(), Assembly: w.st.Assembly}, nil
}

// ensureTypeID returns td's dense, first-appearance-ordered id (spec.md
// §6: "Type ids are assigned in first-appearance order, 0-based"),
// assigning one if this is the first time td has been seen this
// traversal (spec.md invariant 3).
func (w *Writer) ensureTypeID(td *typeinfo.TypeDescriptor) (uint64, bool) {
	key := td.AssemblyQualifiedName()
	if id, ok := w.typeIDs[key]; ok {
		return id, false
	}
	id := w.nextTypeID
	w.nextTypeID++
	w.typeIDs[key] = id
	return id, true
}

func (w *Writer) ensureAssemblyID(a *typeinfo.AssemblyDescriptor) (uint64, bool) {
	if a == nil {
		a = &typeinfo.AssemblyDescriptor{Name: ""}
	}
	key := a.AssemblyQualifiedName()
	if id, ok := w.asmIDs[key]; ok {
		return id, false
	}
	id := w.nextAsmID
	w.nextAsmID++
	w.asmIDs[key] = id
	return id, true
}

// writeTypeStamp implements spec.md §6's inline type stamp:
// assembly_id | full_name | gen_arg_count | gen_arg_ids…, followed, when
// needed, by a structure stamp. Invariant 5 requires generic arguments be
// stamped before the enclosing instantiation finishes its own stamp, which
// falls out naturally here since ensureTypeID/writeTypeStamp for each arg
// runs to completion before the parent writes its own field count.
func (w *Writer) writeTypeStamp(td *typeinfo.TypeDescriptor) {
	asmID, asmNew := w.ensureAssemblyID(td.Assembly)
	w.wr.Uint64(asmID)
	if asmNew {
		writeAssemblyStamp(w.wr, assemblyOrDefault(td.Assembly))
	}
	w.wr.String(td.FullName)
	w.wr.Uint8(uint8(td.Kind))
	w.wr.Uint64(uint64(len(td.GenericArgs)))
	for _, arg := range td.GenericArgs {
		argID, argNew := w.ensureTypeID(arg)
		w.wr.Uint64(argID)
		if argNew {
			w.writeTypeStamp(arg)
		}
	}

	hasStructure := structureNeeded(td, w.st.TreatCollectionAsUserObject)
	w.wr.Bool(hasStructure)
	if !hasStructure {
		return
	}
	if td.Base != nil {
		baseID, baseNew := w.ensureTypeID(td.Base)
		w.wr.Uint64(baseID + 1) // 0 reserved for "no base type"
		if baseNew {
			w.writeTypeStamp(td.Base)
		}
	} else {
		w.wr.Uint64(0)
	}
	fields := td.NonTransientFields()
	w.wr.Uint64(uint64(len(fields)))
	for _, f := range fields {
		w.wr.String(f.DeclaringType)
		w.wr.String(f.Name)
		fieldTypeID, fieldNew := w.ensureTypeID(f.Type)
		w.wr.Uint64(fieldTypeID)
		if fieldNew {
			w.writeTypeStamp(f.Type)
		}
	}
	w.log.Debug("graph: wrote structure stamp", zap.String("type", td.FullName), zap.Int("fields", len(fields)))
}

func assemblyOrDefault(a *typeinfo.AssemblyDescriptor) *typeinfo.AssemblyDescriptor {
	if a != nil {
		return a
	}
	return &typeinfo.AssemblyDescriptor{}
}

// writeStructFields writes a user object's field list in the order
// declared by the type descriptor (spec.md §4.6), recursing per field.
// Transient fields are skipped entirely; they occupy no wire position.
//
// Under SerializationMethod == Generated, each field is located through
// resolveFieldPath's memoized index path instead of fieldGoName's
// per-call tag scan (spec.md §9's "Dynamically generated per-type
// writers/readers" design note).
func (w *Writer) writeStructFields(v reflect.Value, td *typeinfo.TypeDescriptor) {
	rt := v.Type()
	generated := w.st.SerializationMethod == Generated
	for _, f := range td.NonTransientFields() {
		var fv reflect.Value
		if generated {
			if idx := resolveFieldPath(rt, f.Name); idx != nil {
				fv = v.FieldByIndex(idx)
			}
		} else {
			fv = v.FieldByName(fieldGoName(rt, f.Name))
		}
		if !fv.IsValid() {
			w.wr.SetError(StreamCorrupted{Reason: fmt.Sprintf("field %s not found on %s", f.Name, rt)})
			return
		}
		w.writeValue(fv)
	}
}

// fieldGoName maps a wire field name back to the struct field name; they
// are identical unless a `vom:"name"` tag renamed the field.
func fieldGoName(rt reflect.Type, wireName string) string {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if tagVal := f.Tag.Get(tagKey); tagVal != "" {
			if name := splitTagName(tagVal); name == wireName {
				return f.Name
			}
		}
		if f.Name == wireName {
			return f.Name
		}
	}
	return wireName
}

const tagKey = "vom"

func splitTagName(tagVal string) string {
	for i := 0; i < len(tagVal); i++ {
		if tagVal[i] == ',' {
			return tagVal[:i]
		}
	}
	return tagVal
}

// writeSequence writes a slice/array as length then element-by-element
// (spec.md §4.6). Multi-dimensional arrays fall out of recursion: each
// dimension is itself an Array/Slice kind, so nested length prefixes are
// written naturally without a separate rank field.
func (w *Writer) writeSequence(v reflect.Value) {
	n := v.Len()
	w.wr.Uint64(uint64(n))
	for i := 0; i < n; i++ {
		w.writeValue(v.Index(i))
	}
}

// writeMap writes a map as count then alternating key/value records,
// ordering keys by their formatted text so repeated serializations of the
// same map are byte-identical (spec.md §8 property 2) despite Go's
// randomized map iteration order.
func (w *Writer) writeMap(v reflect.Value) {
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	w.wr.Uint64(uint64(len(keys)))
	for _, k := range keys {
		w.writeValue(k)
		w.writeValue(v.MapIndex(k))
	}
}

// writePrimitiveOrFallback writes an inline primitive (spec.md §4.6:
// "primitives inline").
func (w *Writer) writePrimitiveOrFallback(v reflect.Value) {
	switch v.Kind() {
	case reflect.Bool:
		w.wr.Bool(v.Bool())
	case reflect.Int, reflect.Int64:
		w.wr.Int64(v.Int())
	case reflect.Int8:
		w.wr.Int8(int8(v.Int()))
	case reflect.Int16:
		w.wr.Int16(int16(v.Int()))
	case reflect.Int32:
		w.wr.Int32(int32(v.Int()))
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		w.wr.Uint64(v.Uint())
	case reflect.Uint8:
		w.wr.Uint8(uint8(v.Uint()))
	case reflect.Uint16:
		w.wr.Uint16(uint16(v.Uint()))
	case reflect.Uint32:
		w.wr.Uint32(uint32(v.Uint()))
	case reflect.Float32:
		w.wr.Float32(float32(v.Float()))
	case reflect.Float64:
		w.wr.Float64(v.Float())
	case reflect.String:
		w.wr.String(v.String())
	default:
		w.wr.SetError(InvariantViolation{Reason: fmt.Sprintf("unhandled kind %v", v.Kind())})
	}
}

// Error returns the first error encountered by the underlying primitive
// writer, if any (the primitive codec never swallows I/O errors, spec.md
// §7).
func (w *Writer) Error() error { return w.wr.Error() }
