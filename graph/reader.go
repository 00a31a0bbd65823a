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

	"go.uber.org/zap"

	"github.com/binarygraph/vomgraph/identity"
	"github.com/binarygraph/vomgraph/tolerance"
	"github.com/binarygraph/vomgraph/typeinfo"
	"github.com/binarygraph/vomgraph/wire"
)

// typeEntry is what the reader remembers about one dense type id: the
// descriptor exactly as stamped on the wire, and, once needed to actually
// materialize a value, the live type it resolves to and the read plan
// reconciling the two (spec.md §4.4/§4.7).
type typeEntry struct {
	stream *typeinfo.TypeDescriptor
	live   *typeinfo.TypeDescriptor
	rt     reflect.Type
	plan   tolerance.ReadPlan
	planOK bool
}

// Reader mirrors Writer: it walks the wire's (object_id, type_id, body)
// tuples, rebuilding identities and applying the stamp comparator's read
// plan to tolerate schema drift (spec.md §4.7).
type Reader struct {
	r  io.Reader
	rd wire.Reader
	st Settings
	log *zap.Logger

	// buffered is non-nil when Settings.UseBuffering selected the
	// block-buffered codec; Deserialize aligns it to the next block
	// boundary after every operation, mirroring Writer's Close calls
	// (spec.md §4.1).
	buffered *wire.BufferedReader

	state              state
	preserveReferences bool

	identities *identity.ReadTable

	asmByID    map[uint64]*typeinfo.AssemblyDescriptor
	nextAsmID  uint64
	typesByID  map[uint64]*typeEntry
	nextTypeID uint64
}

// NewReader creates a Reader over r, ready to Open a stream and Deserialize
// one or more root values (spec.md §6 "Open stream session"). When
// st.UseBuffering is set, r is wrapped in the matching block-buffered
// codec (spec.md §4.1).
func NewReader(r io.Reader, st Settings) *Reader {
	under := io.Reader(r)
	var buffered *wire.BufferedReader
	if st.UseBuffering {
		buffered = wire.NewBufferedReader(r)
		under = buffered
	}
	return &Reader{
		r:          under,
		rd:         wire.NewReader(under),
		buffered:   buffered,
		st:         st,
		log:        st.logger(),
		identities: identity.NewReadTable(),
		asmByID:    map[uint64]*typeinfo.AssemblyDescriptor{},
		typesByID:  map[uint64]*typeEntry{},
	}
}

// Open reads and validates the 5-byte stream header, if it has not already
// been consumed on this Reader.
func (r *Reader) Open() error {
	if r.state != stateIdle {
		return nil
	}
	r.state = stateHeader
	var got [3]byte
	r.rd.Data(got[:])
	if err := r.rd.Error(); err != nil {
		return err
	}
	if got != magic {
		return WrongMagic{Got: got}
	}
	version := r.rd.Uint8()
	if err := r.rd.Error(); err != nil {
		return err
	}
	if version != currentVersion {
		return WrongVersion{Got: version}
	}
	preserve := r.rd.Uint8()
	r.preserveReferences = preserve != 0
	r.state = stateRoot
	return r.rd.Error()
}

// Deserialize decodes one root value and everything reachable from it,
// returning it as an any for the caller to type-assert or copy into a
// destination (spec.md §6).
func (r *Reader) Deserialize() (any, error) {
	if err := r.Open(); err != nil {
		return nil, err
	}
	r.state = stateObjects
	v, err := r.readValue(nil)
	r.state = stateRoot

	pres := identity.DoNotPreserve
	if r.preserveReferences {
		pres = identity.Preserve
	}
	r.identities.EndOperation(pres)

	if err == nil && r.buffered != nil {
		err = r.buffered.AlignToBoundary()
	}
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Error returns the first error seen by the underlying primitive reader.
func (r *Reader) Error() error { return r.rd.Error() }

// ensureAssembly resolves asmID to an AssemblyDescriptor, reading and
// caching its inline stamp on first appearance.
func (r *Reader) ensureAssembly(asmID uint64) (*typeinfo.AssemblyDescriptor, error) {
	if a, ok := r.asmByID[asmID]; ok {
		return a, nil
	}
	if asmID != r.nextAsmID {
		return nil, StreamCorrupted{Reason: fmt.Sprintf("assembly id %d out of first-appearance order (expected %d)", asmID, r.nextAsmID)}
	}
	a := readAssemblyStamp(r.rd)
	if err := r.rd.Error(); err != nil {
		return nil, err
	}
	r.asmByID[asmID] = a
	r.nextAsmID++
	return a, nil
}

// readTypeStamp resolves typeID to a *typeEntry, parsing its inline stamp
// on first appearance. It never requires a live reflect.Type: the stream
// descriptor alone is enough to know the shape of bytes that follow,
// which is what the version-tolerant Skip path depends on.
func (r *Reader) readTypeStamp(typeID uint64) (*typeEntry, error) {
	if te, ok := r.typesByID[typeID]; ok {
		return te, nil
	}
	if typeID != r.nextTypeID {
		return nil, StreamCorrupted{Reason: fmt.Sprintf("type id %d out of first-appearance order (expected %d)", typeID, r.nextTypeID)}
	}

	asmID := r.rd.Uint64()
	asm, err := r.ensureAssembly(asmID)
	if err != nil {
		return nil, err
	}
	fullName := r.rd.String()
	kind := reflect.Kind(r.rd.Uint8())
	genArgCount := r.rd.Uint64()
	if err := r.rd.Error(); err != nil {
		return nil, err
	}

	// Writer.ensureTypeID hands this type its id before any generic argument
	// is stamped, so it is registered here before those are read.
	te := &typeEntry{}
	r.typesByID[typeID] = te
	r.nextTypeID++

	genArgs := make([]*typeinfo.TypeDescriptor, genArgCount)
	for i := range genArgs {
		argID := r.rd.Uint64()
		argTE, err := r.readTypeStamp(argID)
		if err != nil {
			return nil, err
		}
		genArgs[i] = argTE.stream
	}

	hasStructure := r.rd.Bool()
	if err := r.rd.Error(); err != nil {
		return nil, err
	}
	var base *typeinfo.TypeDescriptor
	var fields []*typeinfo.FieldDescriptor
	if hasStructure {
		baseSlot := r.rd.Uint64()
		if baseSlot != 0 {
			baseTE, err := r.readTypeStamp(baseSlot - 1)
			if err != nil {
				return nil, err
			}
			base = baseTE.stream
		}
		fieldCount := r.rd.Uint64()
		fields = make([]*typeinfo.FieldDescriptor, fieldCount)
		for i := range fields {
			declaring := r.rd.String()
			name := r.rd.String()
			fieldTypeID := r.rd.Uint64()
			fte, err := r.readTypeStamp(fieldTypeID)
			if err != nil {
				return nil, err
			}
			fields[i] = &typeinfo.FieldDescriptor{DeclaringType: declaring, Name: name, Type: fte.stream}
		}
	}
	if err := r.rd.Error(); err != nil {
		return nil, err
	}

	te.stream = typeinfo.StreamTypeDescriptor(fullName, kind, asm, genArgs, base, fields)
	return te, nil
}

// resolve binds te's live reflect.Type and TypeDescriptor, memoizing the
// result. It is only called on the path that actually materializes a
// value; the Skip path never needs a live type.
//
// hint is the statically-known Go type at this call site (a struct
// field's declared type, a slice/map's element type, and so on), or nil
// at the root. Primitives and containers are monomorphic in practice, so
// when hint's kind already matches what the stamp describes it is bound
// directly, sparing callers from having to register every instantiated
// slice/map shape in Settings.Types. Struct kinds always resolve by name
// instead, since a field's static type may be a base class or interface
// while the stamp names the actual most-derived type that was written
// (spec.md §4.7's version-tolerant "locate the live type named by the
// stamp").
func (r *Reader) resolve(te *typeEntry, hint reflect.Type) error {
	if te.rt != nil {
		return nil
	}
	if hint != nil && te.stream.Kind != reflect.Struct && hint.Kind() == te.stream.Kind {
		te.rt = hint
		return nil
	}
	rt, err := r.st.resolveType(te.stream.FullName)
	if err != nil {
		return err
	}
	te.rt = rt
	if rt.Kind() == reflect.Struct {
		live, err := typeinfo.FromRuntimeType(r.st.cache(), rt, r.st.Assembly)
		if err != nil {
			return err
		}
		te.live = live
	}
	return nil
}

// plan lazily builds and memoizes te's ReadPlan the first time a struct
// of this type is actually decoded.
func (r *Reader) plan(te *typeEntry) (tolerance.ReadPlan, error) {
	if te.planOK {
		return te.plan, nil
	}
	if te.live == nil {
		te.planOK = true
		return nil, nil
	}
	p, err := tolerance.Compare(te.stream, te.live, r.st.VersionTolerance, r.log)
	if err != nil {
		return nil, err
	}
	te.plan, te.planOK = p, true
	return p, nil
}

// readValue decodes one (object_id, type_id, body) tuple, or just a bare
// object_id for null/back-references (spec.md §6). staticType is the
// Go type the caller expects (used to produce a correctly typed zero
// value for null); it may be nil when the caller has no expectation
// (the open-stream root, for instance).
func (r *Reader) readValue(staticType reflect.Type) (reflect.Value, error) {
	id := r.rd.Uint64()
	if err := r.rd.Error(); err != nil {
		return reflect.Value{}, err
	}
	if id == identity.NullID {
		if staticType != nil {
			return reflect.Zero(staticType), nil
		}
		return reflect.Value{}, nil
	}
	if v, ok := r.identities.Get(id); ok {
		return reflect.ValueOf(v), nil
	}

	wantPtr := r.rd.Bool()
	typeID := r.rd.Uint64()
	te, err := r.readTypeStamp(typeID)
	if err != nil {
		return reflect.Value{}, err
	}
	// The stamp always names the pointee's shape (writeValue's isPtr bit
	// carries pointer-ness separately), so a *T field's static type must be
	// dereferenced once before comparing Kind against it below.
	hint := staticType
	if wantPtr && hint != nil && hint.Kind() == reflect.Ptr {
		hint = hint.Elem()
	}
	if err := r.resolve(te, hint); err != nil {
		return reflect.Value{}, err
	}

	val, err := r.materialize(id, te, wantPtr)
	if err != nil {
		return reflect.Value{}, err
	}
	if r.st.PostDeserialize != nil {
		r.st.PostDeserialize(val.Interface())
	}
	return r.restoreSurrogate(val.Type(), val), nil
}

// materialize allocates a value of te.rt's shape (or, if wantPtr, a
// pointer to it, since the type stamp always names the pointee, never
// "*T" itself, so pointer-ness travels as the standalone bit read above),
// fills the identity table immediately (so a cyclic back-reference
// encountered while populating fields/elements resolves to the same
// instance), then populates its contents.
func (r *Reader) materialize(id uint64, te *typeEntry, wantPtr bool) (reflect.Value, error) {
	rt := te.rt
	if wantPtr {
		pv := reflect.New(rt)
		r.identities.Fill(id, pv.Interface())
		if err := r.populate(pv.Elem(), te); err != nil {
			return reflect.Value{}, err
		}
		return pv, nil
	}
	switch rt.Kind() {
	case reflect.Struct:
		sv := reflect.New(rt).Elem()
		r.identities.Fill(id, sv.Interface())
		if err := r.fillStruct(sv, te); err != nil {
			return reflect.Value{}, err
		}
		return sv, nil
	case reflect.Slice:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return reflect.Value{}, err
		}
		sv := reflect.MakeSlice(rt, int(n), int(n))
		r.identities.Fill(id, sv.Interface())
		for i := 0; i < int(n); i++ {
			ev, err := r.readValue(rt.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			if ev.IsValid() {
				sv.Index(i).Set(ev)
			}
		}
		return sv, nil
	case reflect.Array:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return reflect.Value{}, err
		}
		av := reflect.New(rt).Elem()
		r.identities.Fill(id, av.Interface())
		for i := 0; i < int(n); i++ {
			ev, err := r.readValue(rt.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			if i < rt.Len() && ev.IsValid() {
				av.Index(i).Set(ev)
			}
		}
		return av, nil
	case reflect.Map:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return reflect.Value{}, err
		}
		mv := reflect.MakeMapWithSize(rt, int(n))
		r.identities.Fill(id, mv.Interface())
		for i := 0; i < int(n); i++ {
			kv, err := r.readValue(rt.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			vv, err := r.readValue(rt.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			mv.SetMapIndex(kv, vv)
		}
		return mv, nil
	default:
		pv := r.readPrimitive(rt)
		if err := r.rd.Error(); err != nil {
			return reflect.Value{}, err
		}
		r.identities.Fill(id, pv.Interface())
		return pv, nil
	}
}

// populate fills dst, an addressable, already zero-valued instance of
// te.rt's shape, with the decoded body, for the wantPtr branch of
// materialize. It mirrors materialize's own non-pointer cases, the only
// difference being that the identity slot was already filled with the
// enclosing pointer rather than with dst itself.
func (r *Reader) populate(dst reflect.Value, te *typeEntry) error {
	rt := te.rt
	switch rt.Kind() {
	case reflect.Struct:
		return r.fillStruct(dst, te)
	case reflect.Slice:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return err
		}
		sv := reflect.MakeSlice(rt, int(n), int(n))
		dst.Set(sv)
		for i := 0; i < int(n); i++ {
			ev, err := r.readValue(rt.Elem())
			if err != nil {
				return err
			}
			if ev.IsValid() {
				dst.Index(i).Set(ev)
			}
		}
		return nil
	case reflect.Array:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return err
		}
		for i := 0; i < int(n); i++ {
			ev, err := r.readValue(rt.Elem())
			if err != nil {
				return err
			}
			if i < rt.Len() && ev.IsValid() {
				dst.Index(i).Set(ev)
			}
		}
		return nil
	case reflect.Map:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return err
		}
		mv := reflect.MakeMapWithSize(rt, int(n))
		dst.Set(mv)
		for i := 0; i < int(n); i++ {
			kv, err := r.readValue(rt.Key())
			if err != nil {
				return err
			}
			vv, err := r.readValue(rt.Elem())
			if err != nil {
				return err
			}
			dst.SetMapIndex(kv, vv)
		}
		return nil
	default:
		pv := r.readPrimitive(rt)
		if err := r.rd.Error(); err != nil {
			return err
		}
		dst.Set(pv)
		return nil
	}
}

// fillStruct applies te's read plan to sv, field by field, in the
// stream's declared order (spec.md §4.4).
//
// Under DeserializationMethod == Generated, each field is located
// through resolveFieldPath's memoized index path instead of
// fieldGoName's per-call tag scan, mirroring Writer.writeStructFields.
func (r *Reader) fillStruct(sv reflect.Value, te *typeEntry) error {
	plan, err := r.plan(te)
	if err != nil {
		return err
	}
	generated := r.st.DeserializationMethod == Generated
	for _, entry := range plan {
		switch entry.Tag {
		case tolerance.Read:
			var fv reflect.Value
			if generated {
				if idx := resolveFieldPath(sv.Type(), entry.Field.Name); idx != nil {
					fv = sv.FieldByIndex(idx)
				}
			} else {
				fv = sv.FieldByName(fieldGoName(sv.Type(), entry.Field.Name))
			}
			if !fv.IsValid() {
				return StreamCorrupted{Reason: fmt.Sprintf("field %s not found on %s", entry.Field.Name, sv.Type())}
			}
			val, err := r.readValue(fv.Type())
			if err != nil {
				return err
			}
			if val.IsValid() {
				fv.Set(val)
			}
		case tolerance.Skip:
			if err := r.skipObject(); err != nil {
				return err
			}
		case tolerance.ConstructorInit:
			// No bytes on the wire; left at its constructed zero value.
		}
	}
	return nil
}

// skipObject consumes one (object_id, type_id, body) tuple without
// requiring a live Go type for it, so a field dropped from the running
// program's type can still be skipped byte-for-byte (spec.md §4.4/§4.7).
func (r *Reader) skipObject() error {
	id := r.rd.Uint64()
	if err := r.rd.Error(); err != nil {
		return err
	}
	if id == identity.NullID {
		return nil
	}
	if _, ok := r.identities.Get(id); ok {
		return nil
	}
	_ = r.rd.Bool() // isPtr; irrelevant to skipping, since the stamp already names the dereferenced shape.
	typeID := r.rd.Uint64()
	te, err := r.readTypeStamp(typeID)
	if err != nil {
		return err
	}
	r.identities.Fill(id, struct{}{})
	return r.skipBody(te.stream)
}

func (r *Reader) skipBody(td *typeinfo.TypeDescriptor) error {
	switch td.Kind {
	case reflect.Struct:
		for range td.NonTransientFields() {
			if err := r.skipObject(); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := r.skipObject(); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		n := r.rd.Uint64()
		if err := r.rd.Error(); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := r.skipObject(); err != nil {
				return err
			}
			if err := r.skipObject(); err != nil {
				return err
			}
		}
		return nil
	default:
		r.skipPrimitive(td.Kind)
		return r.rd.Error()
	}
}

func (r *Reader) readPrimitive(rt reflect.Type) reflect.Value {
	switch rt.Kind() {
	case reflect.Bool:
		return reflect.ValueOf(r.rd.Bool())
	case reflect.Int:
		return reflect.ValueOf(int(r.rd.Int64())).Convert(rt)
	case reflect.Int8:
		return reflect.ValueOf(r.rd.Int8())
	case reflect.Int16:
		return reflect.ValueOf(r.rd.Int16())
	case reflect.Int32:
		return reflect.ValueOf(r.rd.Int32())
	case reflect.Int64:
		return reflect.ValueOf(r.rd.Int64())
	case reflect.Uint, reflect.Uintptr:
		return reflect.ValueOf(uint(r.rd.Uint64())).Convert(rt)
	case reflect.Uint8:
		return reflect.ValueOf(r.rd.Uint8())
	case reflect.Uint16:
		return reflect.ValueOf(r.rd.Uint16())
	case reflect.Uint32:
		return reflect.ValueOf(r.rd.Uint32())
	case reflect.Uint64:
		return reflect.ValueOf(r.rd.Uint64())
	case reflect.Float32:
		return reflect.ValueOf(r.rd.Float32())
	case reflect.Float64:
		return reflect.ValueOf(r.rd.Float64())
	case reflect.String:
		return reflect.ValueOf(r.rd.String())
	default:
		r.rd.SetError(InvariantViolation{Reason: fmt.Sprintf("unhandled kind %v", rt.Kind())})
		return reflect.Zero(rt)
	}
}

func (r *Reader) skipPrimitive(kind reflect.Kind) {
	switch kind {
	case reflect.Bool:
		r.rd.Bool()
	case reflect.Int8:
		r.rd.Int8()
	case reflect.Int16:
		r.rd.Int16()
	case reflect.Int32:
		r.rd.Int32()
	case reflect.Int, reflect.Int64:
		r.rd.Int64()
	case reflect.Uint8:
		r.rd.Uint8()
	case reflect.Uint16:
		r.rd.Uint16()
	case reflect.Uint32:
		r.rd.Uint32()
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		r.rd.Uint64()
	case reflect.Float32:
		r.rd.Float32()
	case reflect.Float64:
		r.rd.Float64()
	case reflect.String:
		_ = r.rd.String()
	default:
		r.rd.SetError(InvariantViolation{Reason: fmt.Sprintf("cannot skip unhandled kind %v", kind)})
	}
}

// restoreSurrogate converts a decoded surrogate value back to its original
// shape via Settings.RestoreSurrogates, if a matching entry exists for rt
// (spec.md §4.2's symmetric use of the swap table).
func (r *Reader) restoreSurrogate(rt reflect.Type, v reflect.Value) reflect.Value {
	if r.st.RestoreSurrogates == nil || rt == nil {
		return v
	}
	fn, ok := r.st.RestoreSurrogates.Find(rt)
	if !ok {
		return v
	}
	restored, err := fn(v.Interface())
	if err != nil {
		r.rd.SetError(fmt.Errorf("graph: restore surrogate for %s: %w", rt, err))
		return v
	}
	return reflect.ValueOf(restored)
}
