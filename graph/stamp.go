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

	"github.com/binarygraph/vomgraph/typeinfo"
	"github.com/binarygraph/vomgraph/wire"
)

// structureNeeded implements spec.md §4.6's "structure-stamp necessity
// rule": stamps are emitted for user types whose binary representation is
// not fully implied by the type name alone. When
// treatCollectionsAsUserObjects is set (the TreatCollectionAsUserObject
// knob), slices, arrays and maps get a structure stamp as well. The
// descriptors Writer builds for these kinds have no base type and no
// fields, so that stamp is empty (base slot 0, field count 0) and does not
// record an element or key type.
func structureNeeded(td *typeinfo.TypeDescriptor, treatCollectionsAsUserObjects bool) bool {
	if len(td.Fields) > 0 || td.Base != nil {
		return true
	}
	if treatCollectionsAsUserObjects {
		switch td.Kind {
		case reflect.Slice, reflect.Array, reflect.Map:
			return true
		}
	}
	return false
}

// writeAssemblyStamp writes the assembly stamp body (name, 4×i32 version,
// culture, token length+bytes, 16-byte module GUID), per spec.md §6.
func writeAssemblyStamp(w wire.Writer, a *typeinfo.AssemblyDescriptor) {
	w.String(a.Name)
	w.Int32(a.Version.Major)
	w.Int32(a.Version.Minor)
	w.Int32(a.Version.Build)
	w.Int32(a.Version.Revision)
	culture := a.Culture
	if culture == "" {
		culture = "neutral"
	}
	w.String(culture)
	w.Uint8(uint8(len(a.Token)))
	if len(a.Token) > 0 {
		w.Data(a.Token)
	}
	var guid wire.GUID
	copy(guid[:], a.ModuleID[:])
	w.GUID(guid)
}

// readAssemblyStamp is the mirror of writeAssemblyStamp.
func readAssemblyStamp(r wire.Reader) *typeinfo.AssemblyDescriptor {
	a := &typeinfo.AssemblyDescriptor{}
	a.Name = r.String()
	a.Version.Major = r.Int32()
	a.Version.Minor = r.Int32()
	a.Version.Build = r.Int32()
	a.Version.Revision = r.Int32()
	a.Culture = r.String()
	tokenLen := r.Uint8()
	if tokenLen > 0 {
		a.Token = make([]byte, tokenLen)
		r.Data(a.Token)
	}
	g := r.GUID()
	copy(a.ModuleID[:], g[:])
	return a
}
