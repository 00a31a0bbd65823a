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

// Package graph implements the object writer and object reader: the
// traversal engine that drives identity tracking, type stamping, surrogate
// substitution and version-tolerant decoding described in spec.md §4.6/§4.7.
package graph

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/binarygraph/vomgraph/identity"
	"github.com/binarygraph/vomgraph/surrogate"
	"github.com/binarygraph/vomgraph/tolerance"
	"github.com/binarygraph/vomgraph/typeinfo"
)

// SerializationMethod selects between the interpreted reflection walk and
// a cached closure walker, per spec.md §6. This repository has no
// code-generation step (spec.md §9 Design Notes flags the source
// codegen path for re-architecture), so Generated is implemented as a
// process-wide cache of resolved field index paths (compiled.go), built
// the first time each (type, field) pair is seen, rather than literal code
// emission.
type SerializationMethod int

const (
	Reflection SerializationMethod = iota
	Generated
)

// Settings is the caller-supplied configuration consumed by the core
// (spec.md §6). It is a plain struct, not a config-file/CLI surface,
// matching spec.md's explicit exclusion of CLI concerns.
type Settings struct {
	ReferencePreservation    identity.Preservation
	SerializationMethod      SerializationMethod
	DeserializationMethod    SerializationMethod
	TreatCollectionAsUserObject bool
	UseBuffering             bool
	VersionTolerance         tolerance.Flags

	// Assembly identifies the calling program's own compilation unit, used
	// as the Assembly of every runtime-resolved TypeDescriptor.
	Assembly *typeinfo.AssemblyDescriptor

	// Cache is the process-wide type descriptor cache; defaults to
	// typeinfo.Global when nil.
	Cache *typeinfo.Cache

	// ObjectSurrogates / RestoreSurrogates are the write-side and read-side
	// swap tables (spec.md §4.2): ObjectSurrogates maps a declared type to
	// a function producing its surrogate; RestoreSurrogates maps a
	// surrogate's declared type back to the original.
	ObjectSurrogates  *surrogate.Table
	RestoreSurrogates *surrogate.Table

	// Hooks fire once per unique object per traversal (spec.md §9
	// "Callbacks as events", replaced with a single callable per phase).
	PreSerialize     func(v any)
	PostSerialize    func(v any)
	PostDeserialize  func(v any)

	// Types resolves a stream-side full name to a live reflect.Type when
	// decoding. TypeResolver is consulted when Types has no entry; together
	// they stand in for an assembly loader (spec.md §4.7 "locate the live
	// type named by the stamp").
	Types        map[string]reflect.Type
	TypeResolver func(fullName string) (reflect.Type, error)

	// SupportForErrorSurrogate installs a built-in surrogate translating
	// any Go error value to and from its message text, the closest analogue
	// this repository has to the framework-interface surrogates spec.md §6
	// names (ISerializable/IXmlSerializable). Installed by the vomgraph
	// entry layer, not by graph itself.
	SupportForErrorSurrogate bool

	Log *zap.Logger
}

func (s Settings) resolveType(fullName string) (reflect.Type, error) {
	if rt, ok := s.Types[fullName]; ok {
		return rt, nil
	}
	if s.TypeResolver != nil {
		return s.TypeResolver(fullName)
	}
	return nil, AssemblyResolveFailure{Name: fullName}
}

func (s Settings) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s Settings) cache() *typeinfo.Cache {
	if s.Cache == nil {
		return typeinfo.Global
	}
	return s.Cache
}

// Header is the 5-byte stream preamble from spec.md §6.
type Header struct {
	Version             uint8
	PreserveReferences  bool
}

var magic = [3]byte{0x32, 0x66, 0x34}

const currentVersion uint8 = 7
