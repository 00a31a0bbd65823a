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

// Package typeinfo implements the type registry: assembly, type and field
// descriptors, and the process-wide cache that memoizes them, per spec.md
// §3 and §4.3.
package typeinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// neutralCulture is the canonical form written and compared for an unset
// culture tag. spec.md §9 flags the source's culture handling as
// ambiguous ("formats the culture field as literal 'neutral' ... but reads
// and writes the actual culture name"); this repository picks "neutral" as
// the canonical form for both the empty case and documents it here as part
// of the wire contract (see DESIGN.md, Open Question 1).
const neutralCulture = "neutral"

// Version is a four-part assembly version, matching the .NET-style
// major.minor.build.revision identity spec.md §3 requires.
type Version struct {
	Major, Minor, Build, Revision int32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// AssemblyDescriptor identifies a compilation unit: name, version, culture,
// an optional 8-byte public-key-token, and a 128-bit module unique id.
type AssemblyDescriptor struct {
	Name    string
	Version Version
	Culture string    // "" is canonicalized to neutralCulture on read.
	Token   []byte    // len(Token) is 0 or 8.
	ModuleID uuid.UUID

	aqn string // cached AssemblyQualifiedName
}

// NewAssemblyDescriptor builds a descriptor, assigning a fresh random
// module id. Callers that need a stable module id across builds (e.g. to
// satisfy AllowGuidChange == false) should set ModuleID explicitly instead.
func NewAssemblyDescriptor(name string, version Version) *AssemblyDescriptor {
	return &AssemblyDescriptor{
		Name:     name,
		Version:  version,
		ModuleID: uuid.New(),
	}
}

func (a *AssemblyDescriptor) culture() string {
	if a.Culture == "" {
		return neutralCulture
	}
	return a.Culture
}

// Validate enforces the token-length invariant from spec.md §3.
func (a *AssemblyDescriptor) Validate() error {
	if len(a.Token) != 0 && len(a.Token) != 8 {
		return fmt.Errorf("typeinfo: public key token must be 0 or 8 bytes, got %d", len(a.Token))
	}
	return nil
}

// AssemblyQualifiedName is a pure function of the descriptor's fields; two
// descriptors are equal iff their AQNs are equal (spec.md invariant 6).
func (a *AssemblyDescriptor) AssemblyQualifiedName() string {
	if a.aqn == "" {
		a.aqn = fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%x, Module=%s",
			a.Name, a.Version, a.culture(), a.Token, a.ModuleID)
	}
	return a.aqn
}

// Equal reports whether a and b have the same AssemblyQualifiedName.
func (a *AssemblyDescriptor) Equal(b *AssemblyDescriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AssemblyQualifiedName() == b.AssemblyQualifiedName()
}
