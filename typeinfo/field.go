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

// FieldDescriptor describes one field of a TypeDescriptor: the type that
// declared it, its name, its own type descriptor, whether it is transient
// (never written to the stream), and whether it is instead recreated by
// the target's construction logic (spec.md §3/§4.3).
type FieldDescriptor struct {
	DeclaringType        string
	Name                  string
	Type                  *TypeDescriptor
	Transient             bool
	ConstructorRecreated  bool
}

// Key identifies a field for read-plan and comparator lookups: (declaring
// type, name), per spec.md §3's Identity column for FieldDescriptor.
type Key struct {
	DeclaringType string
	Name          string
}

func (f *FieldDescriptor) Key() Key {
	return Key{DeclaringType: f.DeclaringType, Name: f.Name}
}
