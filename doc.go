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

// Package vomgraph serializes arbitrary Go object graphs to a compact
// binary form that preserves pointer and slice/map identity across cycles,
// tolerates independently-evolving type schemas between the writer and the
// reader, and allows user types to substitute a surrogate representation
// of themselves at the wire boundary.
//
// The package is a thin caller-facing wrapper around four independent
// subsystems: wire (the primitive codec), typeinfo (type/field/assembly
// descriptors and their process-wide cache), tolerance (the stamp
// comparator that reconciles a persisted type shape against the running
// program's shape) and identity (the dense object-id tables), all driven
// by graph.Writer/graph.Reader.
package vomgraph
