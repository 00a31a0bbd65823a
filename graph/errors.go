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

import "fmt"

// Error kinds from spec.md §7. None are swallowed; each aborts the current
// operation and is reported to the caller.

type WrongMagic struct{ Got [3]byte }

func (e WrongMagic) Error() string { return fmt.Sprintf("graph: wrong magic bytes %x", e.Got) }

type WrongVersion struct{ Got uint8 }

func (e WrongVersion) Error() string { return fmt.Sprintf("graph: wrong stream version %d", e.Got) }

// StreamCorrupted wraps an unexpected EOF, malformed length prefix, unknown
// type-tag byte, or impossible id.
type StreamCorrupted struct{ Reason string }

func (e StreamCorrupted) Error() string { return "graph: stream corrupted: " + e.Reason }

// AssemblyResolveFailure is returned when a named assembly cannot be
// located while resolving a stream-side TypeDescriptor.
type AssemblyResolveFailure struct{ Name string }

func (e AssemblyResolveFailure) Error() string {
	return fmt.Sprintf("graph: cannot resolve assembly %q", e.Name)
}

// InvariantViolation signals an internal self-check failure, e.g. bytes
// written not equal to bytes consumed during a deep-clone round trip, or
// an attempt to serialize a hard-rejected kind (func/chan).
type InvariantViolation struct{ Reason string }

func (e InvariantViolation) Error() string { return "graph: invariant violation: " + e.Reason }
