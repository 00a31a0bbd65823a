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
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
)

// Cache is the process-wide type descriptor cache: insert-only, safe for
// concurrent use, keyed by reflect.Type. Grounded on
// framework/binary/registry/registry.go's Namespace map-of-signature, but
// backed by xsync's MapOf for lock-free LoadOrStore rather than a plain
// map guarded by no concurrency control at all, since descriptors here
// are built concurrently at request time rather than once at init (spec.md
// §5).
type Cache struct {
	byType *xsync.MapOf[reflect.Type, *TypeDescriptor]
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{byType: xsync.NewMapOf[reflect.Type, *TypeDescriptor]()}
}

func (c *Cache) get(t reflect.Type) (*TypeDescriptor, bool) {
	return c.byType.Load(t)
}

// put inserts td for t if absent, never overwriting an existing entry
// (insert-once semantics, spec.md §5 "insert-only").
func (c *Cache) put(t reflect.Type, td *TypeDescriptor) {
	c.byType.LoadOrStore(t, td)
}

// Global is the default process-wide cache, analogous to
// framework/binary/registry's registry.Global.
var Global = NewCache()
