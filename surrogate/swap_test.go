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

package surrogate

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type base struct{ V int }
type derived struct{ base }

func TestAddOrReplaceUpdatesExistingEntry(t *testing.T) {
	var tbl Table
	calls := 0
	require.NoError(t, tbl.AddOrReplace(reflect.TypeOf(base{}), func(v any) (any, error) {
		calls++
		return v, nil
	}))
	require.NoError(t, tbl.AddOrReplace(reflect.TypeOf(base{}), func(v any) (any, error) {
		calls += 100
		return v, nil
	}))
	fn, ok := tbl.Find(reflect.TypeOf(base{}))
	require.True(t, ok)
	_, _ = fn(base{})
	require.Equal(t, 100, calls)
}

func TestFindPicksMostDerivedAssignableType(t *testing.T) {
	var tbl Table
	require.NoError(t, tbl.AddOrReplace(reflect.TypeOf(base{}), func(v any) (any, error) { return "base", nil }))
	require.NoError(t, tbl.AddOrReplace(reflect.TypeOf(derived{}), func(v any) (any, error) { return "derived", nil }))
	fn, ok := tbl.Find(reflect.TypeOf(derived{}))
	require.True(t, ok)
	got, _ := fn(nil)
	require.Equal(t, "derived", got)
}

func TestFindReturnsFalseWhenNoMatch(t *testing.T) {
	var tbl Table
	require.NoError(t, tbl.AddOrReplace(reflect.TypeOf(base{}), func(v any) (any, error) { return v, nil }))
	_, ok := tbl.Find(reflect.TypeOf(42))
	require.False(t, ok)
}

func TestAddOrReplaceFailsAfterFirstUse(t *testing.T) {
	var tbl Table
	require.NoError(t, tbl.AddOrReplace(reflect.TypeOf(base{}), func(v any) (any, error) { return v, nil }))
	_, _ = tbl.Find(reflect.TypeOf(base{}))
	err := tbl.AddOrReplace(reflect.TypeOf(derived{}), func(v any) (any, error) { return v, nil })
	require.ErrorIs(t, err, IllegalStateAfterUse{})
}
