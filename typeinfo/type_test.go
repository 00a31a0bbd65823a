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
	"testing"

	"github.com/stretchr/testify/require"
)

type innerT struct {
	X int
}

type outerT struct {
	innerT
	Y      string
	Hidden int `vom:"-"`
	Temp   int `vom:",transient"`
}

func testAssembly() *AssemblyDescriptor {
	return &AssemblyDescriptor{Name: "vomgraph_test", Version: Version{1, 0, 0, 0}}
}

func TestFromRuntimeTypeOrdersBaseFirst(t *testing.T) {
	cache := NewCache()
	td, err := FromRuntimeType(cache, reflect.TypeOf(outerT{}), testAssembly())
	require.NoError(t, err)
	require.Len(t, td.Fields, 3)
	require.Equal(t, "X", td.Fields[0].Name)
	require.Equal(t, "Y", td.Fields[1].Name)
	require.Equal(t, "Temp", td.Fields[2].Name)
	require.True(t, td.Fields[2].Transient)
	require.Len(t, td.NonTransientFields(), 2)
}

func TestFromRuntimeTypeMemoizes(t *testing.T) {
	cache := NewCache()
	a, err := FromRuntimeType(cache, reflect.TypeOf(outerT{}), testAssembly())
	require.NoError(t, err)
	b, err := FromRuntimeType(cache, reflect.TypeOf(outerT{}), testAssembly())
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestAssemblyQualifiedNameEquality(t *testing.T) {
	asm := testAssembly()
	a := &TypeDescriptor{FullName: "foo.Bar", Assembly: asm}
	b := &TypeDescriptor{FullName: "foo.Bar", Assembly: asm}
	require.True(t, a.Equal(b))
	c := &TypeDescriptor{FullName: "foo.Baz", Assembly: asm}
	require.False(t, a.Equal(c))
}

func TestCultureCanonicalizesToNeutral(t *testing.T) {
	asm := &AssemblyDescriptor{Name: "x", Version: Version{1, 0, 0, 0}}
	require.Contains(t, asm.AssemblyQualifiedName(), "Culture=neutral")
}

func TestAssemblyTokenLengthValidation(t *testing.T) {
	asm := &AssemblyDescriptor{Name: "x", Token: []byte{1, 2, 3}}
	require.Error(t, asm.Validate())
	asm.Token = make([]byte, 8)
	require.NoError(t, asm.Validate())
}
