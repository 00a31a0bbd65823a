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
	"bytes"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/binarygraph/vomgraph/identity"
	"github.com/binarygraph/vomgraph/typeinfo"
)

type leaf struct {
	Value int
}

type node struct {
	Name string
	Next *node
	Tags []string
	Meta map[string]int
}

// boxed carries pointer-to-primitive and pointer-to-collection fields, so
// a field's static type has Kind Ptr while the type stamp it reads names
// the pointee's own Kind (Int, Slice, Map) directly.
type boxed struct {
	Count *int
	Words *[]string
	Tally *map[string]int
}

func testAssembly() *typeinfo.AssemblyDescriptor {
	return typeinfo.NewAssemblyDescriptor("roundtrip-test", typeinfo.Version{Major: 1})
}

func settingsFor(_ any) Settings {
	return Settings{
		Assembly:              testAssembly(),
		ReferencePreservation: identity.Preserve,
	}
}

// typeFullName mirrors typeinfo's unexported fullName: package path plus
// type name, falling back to the type's String form for unnamed types.
func typeFullName(t reflect.Type) string {
	if pkg := t.PkgPath(); pkg != "" {
		return pkg + "." + t.Name()
	}
	return t.String()
}

func withTypes(s Settings, samples ...any) Settings {
	if s.Types == nil {
		s.Types = map[string]reflect.Type{}
	}
	for _, v := range samples {
		rt := reflect.TypeOf(v)
		s.Types[typeFullName(rt)] = rt
	}
	return s
}

func TestWriterReaderRoundTripSharedTypeID(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, leaf{})

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(leaf{Value: 1}))
	require.NoError(t, w.Serialize(leaf{Value: 2}))
	require.NoError(t, w.Error())

	r := NewReader(&buf, s)
	v1, err := r.Deserialize()
	require.NoError(t, err)
	v2, err := r.Deserialize()
	require.NoError(t, err)
	require.Equal(t, leaf{Value: 1}, v1)
	require.Equal(t, leaf{Value: 2}, v2)
}

func TestWriterReaderRoundTripCycle(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, node{})

	a := &node{Name: "a"}
	b := &node{Name: "b"}
	a.Next = b
	b.Next = a

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(a))
	require.NoError(t, w.Error())

	r := NewReader(&buf, s)
	got, err := r.Deserialize()
	require.NoError(t, err)

	gotA, ok := got.(*node)
	require.True(t, ok)
	require.Equal(t, "a", gotA.Name)
	require.Equal(t, "b", gotA.Next.Name)
	require.Same(t, gotA, gotA.Next.Next)
}

func TestWriterReaderRoundTripPointerToPrimitiveAndCollectionFields(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, boxed{})

	count := 3
	words := []string{"a", "b"}
	tally := map[string]int{"x": 1}
	in := boxed{Count: &count, Words: &words, Tally: &tally}

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(in))
	require.NoError(t, w.Error())

	r := NewReader(&buf, s)
	got, err := r.Deserialize()
	require.NoError(t, err)

	out, ok := got.(boxed)
	require.True(t, ok)
	require.Equal(t, 3, *out.Count)
	require.Equal(t, []string{"a", "b"}, *out.Words)
	require.Equal(t, map[string]int{"x": 1}, *out.Tally)
}

func TestUseBufferingRoundTripsAndPadsBetweenOperations(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, leaf{})
	s.UseBuffering = true

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(leaf{Value: 1}))
	firstLen := buf.Len()
	require.Zero(t, firstLen%64, "buffer length after first operation should land on a block boundary")

	require.NoError(t, w.Serialize(leaf{Value: 2}))
	require.NoError(t, w.Error())
	require.Zero(t, buf.Len()%64, "buffer length after second operation should land on a block boundary")

	r := NewReader(&buf, s)
	v1, err := r.Deserialize()
	require.NoError(t, err)
	v2, err := r.Deserialize()
	require.NoError(t, err)
	require.Equal(t, leaf{Value: 1}, v1)
	require.Equal(t, leaf{Value: 2}, v2)
}

func TestHeaderBytesMatchInvariant(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, leaf{})
	s.ReferencePreservation = identity.Preserve

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(leaf{Value: 1}))

	b := buf.Bytes()
	require.GreaterOrEqual(t, len(b), 5)
	require.Equal(t, magic[0], b[0])
	require.Equal(t, magic[1], b[1])
	require.Equal(t, magic[2], b[2])
	require.Equal(t, currentVersion, b[3])
	require.Equal(t, byte(1), b[4])
}

func TestSerializationIsByteDeterministic(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, node{})

	v := &node{Name: "root", Tags: []string{"x", "y"}, Meta: map[string]int{"b": 2, "a": 1, "c": 3}}

	var buf1, buf2 bytes.Buffer
	require.NoError(t, NewWriter(&buf1, s).Serialize(v))
	require.NoError(t, NewWriter(&buf2, s).Serialize(v))
	require.Equal(t, buf1.Bytes(), buf2.Bytes())
}

func TestOpenStreamWritesOnlyOneHeader(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, leaf{})

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(leaf{Value: 1}))
	require.NoError(t, w.Serialize(leaf{Value: 2}))
	require.NoError(t, w.Serialize(leaf{Value: 3}))

	r := NewReader(&buf, s)
	for i := 1; i <= 3; i++ {
		v, err := r.Deserialize()
		require.NoError(t, err)
		require.Equal(t, leaf{Value: i}, v)
	}
}

func TestDoNotPreserveDropsIdentitiesBetweenOperations(t *testing.T) {
	s := settingsFor(nil)
	s = withTypes(s, node{})
	s.ReferencePreservation = identity.DoNotPreserve

	shared := &node{Name: "shared"}

	var buf bytes.Buffer
	w := NewWriter(&buf, s)
	require.NoError(t, w.Serialize(shared))
	require.NoError(t, w.Serialize(shared))

	r := NewReader(&buf, s)
	first, err := r.Deserialize()
	require.NoError(t, err)
	second, err := r.Deserialize()
	require.NoError(t, err)
	require.NotSame(t, first.(*node), second.(*node))
	require.Equal(t, first.(*node).Name, second.(*node).Name)
}

func TestRejectsWrongMagic(t *testing.T) {
	s := settingsFor(nil)
	bad := []byte{0x00, 0x00, 0x00, currentVersion, 0}
	r := NewReader(bytes.NewReader(bad), s)
	_, err := r.Deserialize()
	require.Error(t, err)
	var wm WrongMagic
	require.ErrorAs(t, err, &wm)
}

func TestRejectsWrongVersion(t *testing.T) {
	s := settingsFor(nil)
	bad := []byte{magic[0], magic[1], magic[2], 99, 0}
	r := NewReader(bytes.NewReader(bad), s)
	_, err := r.Deserialize()
	require.Error(t, err)
	var wv WrongVersion
	require.ErrorAs(t, err, &wv)
}
