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

package vomgraph

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/binarygraph/vomgraph/identity"
	"github.com/binarygraph/vomgraph/typeinfo"
)

type record struct {
	Name string
	Next *record
	Tags []string
}

func testSettings(samples ...any) Settings {
	s := Settings{
		Assembly:              typeinfo.NewAssemblyDescriptor("vomgraph-test", typeinfo.Version{Major: 1}),
		ReferencePreservation: identity.Preserve,
	}
	s.Types = map[string]reflect.Type{}
	for _, v := range samples {
		rt := reflect.TypeOf(v)
		var name string
		if pkg := rt.PkgPath(); pkg != "" {
			name = pkg + "." + rt.Name()
		} else {
			name = rt.String()
		}
		s.Types[name] = rt
	}
	return s
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := testSettings(record{})

	in := record{Name: "a", Tags: []string{"x", "y"}}
	data, err := Marshal(in, s)
	require.NoError(t, err)

	var out record
	require.NoError(t, Unmarshal(data, &out, s))
	require.Equal(t, in, out)
}

func TestUnmarshalRejectsNonPointerDestination(t *testing.T) {
	s := testSettings(record{})
	data, err := Marshal(record{Name: "a"}, s)
	require.NoError(t, err)

	var out record
	err = Unmarshal(data, out, s)
	require.Error(t, err)
}

func TestCloneProducesDeepIndependentCopy(t *testing.T) {
	s := testSettings(record{})

	original := &record{Name: "root", Tags: []string{"x"}}
	original.Next = original

	cloned, err := Clone(original, s)
	require.NoError(t, err)

	clone, ok := cloned.(*record)
	require.True(t, ok)
	require.Equal(t, "root", clone.Name)
	require.NotSame(t, original, clone)
	require.Same(t, clone, clone.Next)

	clone.Tags[0] = "mutated"
	require.Equal(t, "x", original.Tags[0])
}

func TestStreamWriterReaderCarryMultipleValues(t *testing.T) {
	s := testSettings(record{})

	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, s)
	require.NoError(t, err)
	require.NoError(t, sw.Write(record{Name: "one"}))
	require.NoError(t, sw.Write(record{Name: "two"}))
	require.NoError(t, sw.Close())

	sr, err := NewStreamReader(&buf, s)
	require.NoError(t, err)
	v1, err := sr.Read()
	require.NoError(t, err)
	v2, err := sr.Read()
	require.NoError(t, err)
	require.Equal(t, record{Name: "one"}, v1)
	require.Equal(t, record{Name: "two"}, v2)
}

func TestErrorSurrogateRoundTripsThroughMessageText(t *testing.T) {
	s := testSettings()
	s.SupportForErrorSurrogate = true

	type withErr struct {
		Err error
	}
	s = withTypesRoot(s, withErr{}, wireError{})

	in := withErr{Err: errors.New("boom")}
	data, err := Marshal(in, s)
	require.NoError(t, err)

	var out withErr
	require.NoError(t, Unmarshal(data, &out, s))
	require.EqualError(t, out.Err, "boom")
}

func withTypesRoot(s Settings, samples ...any) Settings {
	if s.Types == nil {
		s.Types = map[string]reflect.Type{}
	}
	for _, v := range samples {
		rt := reflect.TypeOf(v)
		var name string
		if pkg := rt.PkgPath(); pkg != "" {
			name = pkg + "." + rt.Name()
		} else {
			name = rt.String()
		}
		s.Types[name] = rt
	}
	return s
}
