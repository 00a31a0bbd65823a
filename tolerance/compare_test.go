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

package tolerance

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/binarygraph/vomgraph/typeinfo"
)

func field(name, typeName string) *typeinfo.FieldDescriptor {
	return &typeinfo.FieldDescriptor{
		DeclaringType: "T",
		Name:          name,
		Type:          &typeinfo.TypeDescriptor{FullName: typeName},
	}
}

func asmWithGUID(id uuid.UUID) *typeinfo.AssemblyDescriptor {
	return &typeinfo.AssemblyDescriptor{Name: "a", ModuleID: id}
}

func TestCompareIdenticalGUIDSkipsComparison(t *testing.T) {
	id := uuid.New()
	prev := &typeinfo.TypeDescriptor{FullName: "T", Assembly: asmWithGUID(id), Fields: []*typeinfo.FieldDescriptor{field("X", "int")}}
	cur := &typeinfo.TypeDescriptor{FullName: "T", Assembly: asmWithGUID(id), Fields: []*typeinfo.FieldDescriptor{field("X", "int"), field("Y", "int")}}
	plan, err := Compare(prev, cur, 0, nil)
	require.NoError(t, err)
	require.Len(t, plan, 2) // identity path reflects cur's shape, not a diff.
}

// S3 Schema add: {x:1} -> {x:1, y:0}.
func TestScenarioS3FieldAddition(t *testing.T) {
	prev := &typeinfo.TypeDescriptor{
		FullName: "T", Assembly: asmWithGUID(uuid.New()),
		Fields: []*typeinfo.FieldDescriptor{field("x", "int")},
	}
	cur := &typeinfo.TypeDescriptor{
		FullName: "T", Assembly: asmWithGUID(uuid.New()),
		Fields: []*typeinfo.FieldDescriptor{field("x", "int"), field("y", "int")},
	}

	_, err := Compare(prev, cur, AllowGuidChange, nil)
	require.Error(t, err)
	var tsc *TypeStructureChanged
	require.ErrorAs(t, err, &tsc)
	require.Equal(t, "y", tsc.Field)

	plan, err := Compare(prev, cur, AllowGuidChange|AllowFieldAddition, nil)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, Read, plan[0].Tag)
	require.Equal(t, ConstructorInit, plan[1].Tag)
	require.Equal(t, "y", plan[1].Field.Name)
}

// S4 Schema remove: {x:1, y:2} -> {x:1}.
func TestScenarioS4FieldRemoval(t *testing.T) {
	prev := &typeinfo.TypeDescriptor{
		FullName: "T", Assembly: asmWithGUID(uuid.New()),
		Fields: []*typeinfo.FieldDescriptor{field("x", "int"), field("y", "int")},
	}
	cur := &typeinfo.TypeDescriptor{
		FullName: "T", Assembly: asmWithGUID(uuid.New()),
		Fields: []*typeinfo.FieldDescriptor{field("x", "int")},
	}

	_, err := Compare(prev, cur, AllowGuidChange, nil)
	require.Error(t, err)

	plan, err := Compare(prev, cur, AllowGuidChange|AllowFieldRemoval, nil)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, Read, plan[0].Tag)
	require.Equal(t, Skip, plan[1].Tag)
	require.Equal(t, "int", plan[1].Type.FullName)
}

func TestFieldTypeChangeIsAlwaysFatal(t *testing.T) {
	prev := &typeinfo.TypeDescriptor{
		FullName: "T", Assembly: asmWithGUID(uuid.New()),
		Fields: []*typeinfo.FieldDescriptor{field("x", "int")},
	}
	cur := &typeinfo.TypeDescriptor{
		FullName: "T", Assembly: asmWithGUID(uuid.New()),
		Fields: []*typeinfo.FieldDescriptor{field("x", "string")},
	}
	_, err := Compare(prev, cur, AllowGuidChange|AllowFieldAddition|AllowFieldRemoval, nil)
	require.Error(t, err)
	var tsc *TypeStructureChanged
	require.ErrorAs(t, err, &tsc)
	require.Equal(t, FieldsChanged, tsc.Kind)
}

func TestGuidChangeRequiresFlag(t *testing.T) {
	prev := &typeinfo.TypeDescriptor{FullName: "T", Assembly: asmWithGUID(uuid.New())}
	cur := &typeinfo.TypeDescriptor{FullName: "T", Assembly: asmWithGUID(uuid.New())}
	_, err := Compare(prev, cur, 0, nil)
	require.Error(t, err)
}
