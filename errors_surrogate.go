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
	"reflect"

	"github.com/pkg/errors"

	"github.com/binarygraph/vomgraph/surrogate"
)

// wireError is the surrogate shape any error value is reduced to on the
// wire when Settings.SupportForErrorSurrogate is set; it carries only the
// message text, since the dynamic error type underneath is frequently
// unexported (errors.errorString, fmt.wrapError) and has nothing else
// worth preserving across a process boundary.
type wireError struct {
	Text string
}

func (e wireError) Error() string { return e.Text }

var errorInterfaceType = reflect.TypeOf((*error)(nil)).Elem()
var wireErrorType = reflect.TypeOf(wireError{})

// installErrorSurrogate registers the built-in error<->wireError surrogate
// into s's swap tables, creating them if the caller left them nil. It is a
// no-op when SupportForErrorSurrogate is unset. Tables the caller supplied
// receive the entries too; if such a table has already been used,
// AddOrReplace fails with surrogate.IllegalStateAfterUse and that error is
// returned.
func installErrorSurrogate(s *Settings) error {
	if !s.SupportForErrorSurrogate {
		return nil
	}
	if s.ObjectSurrogates == nil {
		s.ObjectSurrogates = &surrogate.Table{}
	}
	if err := s.ObjectSurrogates.AddOrReplace(errorInterfaceType, func(v any) (any, error) {
		e, ok := v.(error)
		if !ok {
			return nil, errors.Errorf("vomgraph: %T does not implement error", v)
		}
		return wireError{Text: e.Error()}, nil
	}); err != nil {
		return err
	}
	if s.RestoreSurrogates == nil {
		s.RestoreSurrogates = &surrogate.Table{}
	}
	return s.RestoreSurrogates.AddOrReplace(wireErrorType, func(v any) (any, error) {
		we, ok := v.(wireError)
		if !ok {
			return nil, errors.Errorf("vomgraph: %T is not a wireError", v)
		}
		return error(we), nil
	})
}
