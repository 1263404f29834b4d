// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"reflect"
	"testing"
)

func TestWrap(t *testing.T) {
	base := New("base failure")
	wrapped := Wrap(base, "loading snapshot")

	if wrapped.Error() != "loading snapshot: base failure" {
		t.Errorf("unexpected message: %q", wrapped.Error())
	}
	if !Is(wrapped, base) {
		t.Error("wrapped error should match base via errors.Is")
	}
}

func TestWrap_NilError(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestWrapf(t *testing.T) {
	base := New("boom")
	wrapped := Wrapf(base, "executing tool %s", "echo")

	if wrapped.Error() != "executing tool echo: boom" {
		t.Errorf("unexpected message: %q", wrapped.Error())
	}
}

func TestPredicates(t *testing.T) {
	notFound := Wrap(&NotFoundError{Resource: "tool", ID: "x"}, "dispatch")
	validation := Wrap(&ValidationError{Field: "f", Message: "m"}, "dispatch")
	registration := &RegistrationError{Reason: "missing handler"}
	config := &ConfigError{Reason: "bad yaml"}

	if !IsNotFound(notFound) || IsNotFound(validation) {
		t.Error("IsNotFound misclassified")
	}
	if !IsValidation(validation) || IsValidation(notFound) {
		t.Error("IsValidation misclassified")
	}
	if !IsRegistration(registration) || IsRegistration(config) {
		t.Error("IsRegistration misclassified")
	}
	if !IsConfig(config) || IsConfig(registration) {
		t.Error("IsConfig misclassified")
	}
}

func TestViolatingFields(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "multiple fields",
			err:  &ValidationError{Field: "a", Fields: []string{"a", "b"}, Message: "m"},
			want: []string{"a", "b"},
		},
		{
			name: "single field",
			err:  &ValidationError{Field: "a", Message: "m"},
			want: []string{"a"},
		},
		{
			name: "no fields",
			err:  &ValidationError{Message: "m"},
			want: nil,
		},
		{
			name: "not a validation error",
			err:  New("plain"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ViolatingFields(tt.err)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ViolatingFields() = %v, want %v", got, tt.want)
			}
		})
	}
}
