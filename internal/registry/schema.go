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

package registry

import (
	"fmt"

	"github.com/tombee/blueprint/pkg/errors"
)

// Schema defines a tool's expected argument shape using JSON Schema
// conventions.
type Schema struct {
	// Type is the JSON type of the argument map, normally "object"
	Type string `json:"type"`

	// Properties defines the accepted arguments
	Properties map[string]*Property `json:"properties,omitempty"`

	// Required lists the argument names that must be present
	Required []string `json:"required,omitempty"`

	// Description provides human-readable context
	Description string `json:"description,omitempty"`
}

// Property defines a single argument in a schema.
type Property struct {
	// Type is the JSON type of this argument
	Type string `json:"type"`

	// Description explains what this argument represents
	Description string `json:"description,omitempty"`

	// Enum lists allowed values (for validation)
	Enum []interface{} `json:"enum,omitempty"`

	// Default provides a default value if not specified
	Default interface{} `json:"default,omitempty"`
}

// ObjectSchema builds an object schema from properties and required names.
func ObjectSchema(properties map[string]*Property, required ...string) *Schema {
	return &Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Validate checks args against the schema. Violations are reported with the
// specific violating fields, never a generic "bad input".
func (s *Schema) Validate(args map[string]interface{}) error {
	if s == nil {
		return nil
	}

	var violations []string
	var detail string

	for _, required := range s.Required {
		if _, present := args[required]; !present {
			violations = append(violations, required)
			if detail == "" {
				detail = fmt.Sprintf("missing required argument %q", required)
			}
		}
	}

	for name, value := range args {
		prop, known := s.Properties[name]
		if !known {
			continue
		}
		// JSON null never satisfies a declared type; report it here so
		// handlers can assert argument types without a nil check.
		if value == nil {
			violations = append(violations, name)
			if detail == "" {
				detail = fmt.Sprintf("argument %q must not be null", name)
			}
			continue
		}
		if !typeMatches(prop.Type, value) {
			violations = append(violations, name)
			if detail == "" {
				detail = fmt.Sprintf("argument %q must be of type %s", name, prop.Type)
			}
			continue
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
			violations = append(violations, name)
			if detail == "" {
				detail = fmt.Sprintf("argument %q must be one of %v", name, prop.Enum)
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}

	return &errors.ValidationError{
		Field:      violations[0],
		Fields:     violations,
		Message:    detail,
		Suggestion: "check the tool schema for required arguments and types",
	}
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, allowed := range enum {
		if allowed == value {
			return true
		}
	}
	return false
}

// typeMatches checks a decoded JSON value against a JSON Schema type name.
// Values arrive through encoding/json, so numbers are float64.
func typeMatches(schemaType string, value interface{}) bool {
	switch schemaType {
	case "", "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	}
	return true
}
