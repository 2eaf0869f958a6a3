// Copyright 2025 Kadir Pekel
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

package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Kind is the expected shape of a state field.
type Kind string

const (
	KindAny    Kind = "any"
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindNumber Kind = "number"
	KindMap    Kind = "map"
	KindList   Kind = "list"
)

// KeySpec documents one field a step reads or writes.
type KeySpec struct {
	Name        string
	Kind        Kind
	Required    bool
	Description string
}

// Key is shorthand for an optional KeySpec.
func Key(name string, kind Kind) KeySpec {
	return KeySpec{Name: name, Kind: kind}
}

// RequiredKey is shorthand for a required KeySpec.
func RequiredKey(name string, kind Kind) KeySpec {
	return KeySpec{Name: name, Kind: kind, Required: true}
}

// FieldError describes one field that did not match its KeySpec.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("state field %q: %s", e.Key, e.Reason)
}

// Validate checks st against specs. All violations are reported together.
func Validate(st State, specs ...KeySpec) error {
	var errs []error
	for _, spec := range specs {
		v, ok := st[spec.Name]
		if !ok || v == nil {
			if spec.Required {
				errs = append(errs, &FieldError{Key: spec.Name, Reason: "required field is missing"})
			}
			continue
		}
		if !matches(spec.Kind, v) {
			errs = append(errs, &FieldError{
				Key:    spec.Name,
				Reason: fmt.Sprintf("expected %s, got %T", spec.Kind, v),
			})
		}
	}
	return errors.Join(errs...)
}

func matches(kind Kind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
			return true
		}
		return false
	case KindMap:
		switch v.(type) {
		case map[string]any, State:
			return true
		}
		return false
	case KindList:
		switch v.(type) {
		case []any, []string, []map[string]any:
			return true
		}
		return false
	default:
		return true
	}
}

// Schema renders specs as a JSON schema object, for documentation and for
// clients that build initial state.
func Schema(specs []KeySpec) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	var required []string
	for _, spec := range specs {
		props.Set(spec.Name, &jsonschema.Schema{
			Type:        jsonType(spec.Kind),
			Description: spec.Description,
		})
		if spec.Required {
			required = append(required, spec.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func jsonType(kind Kind) string {
	switch kind {
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindMap:
		return "object"
	case KindList:
		return "array"
	default:
		return ""
	}
}
