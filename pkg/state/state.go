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

// Package state holds the accumulated state of one conversation.
//
// A State is an open mapping from field name to value. Steps never replace
// it wholesale: each step returns a partial update that is merged field by
// field, so a later step observes every field an earlier step wrote unless
// it overwrites that field itself.
package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// TempPrefix marks keys that live only for the duration of a single run or
// resume call. They are visible to steps but never written to a checkpoint.
const TempPrefix = "temp:"

// DecisionKey carries the caller's decision into the step that is resumed
// after an interrupt.
const DecisionKey = TempPrefix + "decision"

// State is the accumulated field set of one conversation.
type State map[string]any

// New returns a State holding a deep copy of fields.
func New(fields map[string]any) State {
	if fields == nil {
		return State{}
	}
	return State(copyMap(fields))
}

// Clone returns a deep copy of s. Nested maps and slices are copied so that
// a step mutating its input cannot leak into the stored state.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return State(copyMap(s))
}

// Merge returns a new State with update applied on top of s.
// Fields present in update overwrite the same fields in s; every other field
// of s is kept.
func (s State) Merge(update State) State {
	out := s.Clone()
	for k, v := range update {
		out[k] = copyValue(v)
	}
	return out
}

// Get returns the raw value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// Has reports whether key is present and non-nil.
func (s State) Has(key string) bool {
	v, ok := s[key]
	return ok && v != nil
}

// String returns the value under key as a string, or "" when absent.
// Non-string values are formatted with %v.
func (s State) String(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// Bool returns the value under key as a bool. Strings "true", "yes" and "1"
// count as true.
func (s State) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// Map returns the nested mapping stored under key, or nil.
func (s State) Map(key string) map[string]any {
	switch v := s[key].(type) {
	case map[string]any:
		return v
	case State:
		return v
	}
	return nil
}

// Strings returns the sequence stored under key as strings.
func (s State) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			} else if item != nil {
				out = append(out, fmt.Sprintf("%v", item))
			}
		}
		return out
	}
	return nil
}

// Keys returns the field names of s in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Persistable returns a copy of s without temp-prefixed keys.
func (s State) Persistable() State {
	out := make(State, len(s))
	for k, v := range s {
		if strings.HasPrefix(k, TempPrefix) {
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

// Without returns a copy of s with the given keys removed.
func (s State) Without(keys ...string) State {
	out := s.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Decode copies the fields of src into out, which must be a pointer to a
// struct or map. Field names follow the json struct tags of out.
func Decode(src any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(src); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	return nil
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case State:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}
