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

package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects T into an object schema with inlined properties.
//
// Supported tags: json name and omitempty, jsonschema required,
// description, default, enum, minimum and maximum.
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	if full["type"] != "object" {
		delete(full, "$schema")
		delete(full, "$id")
		return full, nil
	}

	out := map[string]any{"type": "object", "properties": full["properties"]}
	if out["properties"] == nil {
		out["properties"] = map[string]any{}
	}
	if required, ok := full["required"]; ok {
		out["required"] = required
	}
	if additional, ok := full["additionalProperties"]; ok {
		out["additionalProperties"] = additional
	}
	return out, nil
}
