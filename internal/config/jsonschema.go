package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema is the JSON Schema every config document must satisfy before
// decoding. It catches structural mistakes (wrong types, unknown statistical
// types) with instance paths; semantic rules live in Validate.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["experiment", "metrics"],
  "properties": {
    "experiment": {
      "type": "object",
      "required": ["id", "startDate", "branches"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "startDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
        "endDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
        "branches": {
          "type": "array",
          "minItems": 2,
          "items": {"type": "string", "minLength": 1}
        },
        "controlBranch": {"type": "string"},
        "enrollmentCriteria": {"type": "string"}
      }
    },
    "metrics": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "type", "aggregation"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["binary", "count", "continuous"]},
          "aggregation": {"enum": ["exists", "count", "sum", "mean", "min", "max"]},
          "valuePath": {"type": "string"},
          "absenceDefault": {"enum": ["zero", "missing"]},
          "minSampleSize": {"type": "integer", "minimum": 0}
        }
      }
    },
    "analysis": {
      "type": "object",
      "properties": {
        "confidenceLevel": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
        "resamples": {"type": "integer", "minimum": 1},
        "defaultMinSampleSize": {"type": "integer", "minimum": 0},
        "maxConcurrentWindows": {"type": "integer", "minimum": 0},
        "maxConcurrentResamples": {"type": "integer", "minimum": 0},
        "queryTimeout": {"type": "string"}
      }
    }
  }
}`

// ValidateDocument checks a raw config document against the embedded JSON
// Schema. YAML documents are decoded to a generic tree first so the same
// schema covers both formats.
func ValidateDocument(data []byte, path string) error {
	var doc interface{}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
		doc = normalizeYAML(doc)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("config schema validation failed: %s", flattenSchemaError(verr))
		}
		return fmt.Errorf("config schema validation failed: %w", err)
	}
	return nil
}

// normalizeYAML converts yaml.v3's map[string]interface{} trees into the
// shapes the jsonschema package expects. yaml.v3 may also produce
// map[interface{}]interface{} for exotic keys (stringified here) and
// resolves unquoted date scalars to time.Time (turned back into strings).
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		if t.Equal(t.Truncate(24 * time.Hour)) {
			return t.Format(dateLayout)
		}
		return t.Format(time.RFC3339)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

// flattenSchemaError collects leaf validation messages with their instance
// locations into a single line.
func flattenSchemaError(err *jsonschema.ValidationError) string {
	var parts []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", e.InstanceLocation, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(err)
	return strings.Join(parts, "; ")
}
