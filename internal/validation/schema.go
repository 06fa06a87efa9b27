// Package validation checks run spec YAML against an embedded JSON schema
// before any evaluation work starts.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// runSpecSchema is the compiled JSON Schema for run spec files.
var runSpecSchema *jsonschema.Schema

const runSpecSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Run spec",
  "type": "object",
  "required": ["services", "samples"],
  "properties": {
    "name": {"type": "string"},
    "services": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "base_url", "shape"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "base_url": {"type": "string", "minLength": 1},
          "shape": {"enum": ["structured", "simple", "flat", "stream"]},
          "max_scenarios": {"type": "integer", "minimum": 0},
          "params": {"type": "object"}
        }
      }
    },
    "samples": {
      "type": "object",
      "required": ["path"],
      "properties": {
        "path": {"type": "string", "minLength": 1},
        "limit": {"type": "integer", "minimum": 0}
      }
    },
    "combination": {
      "type": "object",
      "required": ["top_scenarios", "top_recommendations_per_scenario"],
      "properties": {
        "top_scenarios": {"type": "integer", "minimum": 1},
        "top_recommendations_per_scenario": {"type": "integer", "minimum": 1},
        "label": {"type": "string"}
      }
    },
    "strategy": {"type": "object"},
    "concurrency": {"type": "integer", "minimum": 1},
    "max_retries": {"type": "integer", "minimum": 0},
    "call_timeout_sec": {"type": "integer", "minimum": 1},
    "combination_budget_sec": {"type": "integer", "minimum": 1},
    "run_ceiling_sec": {"type": "integer", "minimum": 1},
    "judge": {
      "type": "object",
      "properties": {
        "mode": {"enum": ["exact", "model"]},
        "model": {"type": "string"},
        "base_url": {"type": "string"},
        "api_key_env": {"type": "string"},
        "cache_dir": {"type": "string"}
      }
    },
    "export": {
      "type": "object",
      "properties": {
        "dir": {"type": "string"},
        "csv": {"type": "boolean"},
        "workbook": {"type": "boolean"}
      }
    }
  }
}`

func init() {
	runSpecSchema = mustCompileSchema(runSpecSchemaJSON, "runspec.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateRunSpecFile validates a run spec YAML file at the given path.
func ValidateRunSpecFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run spec: %w", err)
	}
	return ValidateRunSpecBytes(data), nil
}

// ValidateRunSpecBytes validates raw YAML bytes against the run spec schema.
// A nil return means the document is valid.
func ValidateRunSpecBytes(data []byte) []string {
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}

	err := runSpecSchema.Validate(convertToJSONCompatible(yamlDoc))
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// convertToJSONCompatible converts YAML-decoded values to JSON-compatible
// types. yaml.v3 decodes mappings to map[string]any already; this walks
// nested containers.
func convertToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = convertToJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = convertToJSONCompatible(v2)
		}
		return result
	default:
		return val
	}
}
