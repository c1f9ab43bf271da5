// Package validator provides JSON schema validation for orchestration
// requests, pipeline templates and worker descriptors.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates inbound documents against embedded schemas.
type Validator struct {
	requestSchema  *jsonschema.Schema
	templateSchema *jsonschema.Schema
	workerSchema   *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err returns nil for a valid result, otherwise one error listing every failure.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Path+": "+e.Message)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// New creates a new validator with embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	resources := map[string]string{
		"orchestrate.json": requestSchemaJSON,
		"template.json":    templateSchemaJSON,
		"worker.json":      workerSchemaJSON,
	}
	for name, schema := range resources {
		if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
	}

	requestSchema, err := compiler.Compile("orchestrate.json")
	if err != nil {
		return nil, fmt.Errorf("compile orchestrate schema: %w", err)
	}
	templateSchema, err := compiler.Compile("template.json")
	if err != nil {
		return nil, fmt.Errorf("compile template schema: %w", err)
	}
	workerSchema, err := compiler.Compile("worker.json")
	if err != nil {
		return nil, fmt.Errorf("compile worker schema: %w", err)
	}

	return &Validator{
		requestSchema:  requestSchema,
		templateSchema: templateSchema,
		workerSchema:   workerSchema,
	}, nil
}

// ValidateRequestJSON validates a JSON-encoded orchestration request.
func (v *Validator) ValidateRequestJSON(data []byte) *ValidationResult {
	return v.validateJSON(v.requestSchema, data)
}

// ValidateTemplate validates a pipeline template. Any value that marshals to
// a JSON object is accepted, typically *types.PipelineTemplate.
func (v *Validator) ValidateTemplate(t any) *ValidationResult {
	return v.validateValue(v.templateSchema, t)
}

// ValidateWorker validates a worker descriptor.
func (v *Validator) ValidateWorker(w any) *ValidationResult {
	return v.validateValue(v.workerSchema, w)
}

func (v *Validator) validateValue(schema *jsonschema.Schema, value any) *ValidationResult {
	data, err := json.Marshal(value)
	if err != nil {
		return invalid("$", fmt.Sprintf("marshal: %v", err))
	}
	return v.validateJSON(schema, data)
}

func (v *Validator) validateJSON(schema *jsonschema.Schema, data []byte) *ValidationResult {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return invalid("$", fmt.Sprintf("invalid JSON: %v", err))
	}
	return v.validate(schema, doc)
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data any) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return &ValidationResult{Valid: false, Errors: extractErrors(verr)}
	}
	return invalid("$", err.Error())
}

func invalid(path, msg string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Path: path, Message: msg}},
	}
}

// extractErrors flattens the cause tree, keeping leaf messages.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	if len(verr.Causes) == 0 {
		path := verr.InstanceLocation
		if path == "" {
			path = "$"
		}
		return []ValidationError{{Path: path, Message: verr.Message}}
	}

	var out []ValidationError
	for _, cause := range verr.Causes {
		out = append(out, extractErrors(cause)...)
	}
	return out
}

// Embedded JSON schemas

const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "orchestrate.json",
  "title": "Orchestration Request",
  "type": "object",
  "required": ["topic"],
  "properties": {
    "topic": {
      "type": "string",
      "pattern": "\\S",
      "maxLength": 500
    },
    "pipeline_template": {
      "type": "string",
      "maxLength": 200
    },
    "source_discovery_depth": {
      "type": "integer",
      "minimum": 1,
      "maximum": 10
    },
    "max_articles": {
      "type": "integer",
      "minimum": 1,
      "maximum": 1000
    },
    "optimize_for": {
      "type": "string"
    }
  }
}`

const templateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "template.json",
  "title": "Pipeline Template",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z0-9_-]+$"
    },
    "display_name": {"type": "string"},
    "description": {"type": "string"},
    "category": {"type": "string"},
    "complexity_level": {"type": "string"},
    "estimated_duration_ms": {"type": "integer", "minimum": 0},
    "estimated_cost_usd": {"type": "number", "minimum": 0},
    "is_active": {"type": "boolean"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/step"}
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["step_order", "worker_name"],
      "properties": {
        "step_order": {"type": "integer", "minimum": 1},
        "worker_name": {"type": "string", "minLength": 1},
        "step_name": {"type": "string"},
        "is_optional": {"type": "boolean"},
        "conditions": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        },
        "input_mapping": {"type": "object"},
        "output_mapping": {
          "type": "object",
          "additionalProperties": {"type": "string", "pattern": "^\\$\\."}
        },
        "endpoint": {"type": "string", "pattern": "^/"},
        "method": {"type": "string", "pattern": "^(?i)(get|post)$"},
        "timeout_override_ms": {"type": "integer", "minimum": 0},
        "depends_on_steps": {
          "type": "array",
          "items": {"type": "integer"}
        }
      }
    }
  }
}`

const workerSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "worker.json",
  "title": "Worker Descriptor",
  "type": "object",
  "required": ["name", "binding_ref"],
  "properties": {
    "name": {"type": "string", "pattern": "^[a-z0-9_-]+$"},
    "display_name": {"type": "string"},
    "description": {"type": "string"},
    "binding_ref": {"type": "string", "minLength": 1},
    "endpoints": {
      "type": "array",
      "items": {"type": "string", "pattern": "^/"}
    },
    "default_method": {"type": "string", "pattern": "^(?i)(get|post)?$"},
    "timeout_ms": {"type": "integer", "minimum": 0},
    "is_active": {"type": "boolean"}
  }
}`
