package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/lienzo/pkg/schema"
)

const (
	themeCatalogSchemaURL = "https://lienzo.dev/schemas/themes.json"
	settingsSchemaURL     = "https://lienzo.dev/schemas/settings.json"
)

// themeCatalogSchemaJSON is the JSON Schema for theme catalog documents.
// Embedded as a constant to avoid filesystem dependencies.
const themeCatalogSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://lienzo.dev/schemas/themes.json",
  "type": "object",
  "required": ["themes"],
  "properties": {
    "themes": {
      "type": "array",
      "items": { "$ref": "#/$defs/theme" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "theme": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {
          "type": "string",
          "pattern": "^[A-Za-z][A-Za-z0-9_-]*$"
        },
        "base": {
          "type": "string",
          "enum": ["default", "dark", "forest", "neutral", "base"]
        },
        "variables": {
          "type": "object",
          "propertyNames": { "pattern": "^[A-Za-z][A-Za-z0-9]*$" },
          "additionalProperties": { "type": "string" }
        }
      },
      "additionalProperties": false
    }
  }
}`

// settingsSchemaJSON is the JSON Schema for ~/.lienzo/settings.json.
const settingsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://lienzo.dev/schemas/settings.json",
  "type": "object",
  "properties": {
    "listen_addr": { "type": "string" },
    "db_path": { "type": "string", "minLength": 1 },
    "log_level": { "type": "string", "enum": ["debug", "info", "warn", "error"] },
    "renderer": { "type": "string", "enum": ["graphviz", "mermaid-cli"] },
    "mermaid_cli_path": { "type": "string" },
    "mermaid_ascii_dir": { "type": "string" },
    "theme": { "type": "string", "minLength": 1 },
    "theme_catalog": { "type": "string" },
    "locale": { "type": "string" },
    "viewport_width": { "type": "number", "exclusiveMinimum": 0 },
    "viewport_height": { "type": "number", "exclusiveMinimum": 0 },
    "autosave_cron": { "type": "string" },
    "vacuum_cron": { "type": "string" },
    "watch_file": { "type": "string" },
    "session": { "type": "string" },
    "classifier_rules": {
      "type": "object",
      "properties": {
        "node": { "type": "string" },
        "edge_label": { "type": "string" }
      },
      "additionalProperties": false
    },
    "mcp": { "type": "boolean" }
  },
  "additionalProperties": false
}`

// JSONSchemaValidator validates lienzo documents using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	themeCatalog *jsonschema.Schema
	settings     *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with every schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, doc := range map[string]string{
		themeCatalogSchemaURL: themeCatalogSchemaJSON,
		settingsSchemaURL:     settingsSchemaJSON,
	} {
		schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, schemaDoc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	catalog, err := c.Compile(themeCatalogSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile theme catalog schema: %w", err)
	}
	settings, err := c.Compile(settingsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}

	return &JSONSchemaValidator{themeCatalog: catalog, settings: settings}, nil
}

// ValidateThemeCatalog validates a decoded theme catalog document.
func (v *JSONSchemaValidator) ValidateThemeCatalog(doc any) error {
	return v.validate(v.themeCatalog, doc, "theme catalog")
}

// ValidateSettings validates a decoded settings document.
func (v *JSONSchemaValidator) ValidateSettings(doc any) error {
	return v.validate(v.settings, doc, "settings")
}

func (v *JSONSchemaValidator) validate(s *jsonschema.Schema, doc any, what string) error {
	if doc == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s is nil", what)
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "failed to serialize %s", what).WithCause(err)
	}
	if err := s.Validate(value); err != nil {
		return toLienzoError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
// YAML documents decode map keys as strings, so they survive the trip.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toLienzoError converts a jsonschema.ValidationError into a LienzoError
// listing every leaf violation.
func toLienzoError(err error) *schema.LienzoError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
