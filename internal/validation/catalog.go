package validation

import (
	"encoding/json"

	"github.com/rendis/lienzo/pkg/schema"
)

// ThemeCatalogValidator runs the two-stage catalog pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (duplicates, shadowed built-ins, colour values)
type ThemeCatalogValidator struct {
	jsonSchema *JSONSchemaValidator
	builtins   map[string]bool
}

// NewThemeCatalogValidator creates a ThemeCatalogValidator. builtinIDs are
// the ids a catalog entry would shadow.
func NewThemeCatalogValidator(builtinIDs ...string) (*ThemeCatalogValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	builtins := make(map[string]bool, len(builtinIDs))
	for _, id := range builtinIDs {
		builtins[id] = true
	}
	return &ThemeCatalogValidator{jsonSchema: jsv, builtins: builtins}, nil
}

// Validate checks a decoded catalog document and returns every issue.
// Structural errors short-circuit the semantic stage.
func (v *ThemeCatalogValidator) Validate(doc any) *schema.ValidationResult {
	result := validateStructural(v.jsonSchema.ValidateThemeCatalog(doc))
	if !result.Valid() {
		return result
	}

	var catalog struct {
		Themes []schema.ThemeSpec `json:"themes"`
	}
	b, err := json.Marshal(doc)
	if err == nil {
		err = json.Unmarshal(b, &catalog)
	}
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	result.Merge(validateThemeSemantics(catalog.Themes, v.builtins))
	return result
}

// validateStructural converts a JSON Schema error into a ValidationResult.
func validateStructural(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	le, ok := schema.AsLienzoError(err)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if le.Details != nil {
		if violations, ok := le.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, le.Message)
	return result
}
