package validation

import "github.com/rendis/lienzo/pkg/schema"

// Validator checks configuration documents before they are used.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateThemeCatalog(doc any) error
	ValidateSettings(doc any) error
}

// SourceChecker reports problems in diagram source.
type SourceChecker interface {
	CheckSource(source string) *schema.ValidationResult
}
