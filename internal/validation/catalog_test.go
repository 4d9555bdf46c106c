package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemeCatalogValidator(t *testing.T) {
	v, err := NewThemeCatalogValidator("default", "dark")
	require.NoError(t, err)

	doc := map[string]any{"themes": []any{
		map[string]any{"id": "ocean", "base": "dark", "variables": map[string]any{
			"primaryColor": "#036",
			"lineColor":    "rgb(10, 20, 30)",
			"clusterBkg":   "lightblue",
			"fontFamily":   "Inter, sans-serif",
		}},
		map[string]any{"id": "dark", "base": "dark"},
	}}
	result := v.Validate(doc)
	assert.True(t, result.Valid(), "%+v", result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "themes[1].id", result.Warnings[0].Path)
}

func TestThemeCatalogValidator_SemanticErrors(t *testing.T) {
	v, err := NewThemeCatalogValidator()
	require.NoError(t, err)

	result := v.Validate(map[string]any{"themes": []any{
		map[string]any{"id": "a", "variables": map[string]any{"primaryColor": "#12345", "background": "not a colour"}},
		map[string]any{"id": "a"},
	}})
	require.False(t, result.Valid())
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "themes[0].variables.background", result.Errors[0].Path)
	assert.Equal(t, "themes[0].variables.primaryColor", result.Errors[1].Path)
	assert.Contains(t, result.Errors[2].Message, "duplicate theme id")
	assert.Error(t, result.ToError())
}

func TestThemeCatalogValidator_StructuralShortCircuit(t *testing.T) {
	v, err := NewThemeCatalogValidator()
	require.NoError(t, err)

	result := v.Validate(map[string]any{"themes": "nope"})
	require.False(t, result.Valid())
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, "/", result.Errors[0].Path)
}
