package expressions

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rendis/lienzo/pkg/schema"
)

// Interpolate resolves ${{path}} tokens in template against data, where
// path is a dot-delimited field path such as node.text or ref.nodeId.
// Strings are embedded verbatim; other values as JSON.
func Interpolate(template string, data map[string]any) (string, error) {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}
		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeExpression, "unclosed ${{ expression")
		}
		end += start

		path := strings.TrimSpace(template[start:end])
		if strings.Contains(path, "${{") {
			return "", schema.NewError(schema.ErrCodeExpression,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}
		if path == "" {
			return "", schema.NewError(schema.ErrCodeExpression, "empty variable reference: ${{  }}")
		}

		val, err := traversePath(data, path)
		if err != nil {
			return "", err
		}
		result.WriteString(marshalInline(val))
		i = end + 2
	}
	return result.String(), nil
}

// FormatReferences renders every reference through template with the
// reference available as ref and its 1-based position as index.
func FormatReferences(template string, refs []schema.NodeReference) ([]string, error) {
	out := make([]string, 0, len(refs))
	for i, r := range refs {
		line, err := Interpolate(template, map[string]any{
			"ref": map[string]any{
				"nodeId":   r.NodeID,
				"nodeText": r.NodeText,
				"nodeType": string(r.NodeType),
			},
			"index": i + 1,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

// traversePath navigates nested maps along a dot-delimited path.
func traversePath(root map[string]any, path string) (any, error) {
	var current any = root
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"empty segment in path %q at position %d", path, i).
				WithDetails(map[string]any{"expression": path})
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, path, current).
				WithDetails(map[string]any{"expression": path})
		}
		val, ok := m[seg]
		if !ok {
			available := slices.Sorted(maps.Keys(m))
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"field %q not found in %q; available: [%s]", seg, path, strings.Join(available, ", ")).
				WithDetails(map[string]any{"expression": path, "available_fields": available})
		}
		current = val
	}
	return current, nil
}

// marshalInline converts a resolved value to its inline text form.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
