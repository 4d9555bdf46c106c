package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rendis/lienzo/pkg/schema"
)

var colorRe = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,4}|#[0-9A-Fa-f]{6}|#[0-9A-Fa-f]{8}|(rgb|rgba|hsl|hsla)\([^)]*\)|[A-Za-z]+)$`)

// isColorVariable reports whether a theme variable holds a colour.
func isColorVariable(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "color") || strings.HasSuffix(lower, "bkg") || lower == "background"
}

// validateThemeSemantics checks what the catalog schema cannot express:
// duplicate ids, shadowed built-ins and malformed colour values.
func validateThemeSemantics(themes []schema.ThemeSpec, builtins map[string]bool) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]int, len(themes))
	for i, th := range themes {
		path := fmt.Sprintf("themes[%d]", i)
		if first, dup := seen[th.ID]; dup {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate theme id %q (first defined at themes[%d])", th.ID, first))
			continue
		}
		seen[th.ID] = i

		if builtins[th.ID] {
			result.AddWarning(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("theme %q replaces the built-in theme", th.ID))
		}

		// Sort for deterministic output.
		names := make([]string, 0, len(th.Variables))
		for name := range th.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := strings.TrimSpace(th.Variables[name])
			if isColorVariable(name) && !colorRe.MatchString(value) {
				result.AddError(fmt.Sprintf("%s.variables.%s", path, name), schema.ErrCodeValidation,
					fmt.Sprintf("theme %q: %s is not a colour: %q", th.ID, name, value))
			}
		}
	}

	return result
}
