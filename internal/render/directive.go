package render

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rendis/lienzo/pkg/schema"
)

// directiveRe matches an init directive anywhere in the source, including
// directives spanning several lines.
var directiveRe = regexp.MustCompile(`(?s)%%\{\s*init\s*:.*?\}%%`)

// Directive is the payload of an init directive.
type Directive struct {
	Theme          string            `json:"theme"`
	ThemeVariables map[string]string `json:"themeVariables,omitempty"`
}

// StripDirectives removes every init directive from source. Lines left
// empty by the removal are dropped; other blank lines are kept.
func StripDirectives(source string) string {
	if !directiveRe.MatchString(source) {
		return source
	}
	const mark = "\x00"
	marked := directiveRe.ReplaceAllString(source, mark)
	lines := strings.Split(marked, "\n")
	out := lines[:0]
	for _, line := range lines {
		if !strings.Contains(line, mark) {
			out = append(out, line)
			continue
		}
		if rest := strings.ReplaceAll(line, mark, ""); strings.TrimSpace(rest) != "" {
			out = append(out, rest)
		}
	}
	return strings.Join(out, "\n")
}

// ApplyTheme strips existing directives and prepends exactly one for theme
// as the first line.
func ApplyTheme(source string, theme schema.ThemeSpec) (string, error) {
	base := theme.Base
	if base == "" {
		base = theme.ID
	}
	payload, err := json.Marshal(Directive{Theme: base, ThemeVariables: theme.Variables})
	if err != nil {
		return "", err
	}
	return "%%{init: " + string(payload) + "}%%\n" + StripDirectives(source), nil
}

// ParseDirective reads the first init directive in source. ok is false when
// there is none or its payload is not valid JSON.
func ParseDirective(source string) (d Directive, ok bool) {
	m := directiveRe.FindString(source)
	if m == "" {
		return Directive{}, false
	}
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(m, "%%"), "%%"))
	body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}"))
	body = strings.TrimSpace(strings.TrimPrefix(body, "init"))
	body = strings.TrimSpace(strings.TrimPrefix(body, ":"))
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		// Hand-written directives often use single quotes.
		if err := json.Unmarshal([]byte(strings.ReplaceAll(body, "'", `"`)), &d); err != nil {
			return Directive{}, false
		}
	}
	return d, true
}
