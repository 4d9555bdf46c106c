package identity

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/rendis/lienzo/internal/scene"
)

// skipText lists tags whose text is metadata rather than a visible label.
var skipText = map[string]bool{
	"title":  true,
	"desc":   true,
	"style":  true,
	"script": true,
}

// ExtractText returns the visible label of e. Text inside embedded
// foreignObject blocks wins over plain text leaves. Fragments are trimmed,
// deduplicated and joined with single spaces. Returns "" when e has no text.
func ExtractText(e *scene.Element) string {
	if e == nil {
		return ""
	}
	var rich []string
	e.Walk(func(n *scene.Element) bool {
		if skipText[n.Tag] {
			return false
		}
		if n.Tag == "foreignObject" {
			rich = append(rich, leaves(n)...)
			return false
		}
		return true
	})
	if len(rich) > 0 {
		return joinUnique(rich)
	}
	return joinUnique(leaves(e))
}

func leaves(e *scene.Element) []string {
	var out []string
	e.Walk(func(n *scene.Element) bool {
		if skipText[n.Tag] {
			return false
		}
		if n.IsText() {
			if t := strings.Join(strings.Fields(n.Text), " "); t != "" {
				out = append(out, t)
			}
		}
		return true
	})
	return out
}

func joinUnique(parts []string) string {
	seen := make(map[string]bool, len(parts))
	out := parts[:0:0]
	for _, p := range parts {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return strings.Join(out, " ")
}

var (
	placeholderTags = []language.Tag{
		language.English,
		language.Spanish,
		language.French,
		language.German,
		language.Portuguese,
	}
	placeholders = []string{
		"Unnamed node",
		"Nodo sin nombre",
		"Nœud sans nom",
		"Unbenannter Knoten",
		"Nó sem nome",
	}
	placeholderMatcher = language.NewMatcher(placeholderTags)
)

// Placeholder returns the "unnamed node" label for the closest supported
// locale. Unknown or empty locales fall back to English.
func Placeholder(locale string) string {
	_, idx := language.MatchStrings(placeholderMatcher, locale)
	if idx < 0 || idx >= len(placeholders) {
		return placeholders[0]
	}
	return placeholders[idx]
}
