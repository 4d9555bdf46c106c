package identity

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/lienzo/internal/scene"
)

// DecorationPrefix marks presentation classes added by the overlay layer.
// They never take part in identity.
const DecorationPrefix = "lienzo-"

// DefaultIDAttr is the attribute holding an explicit, author-assigned id.
const DefaultIDAttr = "data-id"

// generatedMarker matches class tokens renderers emit as per-pass
// disambiguators, such as "node3" or "flowchart-A-12".
var generatedMarker = regexp.MustCompile(`^[A-Za-z]+[-_]?\d+$|[-_]\d+$`)

// StructuralMarkers returns e's class tokens without decoration classes and
// render-generated disambiguators.
func StructuralMarkers(e *scene.Element) []string {
	var out []string
	for _, c := range e.Classes() {
		if strings.HasPrefix(c, DecorationPrefix) || generatedMarker.MatchString(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Signature is the string hashed into a stable id: tag, filtered markers,
// normalized text content and direct child count.
func Signature(e *scene.Element) string {
	text := strings.Join(strings.Fields(e.TextContent()), " ")
	return strings.Join([]string{
		e.Tag,
		strings.Join(StructuralMarkers(e), " "),
		text,
		strconv.Itoa(len(e.ElementChildren())),
	}, "|")
}

// StableID returns the explicit id carried in idAttr, or "node-" followed by
// the base36 FNV-1a hash of the element's signature. Identical siblings
// with identical text share an id.
func StableID(e *scene.Element, idAttr string) string {
	if idAttr != "" {
		if v, ok := e.Attr(idAttr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(Signature(e)))
	return "node-" + strconv.FormatUint(uint64(h.Sum32()), 36)
}
