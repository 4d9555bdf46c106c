package scene

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	defaultFontSize = 14.0
	// glyphAdvance approximates the average glyph width as a share of the
	// font size.
	glyphAdvance = 0.6
)

// nonRendering lists tags whose subtrees never contribute geometry.
var nonRendering = map[string]bool{
	"title":    true,
	"desc":     true,
	"defs":     true,
	"style":    true,
	"script":   true,
	"marker":   true,
	"clipPath": true,
	"mask":     true,
	"pattern":  true,
	"metadata": true,
}

// NonRendering reports whether elements with tag are never painted.
func NonRendering(tag string) bool {
	return nonRendering[tag]
}

// leafGeometry lists tags whose geometry already covers their descendants.
var leafGeometry = map[string]bool{
	"text":          true,
	"foreignObject": true,
}

func attrFloat(e *Element, name string) float64 {
	v, ok := e.Attr(name)
	if !ok {
		return 0
	}
	nums := numbers(v)
	if len(nums) == 0 {
		return 0
	}
	return nums[0]
}

// LocalTransform returns the transform declared on e itself.
func (e *Element) LocalTransform() Matrix {
	if t, ok := e.Attr("transform"); ok {
		return ParseTransform(t)
	}
	return Identity
}

// WorldTransform maps e's user space to root coordinates, including e's own
// transform.
func (e *Element) WorldTransform() Matrix {
	m := e.LocalTransform()
	for p := e.Parent; p != nil; p = p.Parent {
		m = p.LocalTransform().Mul(m)
	}
	return m
}

// OwnGeometry returns the bounds of the shape e draws itself, in e's user
// space. Containers and text nodes report false.
func (e *Element) OwnGeometry() (Rect, bool) {
	switch e.Tag {
	case "rect", "image", "foreignObject", "use":
		w, h := attrFloat(e, "width"), attrFloat(e, "height")
		if w <= 0 && h <= 0 {
			return Rect{}, false
		}
		return Rect{X: attrFloat(e, "x"), Y: attrFloat(e, "y"), W: w, H: h}, true
	case "circle":
		r := attrFloat(e, "r")
		return Rect{X: attrFloat(e, "cx") - r, Y: attrFloat(e, "cy") - r, W: 2 * r, H: 2 * r}, true
	case "ellipse":
		rx, ry := attrFloat(e, "rx"), attrFloat(e, "ry")
		return Rect{X: attrFloat(e, "cx") - rx, Y: attrFloat(e, "cy") - ry, W: 2 * rx, H: 2 * ry}, true
	case "line":
		return RectFromCorners(attrFloat(e, "x1"), attrFloat(e, "y1"), attrFloat(e, "x2"), attrFloat(e, "y2")), true
	case "polygon", "polyline":
		nums := numbers(e.AttrOr("points", ""))
		var b bbox
		for i := 0; i+1 < len(nums); i += 2 {
			b.add(nums[i], nums[i+1])
		}
		return b.rect()
	case "path":
		return pathBounds(e.AttrOr("d", ""))
	case "text":
		return textGeometry(e)
	}
	return Rect{}, false
}

// textGeometry estimates the box of a text element from its anchor point,
// font size and rune count.
func textGeometry(e *Element) (Rect, bool) {
	content := strings.TrimSpace(e.TextContent())
	if content == "" {
		return Rect{}, false
	}
	size := defaultFontSize
	for n := e; n != nil; n = n.Parent {
		if v, ok := n.Attr("font-size"); ok {
			if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64); err == nil && f > 0 {
				size = f
				break
			}
		}
	}
	x, y := attrFloat(e, "x"), attrFloat(e, "y")
	w := float64(utf8.RuneCountInString(content)) * size * glyphAdvance
	switch e.AttrOr("text-anchor", "start") {
	case "middle":
		x -= w / 2
	case "end":
		x -= w
	}
	return Rect{X: x, Y: y - size*0.8, W: w, H: size}, true
}

// contentBounds returns the union of e's own geometry and its descendants'
// geometry, in e's user space.
func (e *Element) contentBounds() (Rect, bool) {
	if nonRendering[e.Tag] || e.IsText() {
		return Rect{}, false
	}
	var b bbox
	if r, ok := e.OwnGeometry(); ok {
		b.addRect(r)
	}
	if !leafGeometry[e.Tag] {
		for _, c := range e.Children {
			if r, ok := c.contentBounds(); ok {
				b.addRect(c.LocalTransform().ApplyRect(r))
			}
		}
	}
	return b.rect()
}

// Bounds returns e's bounds, descendants included, in root coordinates.
func (e *Element) Bounds() (Rect, bool) {
	r, ok := e.contentBounds()
	if !ok {
		return Rect{}, false
	}
	return e.WorldTransform().ApplyRect(r), true
}
