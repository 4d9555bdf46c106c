package scene

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/lienzo/pkg/schema"
)

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y, W, H float64
}

// RectFromCorners builds a normalized rectangle from two opposite corners.
func RectFromCorners(x1, y1, x2, y2 float64) Rect {
	return Rect{
		X: math.Min(x1, x2),
		Y: math.Min(y1, y2),
		W: math.Abs(x2 - x1),
		H: math.Abs(y2 - y1),
	}
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p schema.Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Intersects reports whether r and o are not fully separated on either axis.
func (r Rect) Intersects(o Rect) bool {
	return !(r.Right() < o.X || o.Right() < r.X || r.Bottom() < o.Y || o.Bottom() < r.Y)
}

// Union returns the smallest rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	x := math.Min(r.X, o.X)
	y := math.Min(r.Y, o.Y)
	return Rect{X: x, Y: y, W: math.Max(r.Right(), o.Right()) - x, H: math.Max(r.Bottom(), o.Bottom()) - y}
}

// bbox accumulates points into a bounding rectangle.
type bbox struct {
	minX, minY, maxX, maxY float64
	ok                     bool
}

func (b *bbox) add(x, y float64) {
	if !b.ok {
		b.minX, b.maxX, b.minY, b.maxY, b.ok = x, x, y, y, true
		return
	}
	b.minX = math.Min(b.minX, x)
	b.maxX = math.Max(b.maxX, x)
	b.minY = math.Min(b.minY, y)
	b.maxY = math.Max(b.maxY, y)
}

func (b *bbox) addRect(r Rect) {
	b.add(r.X, r.Y)
	b.add(r.Right(), r.Bottom())
}

func (b *bbox) rect() (Rect, bool) {
	if !b.ok {
		return Rect{}, false
	}
	return Rect{X: b.minX, Y: b.minY, W: b.maxX - b.minX, H: b.maxY - b.minY}, true
}

// Matrix is a 2D affine transform in SVG order:
// x' = A*x + C*y + E, y' = B*x + D*y + F.
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity is the neutral transform.
var Identity = Matrix{A: 1, D: 1}

// Mul returns m·n, the transform applying n first and m second.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

// Apply transforms a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// ApplyRect transforms all four corners of r and returns their bounds.
func (m Matrix) ApplyRect(r Rect) Rect {
	var b bbox
	for _, c := range [][2]float64{{r.X, r.Y}, {r.Right(), r.Y}, {r.X, r.Bottom()}, {r.Right(), r.Bottom()}} {
		b.add(m.Apply(c[0], c[1]))
	}
	out, _ := b.rect()
	return out
}

var (
	transformRe = regexp.MustCompile(`([a-zA-Z]+)\s*\(([^)]*)\)`)
	numberRe    = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)
)

// numbers extracts every numeric literal from s.
func numbers(s string) []float64 {
	matches := numberRe.FindAllString(s, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// ParseTransform parses an SVG transform list. Unknown functions are ignored.
func ParseTransform(s string) Matrix {
	m := Identity
	for _, match := range transformRe.FindAllStringSubmatch(s, -1) {
		args := numbers(match[2])
		var t Matrix
		switch strings.ToLower(match[1]) {
		case "translate":
			if len(args) == 0 {
				continue
			}
			t = Matrix{A: 1, D: 1, E: args[0]}
			if len(args) > 1 {
				t.F = args[1]
			}
		case "scale":
			if len(args) == 0 {
				continue
			}
			sy := args[0]
			if len(args) > 1 {
				sy = args[1]
			}
			t = Matrix{A: args[0], D: sy}
		case "rotate":
			if len(args) == 0 {
				continue
			}
			rad := args[0] * math.Pi / 180
			cos, sin := math.Cos(rad), math.Sin(rad)
			t = Matrix{A: cos, B: sin, C: -sin, D: cos}
			if len(args) >= 3 {
				cx, cy := args[1], args[2]
				t = Matrix{A: 1, D: 1, E: cx, F: cy}.Mul(t).Mul(Matrix{A: 1, D: 1, E: -cx, F: -cy})
			}
		case "matrix":
			if len(args) < 6 {
				continue
			}
			t = Matrix{A: args[0], B: args[1], C: args[2], D: args[3], E: args[4], F: args[5]}
		default:
			continue
		}
		m = m.Mul(t)
	}
	return m
}

// pathBounds returns the bounds of every endpoint and control point in an SVG
// path. Arcs contribute their endpoints only.
func pathBounds(d string) (Rect, bool) {
	var b bbox
	for _, seg := range ParsePath(d) {
		for _, p := range seg.Points {
			b.add(p.X, p.Y)
		}
	}
	return b.rect()
}

type pathToken struct {
	isCmd bool
	cmd   byte
	num   float64
}

func tokenizePath(d string) []pathToken {
	var toks []pathToken
	for i := 0; i < len(d); {
		c := d[i]
		switch {
		case strings.IndexByte("MmLlHhVvCcSsQqTtAaZz", c) >= 0:
			toks = append(toks, pathToken{isCmd: true, cmd: c})
			i++
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			loc := numberRe.FindStringIndex(d[i:])
			if loc == nil || loc[0] != 0 {
				i++
				continue
			}
			if f, err := strconv.ParseFloat(d[i:i+loc[1]], 64); err == nil {
				toks = append(toks, pathToken{num: f})
			}
			i += loc[1]
		default:
			i++
		}
	}
	return toks
}
