package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/rendis/lienzo/internal/scene"
)

// DefaultMaxDimension caps either side of a rasterized image, in pixels.
const DefaultMaxDimension = 8192

// ErrEmptyScene is returned when the scene has no measurable extent.
var ErrEmptyScene = errors.New("export: scene has no measurable extent")

// Rasterizer paints a scene onto a bitmap with gg. It understands the
// basic SVG shapes, paths, text and inherited presentation attributes;
// gradients, filters and clipping are ignored.
type Rasterizer struct {
	MaxDimension int

	once    sync.Once
	fontErr error
	regular *truetype.Font
	mono    *truetype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

type faceKey struct {
	mono bool
	size float64
}

// NewRasterizer creates a rasterizer with the default size cap.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{MaxDimension: DefaultMaxDimension}
}

func (r *Rasterizer) loadFonts() error {
	r.once.Do(func() {
		if r.regular, r.fontErr = truetype.Parse(goregular.TTF); r.fontErr != nil {
			return
		}
		r.mono, r.fontErr = truetype.Parse(gomono.TTF)
		r.faces = make(map[faceKey]font.Face)
	})
	return r.fontErr
}

func (r *Rasterizer) face(mono bool, size float64) font.Face {
	key := faceKey{mono: mono, size: math.Round(size*4) / 4}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[key]; ok {
		return f
	}
	ttf := r.regular
	if mono {
		ttf = r.mono
	}
	f := truetype.NewFace(ttf, &truetype.Options{
		Size:    key.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	r.faces[key] = f
	return f
}

// Rasterize renders sc at opts.Scale times its natural size and returns PNG
// bytes.
func (r *Rasterizer) Rasterize(ctx context.Context, sc *scene.Scene, opts Options) ([]byte, error) {
	if sc == nil || sc.Root == nil {
		return nil, ErrEmptyScene
	}
	if err := r.loadFonts(); err != nil {
		return nil, fmt.Errorf("export: load fonts: %w", err)
	}
	frame, ok := sceneFrame(sc)
	if !ok {
		return nil, ErrEmptyScene
	}

	s := opts.scale()
	w := int(math.Ceil(frame.W * s))
	h := int(math.Ceil(frame.H * s))
	limit := r.MaxDimension
	if limit <= 0 {
		limit = DefaultMaxDimension
	}
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyScene
	}
	if w > limit || h > limit {
		return nil, fmt.Errorf("export: %dx%d exceeds the %dpx limit", w, h, limit)
	}

	dc := gg.NewContext(w, h)
	if opts.Background != "" {
		bg, ok := parseColor(opts.Background)
		if !ok {
			return nil, fmt.Errorf("export: invalid background colour %q", opts.Background)
		}
		dc.SetColor(bg)
		dc.Clear()
	}

	p := &painter{
		r:    r,
		dc:   dc,
		ctx:  ctx,
		base: scene.Matrix{A: s, D: s, E: -frame.X * s, F: -frame.Y * s},
	}
	p.draw(sc.Root, defaultPaint())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("export: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// sceneFrame is the world rectangle mapped onto the image: the root viewBox
// when present, otherwise the measured bounds.
func sceneFrame(sc *scene.Scene) (scene.Rect, bool) {
	if vb, ok := sc.Root.Attr("viewBox"); ok {
		if r, ok := parseViewBox(vb); ok {
			return r, true
		}
	}
	r, ok := sc.Bounds(sc.Root)
	if !ok || r.W <= 0 || r.H <= 0 {
		return scene.Rect{}, false
	}
	return r, true
}

func parseViewBox(s string) (scene.Rect, bool) {
	f := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(f) != 4 {
		return scene.Rect{}, false
	}
	var v [4]float64
	for i, tok := range f {
		n, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return scene.Rect{}, false
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return scene.Rect{}, false
	}
	return scene.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, true
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// paint holds the inherited presentation attributes.
type paint struct {
	fill          string
	stroke        string
	strokeWidth   float64
	fillOpacity   float64
	strokeOpacity float64
	dash          string
	fontSize      float64
	fontFamily    string
	anchor        string
}

func defaultPaint() paint {
	return paint{
		fill:          "black",
		stroke:        "none",
		strokeWidth:   1,
		fillOpacity:   1,
		strokeOpacity: 1,
		fontSize:      14,
		anchor:        "start",
	}
}

// inherit layers e's attributes, then its style declarations, over p.
func (p paint) inherit(e *scene.Element) paint {
	for _, a := range e.Attrs {
		p.set(a.Name, a.Value)
	}
	if style, ok := e.Attr("style"); ok {
		for _, decl := range strings.Split(style, ";") {
			name, value, found := strings.Cut(decl, ":")
			if found {
				p.set(strings.TrimSpace(name), strings.TrimSpace(value))
			}
		}
	}
	return p
}

func (p *paint) set(name, value string) {
	switch name {
	case "fill":
		p.fill = value
	case "stroke":
		p.stroke = value
	case "stroke-width":
		if f, ok := leadingFloat(value); ok {
			p.strokeWidth = f
		}
	case "fill-opacity":
		if f, ok := leadingFloat(value); ok {
			p.fillOpacity = f
		}
	case "stroke-opacity":
		if f, ok := leadingFloat(value); ok {
			p.strokeOpacity = f
		}
	case "stroke-dasharray":
		p.dash = value
	case "font-size":
		if f, ok := leadingFloat(value); ok && f > 0 {
			p.fontSize = f
		}
	case "font-family":
		p.fontFamily = value
	case "text-anchor":
		p.anchor = value
	}
}

func leadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && strings.IndexByte("0123456789.-+eE", s[end]) >= 0 {
		end++
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	return f, err == nil
}

type painter struct {
	r    *Rasterizer
	dc   *gg.Context
	ctx  context.Context
	base scene.Matrix
}

func (p *painter) draw(e *scene.Element, inherited paint) {
	if e.IsText() || scene.NonRendering(e.Tag) || p.ctx.Err() != nil {
		return
	}
	if e.AttrOr("display", "") == "none" || e.AttrOr("visibility", "") == "hidden" {
		return
	}
	st := inherited.inherit(e)
	m := p.base.Mul(e.WorldTransform())

	switch e.Tag {
	case "rect":
		x, y := num(e, "x"), num(e, "y")
		w, h := num(e, "width"), num(e, "height")
		if w > 0 && h > 0 {
			p.polygon(m, [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}, true)
			p.finish(st, m)
		}
	case "circle":
		r := num(e, "r")
		if r > 0 {
			p.polygon(m, ellipsePoints(num(e, "cx"), num(e, "cy"), r, r), true)
			p.finish(st, m)
		}
	case "ellipse":
		rx, ry := num(e, "rx"), num(e, "ry")
		if rx > 0 && ry > 0 {
			p.polygon(m, ellipsePoints(num(e, "cx"), num(e, "cy"), rx, ry), true)
			p.finish(st, m)
		}
	case "line":
		p.polygon(m, [][2]float64{{num(e, "x1"), num(e, "y1")}, {num(e, "x2"), num(e, "y2")}}, false)
		st.fill = "none"
		p.finish(st, m)
	case "polyline", "polygon":
		pts := pointList(e.AttrOr("points", ""))
		if len(pts) >= 2 {
			p.polygon(m, pts, e.Tag == "polygon")
			p.finish(st, m)
		}
	case "path":
		if p.path(m, e.AttrOr("d", "")) {
			p.finish(st, m)
		}
	case "text":
		p.text(e, st, m)
		return
	}
	for _, c := range e.Children {
		p.draw(c, st)
	}
}

func (p *painter) polygon(m scene.Matrix, pts [][2]float64, closed bool) {
	p.dc.NewSubPath()
	for i, pt := range pts {
		x, y := m.Apply(pt[0], pt[1])
		if i == 0 {
			p.dc.MoveTo(x, y)
		} else {
			p.dc.LineTo(x, y)
		}
	}
	if closed {
		p.dc.ClosePath()
	}
}

func (p *painter) path(m scene.Matrix, d string) bool {
	segs := scene.ParsePath(d)
	if len(segs) == 0 {
		return false
	}
	for _, seg := range segs {
		pts := make([]float64, 0, 2*len(seg.Points))
		for _, pt := range seg.Points {
			x, y := m.Apply(pt.X, pt.Y)
			pts = append(pts, x, y)
		}
		switch seg.Op {
		case scene.PathMove:
			p.dc.NewSubPath()
			p.dc.MoveTo(pts[0], pts[1])
		case scene.PathLine:
			p.dc.LineTo(pts[0], pts[1])
		case scene.PathQuad:
			p.dc.QuadraticTo(pts[0], pts[1], pts[2], pts[3])
		case scene.PathCubic:
			p.dc.CubicTo(pts[0], pts[1], pts[2], pts[3], pts[4], pts[5])
		case scene.PathClose:
			p.dc.ClosePath()
		}
	}
	return true
}

// finish fills and strokes the current path with st and clears it.
func (p *painter) finish(st paint, m scene.Matrix) {
	fill, hasFill := parseColor(st.fill)
	stroke, hasStroke := parseColor(st.stroke)
	if hasFill {
		p.dc.SetColor(withAlpha(fill, st.fillOpacity))
		if hasStroke {
			p.dc.FillPreserve()
		} else {
			p.dc.Fill()
		}
	}
	if !hasStroke {
		p.dc.ClearPath()
		return
	}
	k := scaleOf(m)
	p.dc.SetColor(withAlpha(stroke, st.strokeOpacity))
	p.dc.SetLineWidth(st.strokeWidth * k)
	if dashes := dashPattern(st.dash, k); len(dashes) > 0 {
		p.dc.SetDash(dashes...)
	}
	p.dc.Stroke()
	p.dc.SetDash()
}

func (p *painter) text(e *scene.Element, st paint, m scene.Matrix) {
	type run struct {
		x, y float64
		s    string
		st   paint
	}
	x, y := num(e, "x"), num(e, "y")
	var runs []run
	var pending strings.Builder
	for _, c := range e.Children {
		switch {
		case c.IsText():
			pending.WriteString(c.Text)
		case c.Tag == "tspan":
			_, hasX := c.Attr("x")
			_, hasY := c.Attr("y")
			if !hasX && !hasY {
				pending.WriteString(c.TextContent())
				continue
			}
			if hasX {
				x = num(c, "x")
			}
			if hasY {
				y = num(c, "y")
			}
			runs = append(runs, run{x: x, y: y, s: c.TextContent(), st: st.inherit(c)})
		}
	}
	if s := pending.String(); strings.TrimSpace(s) != "" {
		runs = append([]run{{x: num(e, "x"), y: num(e, "y"), s: s, st: st}}, runs...)
	}

	k := scaleOf(m)
	for _, r := range runs {
		s := strings.Join(strings.Fields(r.s), " ")
		fill, ok := parseColor(r.st.fill)
		if s == "" || !ok {
			continue
		}
		fam := strings.ToLower(r.st.fontFamily)
		mono := strings.Contains(fam, "mono") || strings.Contains(fam, "courier")
		p.dc.SetFontFace(p.r.face(mono, r.st.fontSize*k))
		p.dc.SetColor(withAlpha(fill, r.st.fillOpacity))
		px, py := m.Apply(r.x, r.y)
		p.dc.DrawStringAnchored(s, px, py, anchorOf(r.st.anchor), 0)
	}
}

func anchorOf(a string) float64 {
	switch a {
	case "middle":
		return 0.5
	case "end":
		return 1
	}
	return 0
}

func num(e *scene.Element, name string) float64 {
	f, _ := leadingFloat(e.AttrOr(name, ""))
	return f
}

func pointList(s string) [][2]float64 {
	f := strings.Fields(strings.ReplaceAll(s, ",", " "))
	out := make([][2]float64, 0, len(f)/2)
	for i := 0; i+1 < len(f); i += 2 {
		x, err1 := strconv.ParseFloat(f[i], 64)
		y, err2 := strconv.ParseFloat(f[i+1], 64)
		if err1 != nil || err2 != nil {
			break
		}
		out = append(out, [2]float64{x, y})
	}
	return out
}

func ellipsePoints(cx, cy, rx, ry float64) [][2]float64 {
	const steps = 48
	out := make([][2]float64, steps)
	for i := range out {
		a := 2 * math.Pi * float64(i) / steps
		out[i] = [2]float64{cx + rx*math.Cos(a), cy + ry*math.Sin(a)}
	}
	return out
}

// scaleOf is the uniform scale a matrix applies to lengths.
func scaleOf(m scene.Matrix) float64 {
	return math.Sqrt(math.Abs(m.A*m.D - m.B*m.C))
}

func dashPattern(s string, k float64) []float64 {
	if s == "" || s == "none" {
		return nil
	}
	var out []float64
	for _, tok := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil || f < 0 {
			return nil
		}
		out = append(out, f*k)
	}
	return out
}

func withAlpha(c color.Color, opacity float64) color.Color {
	if opacity >= 1 {
		return c
	}
	if opacity < 0 {
		opacity = 0
	}
	r, g, b, a := c.RGBA()
	return color.NRGBA64{
		R: uint16(unpremul(r, a)),
		G: uint16(unpremul(g, a)),
		B: uint16(unpremul(b, a)),
		A: uint16(float64(a) * opacity),
	}
}

func unpremul(v, a uint32) uint32 {
	if a == 0 {
		return 0
	}
	return v * 0xffff / a
}

// parseColor understands #rgb, #rrggbb, #rrggbbaa, rgb()/rgba() and the CSS
// colour keywords. "none", "transparent" and paint servers report false.
func parseColor(s string) (color.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "none" || s == "transparent" || strings.HasPrefix(s, "url("):
		return nil, false
	case s == "currentcolor":
		return color.Black, true
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb"):
		open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
		if open < 0 || end < open {
			return nil, false
		}
		parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool { return r == ',' || r == ' ' || r == '/' })
		if len(parts) < 3 {
			return nil, false
		}
		var v [4]float64
		v[3] = 1
		for i := 0; i < len(parts) && i < 4; i++ {
			part := parts[i]
			pct := strings.HasSuffix(part, "%")
			f, err := strconv.ParseFloat(strings.TrimSuffix(part, "%"), 64)
			if err != nil {
				return nil, false
			}
			switch {
			case i == 3 && pct:
				f /= 100
			case i < 3 && pct:
				f = f * 255 / 100
			}
			v[i] = f
		}
		return color.NRGBA{R: clamp8(v[0]), G: clamp8(v[1]), B: clamp8(v[2]), A: clamp8(v[3] * 255)}, true
	}
	if c, ok := colornames.Map[s]; ok {
		return c, true
	}
	return nil, false
}

func parseHex(h string) (color.Color, bool) {
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	if len(h) != 6 && len(h) != 8 {
		return nil, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return nil, false
	}
	if len(h) == 6 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}

func clamp8(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(math.Round(f))
}
