package scene

import "github.com/rendis/lienzo/pkg/schema"

// PathOp is an absolute path command.
type PathOp byte

const (
	PathMove  PathOp = 'M'
	PathLine  PathOp = 'L'
	PathQuad  PathOp = 'Q'
	PathCubic PathOp = 'C'
	PathClose PathOp = 'Z'
)

// PathSegment is one absolute path command. Points holds the control points
// followed by the end point: one for M and L, two for Q, three for C, none
// for Z.
type PathSegment struct {
	Op     PathOp
	Points []schema.Point
}

// ParsePath converts SVG path data to absolute move, line, quadratic, cubic
// and close segments. Smooth curves are expanded with their reflected
// control point; arcs become straight lines to their end point.
func ParsePath(d string) []PathSegment {
	var (
		segs           []PathSegment
		cx, cy, sx, sy float64
		cmd            byte
		// last control point of the previous curve, for S and T.
		lastCtrl schema.Point
		lastKind byte
	)
	toks := tokenizePath(d)
	i := 0
	next := func() (float64, bool) {
		if i >= len(toks) || toks[i].isCmd {
			return 0, false
		}
		v := toks[i].num
		i++
		return v, true
	}
	pt := func(x, y float64) schema.Point { return schema.Point{X: x, Y: y} }
	reflect := func(kind byte) schema.Point {
		if lastKind == kind {
			return pt(2*cx-lastCtrl.X, 2*cy-lastCtrl.Y)
		}
		return pt(cx, cy)
	}

	for i < len(toks) {
		if toks[i].isCmd {
			cmd = toks[i].cmd
			i++
			if cmd == 'Z' || cmd == 'z' {
				segs = append(segs, PathSegment{Op: PathClose})
				cx, cy = sx, sy
				lastKind = 0
				continue
			}
		} else if cmd == 0 {
			i++
			continue
		}
		rel := cmd >= 'a' && cmd <= 'z'
		ox, oy := 0.0, 0.0
		if rel {
			ox, oy = cx, cy
		}
		var want int
		switch cmd | 0x20 {
		case 'm', 'l', 't':
			want = 2
		case 'h', 'v':
			want = 1
		case 'c':
			want = 6
		case 's', 'q':
			want = 4
		case 'a':
			want = 7
		default:
			i++
			continue
		}
		a := make([]float64, 0, want)
		for len(a) < want {
			v, ok := next()
			if !ok {
				break
			}
			a = append(a, v)
		}
		if len(a) < want {
			continue
		}

		kind := byte(0)
		switch cmd | 0x20 {
		case 'm':
			cx, cy = ox+a[0], oy+a[1]
			segs = append(segs, PathSegment{Op: PathMove, Points: []schema.Point{pt(cx, cy)}})
			sx, sy = cx, cy
			// Subsequent coordinate pairs are implicit lineto commands.
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
		case 'l':
			cx, cy = ox+a[0], oy+a[1]
			segs = append(segs, PathSegment{Op: PathLine, Points: []schema.Point{pt(cx, cy)}})
		case 'h':
			cx = ox + a[0]
			segs = append(segs, PathSegment{Op: PathLine, Points: []schema.Point{pt(cx, cy)}})
		case 'v':
			cy = oy + a[0]
			segs = append(segs, PathSegment{Op: PathLine, Points: []schema.Point{pt(cx, cy)}})
		case 'c':
			c1, c2 := pt(ox+a[0], oy+a[1]), pt(ox+a[2], oy+a[3])
			cx, cy = ox+a[4], oy+a[5]
			segs = append(segs, PathSegment{Op: PathCubic, Points: []schema.Point{c1, c2, pt(cx, cy)}})
			lastCtrl, kind = c2, 'c'
		case 's':
			c1, c2 := reflect('c'), pt(ox+a[0], oy+a[1])
			cx, cy = ox+a[2], oy+a[3]
			segs = append(segs, PathSegment{Op: PathCubic, Points: []schema.Point{c1, c2, pt(cx, cy)}})
			lastCtrl, kind = c2, 'c'
		case 'q':
			c := pt(ox+a[0], oy+a[1])
			cx, cy = ox+a[2], oy+a[3]
			segs = append(segs, PathSegment{Op: PathQuad, Points: []schema.Point{c, pt(cx, cy)}})
			lastCtrl, kind = c, 'q'
		case 't':
			c := reflect('q')
			cx, cy = ox+a[0], oy+a[1]
			segs = append(segs, PathSegment{Op: PathQuad, Points: []schema.Point{c, pt(cx, cy)}})
			lastCtrl, kind = c, 'q'
		case 'a':
			cx, cy = ox+a[5], oy+a[6]
			segs = append(segs, PathSegment{Op: PathLine, Points: []schema.Point{pt(cx, cy)}})
		}
		lastKind = kind
	}
	return segs
}
