package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rendis/lienzo/internal/scene"
)

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n"
	svgNS     = "http://www.w3.org/2000/svg"
	xlinkNS   = "http://www.w3.org/1999/xlink"
)

// SVGDocument writes the scene as a standalone SVG file.
type SVGDocument struct{}

// Document serializes a copy of the scene root with the namespaces a
// standalone file needs and, when requested, a background rectangle.
func (SVGDocument) Document(ctx context.Context, sc *scene.Scene, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sc.Root.Tag != "svg" {
		return nil, fmt.Errorf("export: scene root is <%s>, not <svg>", sc.Root.Tag)
	}
	root := sc.Root.Clone(nil)
	if _, ok := root.Attr("xmlns"); !ok {
		root.SetAttr("xmlns", svgNS)
	}
	if _, ok := root.Attr("xmlns:xlink"); !ok && usesXLink(root) {
		root.SetAttr("xmlns:xlink", xlinkNS)
	}
	if opts.Background != "" {
		bg := scene.NewElement("rect",
			"class", "lienzo-export-background",
			"x", "0", "y", "0", "width", "100%", "height", "100%",
			"fill", opts.Background)
		if vb, ok := root.Attr("viewBox"); ok {
			if r, ok := parseViewBox(vb); ok {
				bg.SetAttr("x", ftoa(r.X))
				bg.SetAttr("y", ftoa(r.Y))
				bg.SetAttr("width", ftoa(r.W))
				bg.SetAttr("height", ftoa(r.H))
			}
		}
		bg.Parent = root
		root.Children = append([]*scene.Element{bg}, root.Children...)
	}

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	if err := scene.WriteSVG(&buf, root); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func usesXLink(root *scene.Element) bool {
	found := false
	root.Walk(func(e *scene.Element) bool {
		for _, a := range e.Attrs {
			if len(a.Name) > 6 && a.Name[:6] == "xlink:" {
				found = true
			}
		}
		return !found
	})
	return found
}
