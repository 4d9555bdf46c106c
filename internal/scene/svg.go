package scene

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// well-known namespace URIs mapped back to their conventional prefixes
var nsPrefixes = map[string]string{
	"xmlns":                                "xmlns",
	"http://www.w3.org/1999/xlink":         "xlink",
	"http://www.w3.org/XML/1998/namespace": "xml",
	"xml":                                  "xml",
	"xlink":                                "xlink",
}

// ErrNoRoot is returned when a document holds no element.
var ErrNoRoot = errors.New("scene: document has no root element")

// ParseSVG decodes an SVG (or any XML) document into an element tree.
// Whitespace-only character data is dropped.
func ParseSVG(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var root, cur *Element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scene: parse svg: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
			}
			if cur == nil {
				if root != nil {
					// A second top-level element; ignore trailing content.
					return root, nil
				}
				root = el
			} else {
				cur.Append(el)
			}
			cur = el
		case xml.EndElement:
			if cur != nil {
				cur = cur.Parent
			}
		case xml.CharData:
			if cur == nil || strings.TrimSpace(string(t)) == "" {
				continue
			}
			cur.Append(NewText(string(t)))
		}
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

// ParseSVGString is ParseSVG over a string.
func ParseSVGString(s string) (*Element, error) {
	return ParseSVG(strings.NewReader(s))
}

func attrName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	if p, ok := nsPrefixes[n.Space]; ok {
		return p + ":" + n.Local
	}
	return n.Local
}

// WriteSVG serializes e and its subtree.
func WriteSVG(w io.Writer, e *Element) error {
	var buf bytes.Buffer
	writeElement(&buf, e)
	_, err := w.Write(buf.Bytes())
	return err
}

// Markup returns the serialized subtree of e.
func (e *Element) Markup() string {
	var buf bytes.Buffer
	writeElement(&buf, e)
	return buf.String()
}

func writeElement(buf *bytes.Buffer, e *Element) {
	if e.IsText() {
		_ = xml.EscapeText(buf, []byte(e.Text))
		return
	}
	buf.WriteByte('<')
	buf.WriteString(e.Tag)
	for _, a := range e.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	if len(e.Children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	for _, c := range e.Children {
		writeElement(buf, c)
	}
	buf.WriteString("</")
	buf.WriteString(e.Tag)
	buf.WriteByte('>')
}
