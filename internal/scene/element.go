// Package scene models a rendered diagram as an immutable element tree with
// enough geometry to hit-test pointer input and measure layout.
package scene

import "strings"

// Attr is a single element attribute. Order is preserved for serialization.
type Attr struct {
	Name  string
	Value string
}

// Element is a node of the rendered tree. Text nodes have an empty Tag and
// carry their character data in Text.
type Element struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []*Element
	Parent   *Element
}

// NewElement creates an element with the given tag and attribute pairs
// (name, value, name, value, ...).
func NewElement(tag string, attrs ...string) *Element {
	e := &Element{Tag: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.Attrs = append(e.Attrs, Attr{Name: attrs[i], Value: attrs[i+1]})
	}
	return e
}

// NewText creates a text node.
func NewText(text string) *Element {
	return &Element{Text: text}
}

// IsText reports whether e is a text node.
func (e *Element) IsText() bool {
	return e.Tag == ""
}

// Append adds children to e and returns e for chaining.
func (e *Element) Append(children ...*Element) *Element {
	for _, c := range children {
		c.Parent = e
		e.Children = append(e.Children, c)
	}
	return e
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or def when it is absent.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// ID returns the element's id attribute, or "".
func (e *Element) ID() string {
	return e.AttrOr("id", "")
}

// Classes returns the whitespace-separated tokens of the class attribute.
func (e *Element) Classes() []string {
	return strings.Fields(e.AttrOr("class", ""))
}

// HasClass reports whether class is one of e's class tokens.
func (e *Element) HasClass(class string) bool {
	for _, c := range e.Classes() {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class to the class attribute when missing.
func (e *Element) AddClass(class string) {
	if e.HasClass(class) {
		return
	}
	cur := strings.TrimSpace(e.AttrOr("class", ""))
	if cur == "" {
		e.SetAttr("class", class)
		return
	}
	e.SetAttr("class", cur+" "+class)
}

// ElementChildren returns the non-text children of e.
func (e *Element) ElementChildren() []*Element {
	out := make([]*Element, 0, len(e.Children))
	for _, c := range e.Children {
		if !c.IsText() {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits e and its descendants in document order. Returning false from
// fn skips the visited element's subtree.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// TextContent concatenates every text node under e in document order.
func (e *Element) TextContent() string {
	var b strings.Builder
	e.Walk(func(n *Element) bool {
		if n.IsText() {
			b.WriteString(n.Text)
		}
		return true
	})
	return b.String()
}

// Root returns the topmost ancestor of e.
func (e *Element) Root() *Element {
	r := e
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	for n := other; n != nil; n = n.Parent {
		if n == e {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of e with fresh parent links. visit, when non-nil,
// is called for every original/copy pair.
func (e *Element) Clone(visit func(orig, cp *Element)) *Element {
	cp := &Element{Tag: e.Tag, Text: e.Text}
	if len(e.Attrs) > 0 {
		cp.Attrs = make([]Attr, len(e.Attrs))
		copy(cp.Attrs, e.Attrs)
	}
	if visit != nil {
		visit(e, cp)
	}
	for _, c := range e.Children {
		cp.Append(c.Clone(visit))
	}
	return cp
}
