package diagram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rendis/lienzo/internal/render"
)

// ParseError reports a syntax error in flowchart source. Line is 1-based and
// counts lines after init directives are stripped.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error on line %d: %s", e.Line, e.Msg)
}

var (
	headerRe = regexp.MustCompile(`^(graph|flowchart)(?:\s+(TD|TB|LR|BT|RL))?\s*$`)
	// Arrow forms: -->, ---, -.->, -.-, ==>, ===, and inline text variants
	// such as "-- yes -->".
	linkRe = regexp.MustCompile(
		`^\s*(?:(--+>|--+-|-\.+->|-\.+-|==+>|===+)|(--|-\.|==)\s*([^-=.|\s][^|]*?)\s*(--+>|--+-|\.+->|\.+-|==+>|==+=))\s*(?:\|([^|]*)\|)?`)
	subgraphRe = regexp.MustCompile(`^([\w-]+)\s*\[(.*)\]$`)
)

// ignoredKeywords start statements that only affect styling or interaction.
var ignoredKeywords = []string{"classDef", "class", "style", "linkStyle", "click", "direction"}

// shapeDelims maps node shape openers to their closers, longest first.
var shapeDelims = []struct {
	open, close string
	kind        NodeKind
}{
	{"(((", ")))", NodeKindEvent},
	{"((", "))", NodeKindEvent},
	{"([", "])", NodeKindStadium},
	{"[[", "]]", NodeKindSubroutine},
	{"[(", ")]", NodeKindDatabase},
	{"{{", "}}", NodeKindHexagon},
	{"[/", "/]", NodeKindSlanted},
	{`[\`, `\]`, NodeKindSlanted},
	{"(", ")", NodeKindRounded},
	{"[", "]", NodeKindProcess},
	{"{", "}", NodeKindDecision},
	{">", "]", NodeKindSlanted},
}

type statement struct {
	line int
	text string
}

// ParseFlowchart parses flowchart notation into a DiagramModel. Init
// directives are ignored.
func ParseFlowchart(source string) (*DiagramModel, error) {
	stmts := splitStatements(render.StripDirectives(source))
	if len(stmts) == 0 {
		return nil, &ParseError{Line: 1, Msg: "empty diagram"}
	}

	head := stmts[0]
	m := headerRe.FindStringSubmatch(head.text)
	if m == nil {
		return nil, &ParseError{Line: head.line, Msg: fmt.Sprintf("expected graph or flowchart header, got %q", head.text)}
	}
	p := &parser{model: &DiagramModel{Direction: direction(m[2])}, nodes: map[string]*Node{}}

	for _, st := range stmts[1:] {
		if err := p.statement(st); err != nil {
			return nil, err
		}
	}
	if len(p.open) > 0 {
		last := stmts[len(stmts)-1].line
		return nil, &ParseError{Line: last, Msg: fmt.Sprintf("subgraph %q is not closed", p.open[len(p.open)-1].ID)}
	}

	p.model.Levels = computeLevels(p.model)
	return p.model, nil
}

// Validate reports whether source parses.
func Validate(source string) error {
	_, err := ParseFlowchart(source)
	return err
}

func direction(s string) Direction {
	switch s {
	case "LR":
		return DirectionLR
	case "BT":
		return DirectionBT
	case "RL":
		return DirectionRL
	default:
		return DirectionTD
	}
}

// splitStatements splits source into non-empty statements, honouring ';'
// separators outside of brackets and quotes and dropping %% comment lines.
func splitStatements(source string) []statement {
	var out []statement
	for i, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		depth, quoted, start := 0, false, 0
		for j, r := range trimmed {
			switch {
			case r == '"':
				quoted = !quoted
			case quoted:
			case r == '[' || r == '(' || r == '{':
				depth++
			case r == ']' || r == ')' || r == '}':
				if depth > 0 {
					depth--
				}
			case r == ';' && depth == 0:
				if s := strings.TrimSpace(trimmed[start:j]); s != "" {
					out = append(out, statement{line: i + 1, text: s})
				}
				start = j + 1
			}
		}
		if s := strings.TrimSpace(trimmed[start:]); s != "" {
			out = append(out, statement{line: i + 1, text: s})
		}
	}
	return out
}

type parser struct {
	model *DiagramModel
	nodes map[string]*Node
	open  []*SubGraph
}

func (p *parser) statement(st statement) error {
	word := st.text
	if i := strings.IndexAny(word, " \t"); i >= 0 {
		word = word[:i]
	}
	switch word {
	case "subgraph":
		return p.beginSubGraph(st)
	case "end":
		if len(p.open) == 0 {
			return &ParseError{Line: st.line, Msg: "unexpected end"}
		}
		p.open = p.open[:len(p.open)-1]
		return nil
	}
	for _, kw := range ignoredKeywords {
		if word == kw {
			return nil
		}
	}
	return p.chain(st)
}

func (p *parser) beginSubGraph(st statement) error {
	rest := strings.TrimSpace(strings.TrimPrefix(st.text, "subgraph"))
	if rest == "" {
		return &ParseError{Line: st.line, Msg: "subgraph requires a title"}
	}
	sg := &SubGraph{}
	if m := subgraphRe.FindStringSubmatch(rest); m != nil {
		sg.ID, sg.Label = m[1], unquote(strings.TrimSpace(m[2]))
	} else {
		sg.Label = unquote(rest)
		sg.ID = strings.Join(strings.Fields(sg.Label), "_")
	}
	p.model.SubGraphs = append(p.model.SubGraphs, sg)
	p.open = append(p.open, sg)
	return nil
}

// chain parses "group (link group)*" where a group is "node (& node)*".
func (p *parser) chain(st statement) error {
	rest := st.text
	prev, rest, err := p.group(st.line, rest)
	if err != nil {
		return err
	}
	if len(prev) == 0 {
		return &ParseError{Line: st.line, Msg: fmt.Sprintf("unexpected %q", rest)}
	}
	for strings.TrimSpace(rest) != "" {
		m := linkRe.FindStringSubmatch(rest)
		if m == nil {
			return &ParseError{Line: st.line, Msg: fmt.Sprintf("unexpected %q", strings.TrimSpace(rest))}
		}
		rest = rest[len(m[0]):]
		arrow, label := m[1], strings.TrimSpace(m[5])
		if arrow == "" {
			arrow, label = m[2]+m[4], strings.TrimSpace(m[3])
		}
		next, after, err := p.group(st.line, rest)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			return &ParseError{Line: st.line, Msg: fmt.Sprintf("link %q has no target", strings.TrimSpace(m[0]))}
		}
		rest = after
		style, open := linkStyle(arrow)
		for _, from := range prev {
			for _, to := range next {
				p.model.Edges = append(p.model.Edges, Edge{From: from, To: to, Label: unquote(label), Style: style, Open: open})
			}
		}
		prev = next
	}
	return nil
}

func linkStyle(arrow string) (EdgeStyle, bool) {
	open := !strings.HasSuffix(arrow, ">")
	switch {
	case strings.Contains(arrow, "."):
		return EdgeDotted, open
	case strings.HasPrefix(arrow, "="):
		return EdgeThick, open
	default:
		return EdgeSolid, open
	}
}

// group parses one or more node specs joined by '&' and returns their ids.
func (p *parser) group(line int, s string) ([]string, string, error) {
	var ids []string
	for {
		s = strings.TrimLeft(s, " \t")
		id, rest, err := p.node(line, s)
		if err != nil {
			return nil, "", err
		}
		if id == "" {
			return ids, s, nil
		}
		ids = append(ids, id)
		s = strings.TrimLeft(rest, " \t")
		if !strings.HasPrefix(s, "&") {
			return ids, s, nil
		}
		s = s[1:]
	}
}

// node parses "id shape? (:::class)?". An empty id means no node starts at s.
func (p *parser) node(line int, s string) (string, string, error) {
	n := scanID(s)
	if n == 0 {
		return "", s, nil
	}
	id, rest := s[:n], s[n:]

	kind, label, shaped := NodeKindProcess, "", false
	for _, d := range shapeDelims {
		if !strings.HasPrefix(rest, d.open) {
			continue
		}
		body := rest[len(d.open):]
		end := closingIndex(body, d.close)
		if end < 0 && d.close == "/]" {
			end = closingIndex(body, `\]`)
		}
		if end < 0 && d.close == `\]` {
			end = closingIndex(body, "/]")
		}
		if end < 0 {
			return "", "", &ParseError{Line: line, Msg: fmt.Sprintf("unterminated shape for node %q, expected %q", id, d.close)}
		}
		kind, label, shaped = d.kind, unquote(strings.TrimSpace(body[:end])), true
		rest = body[end+len(d.close):]
		break
	}

	var classes []string
	if strings.HasPrefix(rest, ":::") {
		rest = rest[3:]
		k := scanID(rest)
		if k == 0 {
			return "", "", &ParseError{Line: line, Msg: fmt.Sprintf("missing class name after ::: on node %q", id)}
		}
		classes = append(classes, rest[:k])
		rest = rest[k:]
	}

	p.touch(id, kind, label, shaped, classes)
	return id, rest, nil
}

// touch registers node id, updating its shape when a later statement defines one.
func (p *parser) touch(id string, kind NodeKind, label string, shaped bool, classes []string) {
	n, ok := p.nodes[id]
	if !ok {
		n = &Node{ID: id, Label: id, Kind: NodeKindProcess}
		p.nodes[id] = n
		p.model.Nodes = append(p.model.Nodes, n)
		if len(p.open) > 0 {
			sg := p.open[len(p.open)-1]
			sg.Nodes = append(sg.Nodes, id)
		}
	}
	if shaped {
		n.Kind = kind
		if label != "" {
			n.Label = label
		}
	}
	for _, c := range classes {
		if !containsString(n.Classes, c) {
			n.Classes = append(n.Classes, c)
		}
	}
}

// scanID returns the length of the node id at the start of s. Dashes and
// dots belong to the id only when followed by a letter or digit so that
// "a-->b" and "a-.->b" split correctly.
func scanID(s string) int {
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isWordByte(c):
			i++
		case (c == '-' || c == '.') && i > 0 && i+1 < len(s) && isAlnum(s[i+1]):
			i++
		default:
			return i
		}
	}
	return i
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return isAlnum(c) || c == '_' || c >= 0x80
}

// closingIndex finds close in s, skipping over a leading quoted label.
func closingIndex(s, close string) int {
	if strings.HasPrefix(strings.TrimSpace(s), `"`) {
		q := strings.Index(s, `"`)
		if e := strings.Index(s[q+1:], `"`); e >= 0 {
			off := q + 1 + e + 1
			if k := strings.Index(s[off:], close); k >= 0 {
				return off + k
			}
			return -1
		}
	}
	return strings.Index(s, close)
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// computeLevels assigns each node its longest-path depth from a source node.
// Back edges found by a depth-first walk in declaration order are ignored so
// cycles terminate.
func computeLevels(m *DiagramModel) [][]string {
	if len(m.Nodes) == 0 {
		return nil
	}
	index := make(map[string]int, len(m.Nodes))
	for i, n := range m.Nodes {
		index[n.ID] = i
	}
	adj := make([][]int, len(m.Nodes))
	for _, e := range m.Edges {
		from, ok1 := index[e.From]
		to, ok2 := index[e.To]
		if ok1 && ok2 && from != to {
			adj[from] = append(adj[from], to)
		}
	}

	const (
		unseen = iota
		active
		done
	)
	state := make([]int, len(m.Nodes))
	dag := make([][]int, len(m.Nodes))
	var order []int
	var visit func(int)
	visit = func(u int) {
		state[u] = active
		for _, v := range adj[u] {
			switch state[v] {
			case active:
				continue
			case unseen:
				visit(v)
			}
			dag[u] = append(dag[u], v)
		}
		state[u] = done
		order = append(order, u)
	}
	for i := range m.Nodes {
		if state[i] == unseen {
			visit(i)
		}
	}

	level := make([]int, len(m.Nodes))
	maxLevel := 0
	for i := len(order) - 1; i >= 0; i-- {
		u := order[i]
		for _, v := range dag[u] {
			if level[u]+1 > level[v] {
				level[v] = level[u] + 1
			}
		}
		if level[u] > maxLevel {
			maxLevel = level[u]
		}
	}

	levels := make([][]string, maxLevel+1)
	for i, n := range m.Nodes {
		levels[level[i]] = append(levels[level[i]], n.ID)
	}
	return levels
}
