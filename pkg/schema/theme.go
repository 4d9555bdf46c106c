package schema

// ThemeSpec is an immutable theme selection: a base palette tag plus style
// variable overrides.
type ThemeSpec struct {
	ID        string            `json:"id" yaml:"id"`
	Base      string            `json:"base" yaml:"base"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Variable returns the theme variable name, or def when unset.
func (t ThemeSpec) Variable(name, def string) string {
	if v, ok := t.Variables[name]; ok && v != "" {
		return v
	}
	return def
}
