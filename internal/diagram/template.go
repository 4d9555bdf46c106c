package diagram

// defaultTemplate is the source a new session starts with.
const defaultTemplate = `flowchart TD
    start((Start)) --> idea[Sketch the idea]
    idea --> review{Looks right?}
    review -->|yes| ship([Share it])
    review -->|no| idea
`

// DefaultTemplate returns the starter diagram source.
func DefaultTemplate() string {
	return defaultTemplate
}
