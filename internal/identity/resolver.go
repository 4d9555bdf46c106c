package identity

import (
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

// Resolver turns pointer targets into node references.
type Resolver struct {
	classifier  Classifier
	idAttr      string
	placeholder string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClassifier replaces the default marker classifier.
func WithClassifier(c Classifier) Option {
	return func(r *Resolver) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithIDAttr sets the explicit-id attribute. Empty disables explicit ids.
func WithIDAttr(name string) Option {
	return func(r *Resolver) { r.idAttr = name }
}

// WithLocale picks the placeholder used for elements without text.
func WithLocale(locale string) Option {
	return func(r *Resolver) { r.placeholder = Placeholder(locale) }
}

// NewResolver creates a resolver with the default markers, the data-id
// attribute and the English placeholder.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		classifier:  DefaultMarkers(),
		idAttr:      DefaultIDAttr,
		placeholder: Placeholder(""),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Classify resolves target to its logical node or edge label without
// computing an id.
func (r *Resolver) Classify(target *scene.Element) Classification {
	if target == nil {
		return Classification{}
	}
	return r.classifier.Classify(target)
}

// Reference builds the full reference for a classification. Edge labels
// carry no node type.
func (r *Resolver) Reference(c Classification) schema.NodeReference {
	text := ExtractText(c.Element)
	if text == "" {
		text = r.placeholder
	}
	ref := schema.NodeReference{
		NodeID:   StableID(c.Element, r.idAttr),
		NodeText: text,
	}
	if c.Kind == KindNode {
		ref.NodeType = InferKind(c.Element)
	}
	return ref
}

// Resolve classifies target and builds its reference. ok is false when the
// target belongs to no node or edge label.
func (r *Resolver) Resolve(target *scene.Element) (ref schema.NodeReference, ok bool) {
	c := r.Classify(target)
	if !c.Found() {
		return schema.NodeReference{}, false
	}
	return r.Reference(c), true
}

// ID returns the stable id of e using the resolver's explicit-id attribute.
func (r *Resolver) ID(e *scene.Element) string {
	return StableID(e, r.idAttr)
}
