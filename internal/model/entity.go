// Package model defines the entity tree extracted from one source file and
// its JSON document form.
//
// Every entity flattens to a Document tagged with a "type" field, and Load
// rebuilds an entity from such a Document. Entities produced by extraction
// also carry a Span locating them in the text they were matched against;
// spans drive body ordering and pruning and are never persisted.
package model

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// Document is the JSON-shaped form of an entity.
type Document = map[string]any

// Kind tags each entity variant. It is the "type" field of a flattened
// entity and the model_element of a grammar selector.
type Kind string

const (
	KindClass      Kind = "class"
	KindFunction   Kind = "function"
	KindVariable   Kind = "variable"
	KindDependency Kind = "dependency"
	KindReference  Kind = "reference"
	KindStatement  Kind = "statement"
	KindOperator   Kind = "operator"
	KindForLoop    Kind = "for_loop"
	KindWhileLoop  Kind = "while_loop"
	KindCondition  Kind = "condition"
	KindString     Kind = "string"
)

// Wildcard is the provides marker of a dependency that exports unknown names.
const Wildcard = "*"

var (
	// ErrUnknownKind is returned for a type tag with no entity variant.
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrMalformed is returned when a document cannot be loaded.
	ErrMalformed = errors.New("malformed document")
	// ErrSchema is returned when a model document fails schema validation.
	ErrSchema = errors.New("schema validation failed")
)

// Entity is implemented by every node of the model tree.
type Entity interface {
	Kind() Kind
	Flatten() Document
	Span() Span
	SetSpan(Span)
}

// Selectable entities accept the results of their sub-selectors, keyed by
// sub-selector name.
type Selectable interface {
	Entity
	AddSubselection(children map[string][]Entity)
}

// Block is implemented by entities that own an ordered statement body.
type Block interface {
	Entity
	Body() []Entity
}

// Identified is implemented by entities that own a global identifier.
type Identified interface {
	Entity
	Ident() string
}

// Span locates an entity within the text a selector ran over. Field names
// the captured field of the parent that text came from; spans are only
// comparable within one field.
type Span struct {
	Field string
	Start int
	End   int
}

// Zero reports whether the span was never set, as for loaded entities.
func (s Span) Zero() bool { return s == Span{} }

// Contains reports whether o lies within s.
func (s Span) Contains(o Span) bool {
	return !s.Zero() && s.Field == o.Field && s.Start <= o.Start && o.End <= s.End
}

// Source is the input of an entity constructor: one selector match.
type Source struct {
	Language string
	Prefix   string
	Text     string
	Fields   map[string]string
}

func (s Source) field(name string) string {
	return strings.TrimSpace(s.Fields[name])
}

func (s Source) has(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

type base struct {
	span Span
}

func (b *base) Span() Span { return b.span }
func (b *base) SetSpan(s Span) { b.span = s }

// Named holds the fields shared by classes, functions and variables.
type Named struct {
	base
	Name             string
	GlobalIdentifier string
	ContentHash      string
	Language         string
	Text             string
}

func newNamed(src Source) Named {
	name := src.field("name")
	return Named{
		Name:             name,
		GlobalIdentifier: JoinID(src.Prefix, name),
		ContentHash:      HashText(src.Text),
		Language:         src.Language,
		Text:             src.Text,
	}
}

// Ident returns the global identifier.
func (n *Named) Ident() string { return n.GlobalIdentifier }

func (n *Named) flattenInto(doc Document) {
	doc["name"] = n.Name
	doc["global_identifier"] = n.GlobalIdentifier
	doc["content_hash"] = n.ContentHash
	doc["language"] = n.Language
	doc["body"] = n.Text
}

func (n *Named) loadFrom(doc Document) {
	n.Name = str(doc, "name")
	n.GlobalIdentifier = str(doc, "global_identifier")
	n.ContentHash = str(doc, "content_hash")
	n.Language = str(doc, "language")
	n.Text = str(doc, "body")
}

// JoinID appends name to a dotted prefix.
func JoinID(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "." + name
}

// HashText returns the hex sha256 of text after Dedent and trimming, so the
// same lines captured at different indentation agree.
func HashText(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.TrimSpace(Dedent(text)))))
}

// Dedent removes the whitespace prefix common to every non-blank line.
// Blank lines are emptied.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix, first := "", true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		switch {
		case first:
			prefix, first = indent, false
		default:
			for !strings.HasPrefix(indent, prefix) {
				prefix = prefix[:len(prefix)-1]
			}
		}
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(lines, "\n")
}

func str(doc Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docs(doc Document, key string) ([]Document, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []any:
		out := make([]Document, 0, len(v))
		for i, item := range v {
			d, ok := item.(Document)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want object", ErrMalformed, key, i, item)
			}
			out = append(out, d)
		}
		return out, nil
	case []Document:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s is %T, want array", ErrMalformed, key, raw)
}

func loadList[T Entity](doc Document, key string) ([]T, error) {
	items, err := docs(doc, key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, d := range items {
		e, err := Load(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		t, ok := e.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s holds a %s", ErrMalformed, key, e.Kind())
		}
		out = append(out, t)
	}
	return out, nil
}

func flattenList[T Entity](xs []T) []any {
	out := make([]any, 0, len(xs))
	for _, x := range xs {
		out = append(out, x.Flatten())
	}
	return out
}

func collect[T Entity](children map[string][]Entity) []T {
	var out []T
	for _, key := range sortedKeys(children) {
		for _, c := range children[key] {
			if t, ok := c.(T); ok {
				out = append(out, t)
			}
		}
	}
	sortBySpan(out)
	return out
}
