package model

import (
	"fmt"
	"sort"
)

// Constructor builds an entity from one selector match.
type Constructor func(src Source) (Entity, error)

type variant struct {
	construct Constructor
	load      func(Document) (Entity, error)
}

var variants map[Kind]variant

// Loaders recurse through Load, so the table is filled in init to avoid an
// initialization cycle.
func init() {
	variants = map[Kind]variant{
		KindClass:      {newClass, loadClass},
		KindFunction:   {newFunction, loadFunction},
		KindVariable:   {newVariable, loadVariable},
		KindDependency: {newDependency, loadDependency},
		KindReference:  {newReference, loadReference},
		KindStatement:  {newStatement, loadStatement},
		KindOperator:   {newOperator, loadOperator},
		KindForLoop:    {newForLoop, loadForLoop},
		KindWhileLoop:  {newWhileLoop, loadWhileLoop},
		KindCondition:  {newCondition, loadCondition},
		KindString:     {newString, loadString},
	}
}

// ConstructorFor returns the constructor for a model_element tag.
func ConstructorFor(k Kind) (Constructor, error) {
	v, ok := variants[k]
	if !ok {
		return nil, fmt.Errorf("model: %q: %w", k, ErrUnknownKind)
	}
	return v.construct, nil
}

// Kinds returns every known entity kind, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(variants))
	for k := range variants {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load rebuilds an entity from its flattened form.
func Load(doc Document) (Entity, error) {
	tag := str(doc, "type")
	v, ok := variants[Kind(tag)]
	if !ok {
		return nil, fmt.Errorf("model: load %q: %w", tag, ErrUnknownKind)
	}
	return v.load(doc)
}
