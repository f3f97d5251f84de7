package model

import (
	"errors"
	"fmt"
)

// ReferenceEntity is a call or name use. Ref holds the name as written
// until resolution replaces it with a global identifier.
type ReferenceEntity struct {
	base
	Ref        string
	Target     string
	Parameters []*VariableEntity
}

func newReference(src Source) (Entity, error) {
	r := &ReferenceEntity{Ref: src.field("ref"), Target: src.field("target")}
	if r.Ref == "" {
		r.Ref = src.field("name")
	}
	if r.Ref == "" {
		return nil, errors.New("reference match has no ref")
	}
	for _, arg := range SplitArgs(src.field("parameters")) {
		r.Parameters = append(r.Parameters, &VariableEntity{
			Named:   Named{Name: arg, ContentHash: HashText(arg), Language: src.Language, Text: arg},
			Default: arg,
		})
	}
	return r, nil
}

func (r *ReferenceEntity) Kind() Kind { return KindReference }

// AddSubselection replaces the argument list with selected variables.
func (r *ReferenceEntity) AddSubselection(children map[string][]Entity) {
	if args := collect[*VariableEntity](children); len(args) > 0 {
		r.Parameters = args
	}
}

// ArgumentIndex returns the position of the first argument whose text is
// name, or -1.
func (r *ReferenceEntity) ArgumentIndex(name string) int {
	for i, p := range r.Parameters {
		if p.Default == name {
			return i
		}
	}
	return -1
}

func (r *ReferenceEntity) Flatten() Document {
	return Document{
		"type":       string(KindReference),
		"ref":        r.Ref,
		"target":     r.Target,
		"parameters": flattenList(r.Parameters),
	}
}

func loadReference(doc Document) (Entity, error) {
	r := &ReferenceEntity{Ref: str(doc, "ref"), Target: str(doc, "target")}
	var err error
	if r.Parameters, err = loadList[*VariableEntity](doc, "parameters"); err != nil {
		return nil, fmt.Errorf("reference %s: %w", r.Ref, err)
	}
	return r, nil
}

// StatementEntity is a line of a body: an optional assignment target and a
// right-hand side that is a reference, an operator expression or text.
type StatementEntity struct {
	base
	LHS string
	RHS Entity
}

func newStatement(src Source) (Entity, error) {
	rhs := src.field("rhs")
	if !src.has("rhs") {
		rhs = src.Text
	}
	return &StatementEntity{LHS: src.field("lhs"), RHS: &BasicStringEntity{Value: rhs}}, nil
}

func (s *StatementEntity) Kind() Kind { return KindStatement }

// Reference returns the right-hand side when it is a reference.
func (s *StatementEntity) Reference() (*ReferenceEntity, bool) {
	r, ok := s.RHS.(*ReferenceEntity)
	return r, ok
}

// AddSubselection takes the first selected reference, operator or string
// as the right-hand side.
func (s *StatementEntity) AddSubselection(children map[string][]Entity) {
	var candidates []Entity
	for _, key := range sortedKeys(children) {
		for _, c := range children[key] {
			switch c.(type) {
			case *ReferenceEntity, *OperatorEntity, *BasicStringEntity:
				candidates = append(candidates, c)
			}
		}
	}
	sortBySpan(candidates)
	if len(candidates) > 0 {
		s.RHS = candidates[0]
	}
}

func (s *StatementEntity) Flatten() Document {
	doc := Document{"type": string(KindStatement), "lhs": s.LHS}
	if s.RHS != nil {
		doc["rhs"] = s.RHS.Flatten()
	}
	return doc
}

func loadStatement(doc Document) (Entity, error) {
	s := &StatementEntity{LHS: str(doc, "lhs")}
	raw, ok := doc["rhs"]
	if !ok || raw == nil {
		return s, nil
	}
	rd, ok := raw.(Document)
	if !ok {
		return nil, fmt.Errorf("%w: statement rhs is %T", ErrMalformed, raw)
	}
	rhs, err := Load(rd)
	if err != nil {
		return nil, fmt.Errorf("statement rhs: %w", err)
	}
	switch rhs.(type) {
	case *ReferenceEntity, *OperatorEntity, *BasicStringEntity:
	default:
		return nil, fmt.Errorf("%w: statement rhs holds a %s", ErrMalformed, rhs.Kind())
	}
	s.RHS = rhs
	return s, nil
}

// OperatorEntity is a binary or unary expression. Calls appearing in its
// operands are attached as References.
type OperatorEntity struct {
	base
	Operator   string
	Left       string
	Right      string
	References []*ReferenceEntity
}

func newOperator(src Source) (Entity, error) {
	op := &OperatorEntity{Operator: src.field("operator"), Left: src.field("left"), Right: src.field("right")}
	if op.Operator == "" {
		return nil, errors.New("operator match has no operator")
	}
	return op, nil
}

func (o *OperatorEntity) Kind() Kind { return KindOperator }

func (o *OperatorEntity) AddSubselection(children map[string][]Entity) {
	o.References = append(o.References, collect[*ReferenceEntity](children)...)
}

func (o *OperatorEntity) Flatten() Document {
	return Document{
		"type":       string(KindOperator),
		"operator":   o.Operator,
		"left":       o.Left,
		"right":      o.Right,
		"references": flattenList(o.References),
	}
}

func loadOperator(doc Document) (Entity, error) {
	o := &OperatorEntity{Operator: str(doc, "operator"), Left: str(doc, "left"), Right: str(doc, "right")}
	var err error
	if o.References, err = loadList[*ReferenceEntity](doc, "references"); err != nil {
		return nil, err
	}
	return o, nil
}

// BasicStringEntity wraps literal text.
type BasicStringEntity struct {
	base
	Value string
}

func newString(src Source) (Entity, error) {
	if src.has("value") {
		return &BasicStringEntity{Value: src.field("value")}, nil
	}
	return &BasicStringEntity{Value: src.Text}, nil
}

func (s *BasicStringEntity) Kind() Kind { return KindString }

func (s *BasicStringEntity) Flatten() Document {
	return Document{"type": string(KindString), "value": s.Value}
}

func loadString(doc Document) (Entity, error) {
	return &BasicStringEntity{Value: str(doc, "value")}, nil
}
