package model

import "fmt"

type block struct {
	base
	Statements []Entity
}

func (b *block) Body() []Entity { return b.Statements }

func (b *block) AddSubselection(children map[string][]Entity) {
	b.Statements = PruneBody(bodyChildren(children))
}

func (b *block) flattenInto(doc Document) {
	doc["statements"] = flattenList(b.Statements)
}

// ForLoopEntity is a for loop over Iterable binding Target.
type ForLoopEntity struct {
	block
	Target   string
	Iterable string
}

func newForLoop(src Source) (Entity, error) {
	return &ForLoopEntity{Target: src.field("target"), Iterable: src.field("iterable")}, nil
}

func (l *ForLoopEntity) Kind() Kind { return KindForLoop }

func (l *ForLoopEntity) Flatten() Document {
	doc := Document{"type": string(KindForLoop), "target": l.Target, "iterable": l.Iterable}
	l.flattenInto(doc)
	return doc
}

// WhileLoopEntity is a loop guarded by Condition.
type WhileLoopEntity struct {
	block
	Condition string
}

func newWhileLoop(src Source) (Entity, error) {
	return &WhileLoopEntity{Condition: src.field("condition")}, nil
}

func (l *WhileLoopEntity) Kind() Kind { return KindWhileLoop }

func (l *WhileLoopEntity) Flatten() Document {
	doc := Document{"type": string(KindWhileLoop), "condition": l.Condition}
	l.flattenInto(doc)
	return doc
}

// ConditionEntity is one branch of a conditional. Keyword is the branch
// keyword as written (if, elif, else).
type ConditionEntity struct {
	block
	Keyword   string
	Condition string
}

func newCondition(src Source) (Entity, error) {
	return &ConditionEntity{Keyword: src.field("keyword"), Condition: src.field("condition")}, nil
}

func (c *ConditionEntity) Kind() Kind { return KindCondition }

func (c *ConditionEntity) Flatten() Document {
	doc := Document{"type": string(KindCondition), "keyword": c.Keyword, "condition": c.Condition}
	c.flattenInto(doc)
	return doc
}

func loadForLoop(doc Document) (Entity, error) {
	l := &ForLoopEntity{Target: str(doc, "target"), Iterable: str(doc, "iterable")}
	return loadBlock(l, &l.block, doc)
}

func loadWhileLoop(doc Document) (Entity, error) {
	l := &WhileLoopEntity{Condition: str(doc, "condition")}
	return loadBlock(l, &l.block, doc)
}

func loadCondition(doc Document) (Entity, error) {
	c := &ConditionEntity{Keyword: str(doc, "keyword"), Condition: str(doc, "condition")}
	return loadBlock(c, &c.block, doc)
}

func loadBlock(e Entity, b *block, doc Document) (Entity, error) {
	stmts, err := loadBody(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Kind(), err)
	}
	b.Statements = stmts
	return e, nil
}

// IsBodyKind reports whether k may appear in a statement body.
func IsBodyKind(k Kind) bool {
	switch k {
	case KindStatement, KindForLoop, KindWhileLoop, KindCondition, KindFunction, KindClass:
		return true
	}
	return false
}

func bodyChildren(children map[string][]Entity) []Entity {
	var out []Entity
	for _, key := range sortedKeys(children) {
		for _, c := range children[key] {
			if IsBodyKind(c.Kind()) {
				out = append(out, c)
			}
		}
	}
	return out
}

func loadBody(doc Document) ([]Entity, error) {
	items, err := docs(doc, "statements")
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(items))
	for i, d := range items {
		e, err := Load(d)
		if err != nil {
			return nil, fmt.Errorf("statements[%d]: %w", i, err)
		}
		if !IsBodyKind(e.Kind()) {
			return nil, fmt.Errorf("%w: statements[%d] holds a %s", ErrMalformed, i, e.Kind())
		}
		out = append(out, e)
	}
	return out, nil
}
