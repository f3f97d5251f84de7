package model

// Children returns the entities directly nested in e, in source order.
func Children(e Entity) []Entity {
	var out []Entity
	switch v := e.(type) {
	case *ClassEntity:
		out = appendAll(out, v.Bases)
		out = appendAll(out, v.Attributes)
		out = appendAll(out, v.Methods)
		out = appendAll(out, v.Classes)
	case *FunctionEntity:
		out = appendAll(out, v.Parameters)
		out = append(out, v.Statements...)
	case *ReferenceEntity:
		out = appendAll(out, v.Parameters)
	case *StatementEntity:
		if v.RHS != nil {
			out = append(out, v.RHS)
		}
	case *OperatorEntity:
		out = appendAll(out, v.References)
	case *DependencyEntity:
		out = appendAll(out, v.Provides)
	case Block:
		out = append(out, v.Body()...)
	}
	return out
}

func appendAll[T Entity](dst []Entity, xs []T) []Entity {
	for _, x := range xs {
		dst = append(dst, x)
	}
	return dst
}

// Walk calls fn for e and, depth first, every entity beneath it. Returning
// false from fn skips the children of that entity.
func Walk(e Entity, fn func(Entity) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// References returns every reference beneath e, including e itself.
func References(e Entity) []*ReferenceEntity {
	var out []*ReferenceEntity
	Walk(e, func(n Entity) bool {
		if r, ok := n.(*ReferenceEntity); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}
