package model

import (
	"sort"
	"strings"
)

func structured(e Entity) bool {
	return e.Kind() != KindStatement
}

// PruneBody orders body children by source position and removes duplicate
// representations of the same lines: a flat statement inside a structured
// child (loop, condition, function, class) is dropped in favour of the
// child, and a structured child nested inside another is dropped because
// the outer one carries it. Of two structured children with the same span
// the first is kept.
func PruneBody(children []Entity) []Entity {
	sorted := append([]Entity(nil), children...)
	sortBySpan(sorted)

	out := make([]Entity, 0, len(sorted))
	for i, e := range sorted {
		covered := false
		for j, s := range sorted {
			if i == j || !structured(s) || !s.Span().Contains(e.Span()) {
				continue
			}
			if !structured(e) || s.Span() != e.Span() || j < i {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, e)
		}
	}
	return out
}

func sortBySpan[T Entity](xs []T) {
	sort.SliceStable(xs, func(i, j int) bool {
		a, b := xs[i].Span(), xs[j].Span()
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End > b.End
	})
}

func sortedKeys(m map[string][]Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SplitArgs splits a comma separated list, ignoring commas nested inside
// brackets or quotes. Empty items are dropped.
func SplitArgs(text string) []string {
	var (
		out   []string
		depth int
		quote rune
		start int
	)
	flush := func(end int) {
		if item := strings.TrimSpace(text[start:end]); item != "" {
			out = append(out, item)
		}
	}
	for i, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			flush(i)
			start = i + 1
		}
	}
	flush(len(text))
	return out
}
