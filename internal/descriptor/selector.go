package descriptor

import (
	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/internal/grammar"
	"github.com/jward/sifter/internal/model"
)

// maxDepth bounds selector recursion for grammars whose selectors select
// themselves.
const maxDepth = 64

// Selector is a named extraction rule of a Descriptor.
type Selector struct {
	name       string
	kind       model.Kind
	construct  model.Constructor
	variations []grammar.Variation
	subs       []subselector
	d          *Descriptor
}

type subselector struct {
	name     string
	field    string
	selector string
	dedent   bool
}

// Name returns the selector name.
func (s *Selector) Name() string { return s.name }

// Kind returns the model element the selector produces.
func (s *Selector) Kind() model.Kind { return s.kind }

// Select runs every variation over text and returns the constructed
// entities in order of their position in text. prefix is the global
// identifier prefix of the entities; their children are prefixed with the
// entity's own identifier.
func (s *Selector) Select(text, prefix string) []model.Entity {
	return s.selectAt(text, prefix, 0)
}

func (s *Selector) selectAt(text, prefix string, depth int) []model.Entity {
	log := s.d.logger.WithField("selector", s.name)
	if depth > maxDepth {
		log.Warn("selector recursion limit reached")
		return nil
	}
	var out []model.Entity
	for i, v := range s.variations {
		re, err := s.d.compile(v.RegexFormatString)
		if err != nil {
			log.WithError(err).WithField("variation", i).Warn("skipping variation")
			continue
		}
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if e := s.construct1(text, loc, v, prefix, depth, log.WithField("variation", i)); e != nil {
				out = append(out, e)
			}
		}
	}
	sortByStart(out)
	return out
}

func (s *Selector) construct1(text string, loc []int, v grammar.Variation, prefix string, depth int, log logrus.FieldLogger) model.Entity {
	fields := make(map[string]string, len(v.Fields))
	for field, group := range v.Fields {
		if group < 0 || 2*group+1 >= len(loc) || loc[2*group] < 0 {
			log.WithField("field", field).Debug("capture group did not participate")
			continue
		}
		fields[field] = text[loc[2*group]:loc[2*group+1]]
	}

	e, err := s.construct(model.Source{
		Language: s.d.language,
		Prefix:   prefix,
		Text:     text[loc[0]:loc[1]],
		Fields:   fields,
	})
	if err != nil {
		log.WithError(err).Debug("match rejected")
		return nil
	}
	e.SetSpan(model.Span{Start: loc[0], End: loc[1]})

	sel, ok := e.(model.Selectable)
	if !ok || len(s.subs) == 0 {
		return e
	}
	childPrefix := prefix
	if id, ok := e.(model.Identified); ok && id.Ident() != "" {
		childPrefix = id.Ident()
	}
	children := make(map[string][]model.Entity, len(s.subs))
	for _, sub := range s.subs {
		ftext, ok := fields[sub.field]
		if !ok {
			continue
		}
		if sub.dedent {
			ftext = model.Dedent(ftext)
		}
		kids := s.d.selectors[sub.selector].selectAt(ftext, childPrefix, depth+1)
		for _, k := range kids {
			span := k.Span()
			span.Field = sub.field
			k.SetSpan(span)
		}
		children[sub.name] = kids
	}
	sel.AddSubselection(children)
	return e
}
