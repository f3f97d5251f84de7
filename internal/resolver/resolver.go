// Package resolver rewrites the names used by references into global
// identifiers.
//
// Names are looked up through a stack of lexical frames, innermost first:
//
//	[builtins] [dependencies] [module functions] [module classes] ... [innermost]
//
// A class pushes a frame of its methods and nested classes, a function a
// frame of itself and the definitions directly in its body, and a loop or
// condition an empty frame. Within a frame bindings are searched in
// declaration order and the first hit wins.
package resolver

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/internal/model"
)

// ModuleScope is the scope recorded for misses outside any definition.
const ModuleScope = "<module>"

// Unresolved is a reference whose name matched no binding. The reference
// keeps its name as written.
type Unresolved struct {
	Ref   string `json:"ref"`
	Scope string `json:"scope"`
}

// Resolver resolves references for one language.
type Resolver struct {
	language string
	builtins map[string]bool
	logger   logrus.FieldLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger that receives a warning per miss.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver for language with the given builtin names.
func New(language string, builtins []string, opts ...Option) *Resolver {
	r := &Resolver{language: language, builtins: make(map[string]bool, len(builtins))}
	for _, b := range builtins {
		r.builtins[b] = true
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		r.logger = l
	}
	return r
}

// Resolve returns a resolved copy of x and the references that could not be
// resolved, in traversal order. x is not modified.
func (r *Resolver) Resolve(x *model.Extraction) (*model.Extraction, []Unresolved, error) {
	out, err := x.Clone()
	if err != nil {
		return nil, nil, err
	}

	w := &walker{r: r}
	w.push(ModuleScope, r.builtinFrame())
	w.push(ModuleScope, r.dependencyFrame(out.Dependencies))
	w.push(ModuleScope, definitionFrame(out.Functions, nil))
	w.push(ModuleScope, definitionFrame(nil, out.Classes))

	for _, f := range out.Functions {
		w.function(f, "")
	}
	for _, c := range out.Classes {
		w.class(c)
	}
	return out, w.misses, nil
}

// lookup resolves the first segment of a dotted name within one frame.
type lookup func(name string) (string, bool)

type frame struct {
	owner string
	find  lookup
}

func (r *Resolver) builtinFrame() lookup {
	return func(name string) (string, bool) {
		if r.builtins[name] {
			return model.JoinID(r.language, "builtins."+name), true
		}
		return "", false
	}
}

// dependencyFrame walks dependencies in declaration order and binds name to
// the first one that provides it explicitly, imports it as a whole module
// (by its first segment) or provides the wildcard.
func (r *Resolver) dependencyFrame(deps []*model.DependencyEntity) lookup {
	return func(name string) (string, bool) {
		for _, d := range deps {
			if name != model.Wildcard && d.Exports(name) {
				return model.JoinID(r.language, d.Source+"."+name), true
			}
			if len(d.Provides) == 0 {
				if head, _, _ := strings.Cut(d.Source, "."); head == name {
					return model.JoinID(r.language, head), true
				}
			}
			if d.IsWildcard() {
				return model.JoinID(r.language, d.Source+"."+model.Wildcard), true
			}
		}
		return "", false
	}
}

func definitionFrame(fns []*model.FunctionEntity, classes []*model.ClassEntity) lookup {
	return func(name string) (string, bool) {
		for _, f := range fns {
			if f.Name == name {
				return f.GlobalIdentifier, true
			}
		}
		for _, c := range classes {
			if c.Name == name {
				return c.GlobalIdentifier, true
			}
		}
		return "", false
	}
}

func emptyFrame(string) (string, bool) { return "", false }

type walker struct {
	r      *Resolver
	stack  []frame
	misses []Unresolved
}

func (w *walker) push(owner string, find lookup) {
	w.stack = append(w.stack, frame{owner: owner, find: find})
}

func (w *walker) pop() { w.stack = w.stack[:len(w.stack)-1] }

func (w *walker) scope() string { return w.stack[len(w.stack)-1].owner }

func (w *walker) find(name string) (string, bool) {
	for i := len(w.stack) - 1; i >= 0; i-- {
		if gid, ok := w.stack[i].find(name); ok {
			return gid, true
		}
	}
	return "", false
}

// function resolves f's body. receiver names the class f is a method of;
// its first parameter is then bound to that class.
func (w *walker) function(f *model.FunctionEntity, receiver string) {
	self := ""
	if receiver != "" && len(f.Parameters) > 0 {
		self = f.Parameters[0].Name
	}
	nested := definitionFrame(directDefinitions(f.Statements))
	w.push(f.GlobalIdentifier, func(name string) (string, bool) {
		switch {
		case name == f.Name:
			return f.GlobalIdentifier, true
		case self != "" && name == self:
			return receiver, true
		}
		return nested(name)
	})
	w.body(f.Statements)
	w.pop()
}

func (w *walker) class(c *model.ClassEntity) {
	for _, b := range c.Bases {
		w.reference(b)
	}
	w.push(c.GlobalIdentifier, definitionFrame(c.Methods, c.Classes))
	for _, m := range c.Methods {
		w.function(m, c.GlobalIdentifier)
	}
	for _, nested := range c.Classes {
		w.class(nested)
	}
	w.pop()
}

func (w *walker) body(stmts []model.Entity) {
	for _, s := range stmts {
		switch v := s.(type) {
		case *model.StatementEntity:
			w.rhs(v.RHS)
		case *model.FunctionEntity:
			w.function(v, "")
		case *model.ClassEntity:
			w.class(v)
		case model.Block:
			w.push(w.scope(), emptyFrame)
			w.body(v.Body())
			w.pop()
		}
	}
}

func (w *walker) rhs(e model.Entity) {
	switch v := e.(type) {
	case *model.ReferenceEntity:
		w.reference(v)
	case *model.OperatorEntity:
		for _, ref := range v.References {
			w.reference(ref)
		}
	}
}

// reference resolves the first segment of the dotted name target.ref and
// appends the remaining segments to the bound identifier.
func (w *walker) reference(ref *model.ReferenceEntity) {
	full := model.JoinID(ref.Target, ref.Ref)
	head, rest, _ := strings.Cut(full, ".")
	gid, ok := w.find(head)
	if !ok {
		w.misses = append(w.misses, Unresolved{Ref: full, Scope: w.scope()})
		w.r.logger.WithFields(logrus.Fields{
			"language": w.r.language,
			"ref":      full,
			"scope":    w.scope(),
		}).Warn("unresolved reference")
		return
	}
	if rest != "" && !strings.HasSuffix(gid, "."+model.Wildcard) {
		gid += "." + rest
	}
	ref.Ref = gid
}

func directDefinitions(stmts []model.Entity) ([]*model.FunctionEntity, []*model.ClassEntity) {
	var (
		fns     []*model.FunctionEntity
		classes []*model.ClassEntity
	)
	for _, s := range stmts {
		switch v := s.(type) {
		case *model.FunctionEntity:
			fns = append(fns, v)
		case *model.ClassEntity:
			classes = append(classes, v)
		}
	}
	return fns, classes
}
