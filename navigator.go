package sifter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/internal/model"
	"github.com/jward/sifter/internal/store"
)

// MaxNavigateDepth caps the recursion depth of Navigate.
const MaxNavigateDepth = 100

// ErrNegativeDepth is returned by Navigate for a negative recursion depth.
var ErrNegativeDepth = errors.New("recursion depth must not be negative")

// ModelLocator finds the model document declaring a global identifier.
type ModelLocator interface {
	Locate(globalID string) (path string, ok bool, err error)
}

// DirLocator locates models by the output layout
// <dir>/<language>/<dotted path as directories>.json, trying the longest
// prefix of the identifier first.
type DirLocator string

// Locate implements ModelLocator.
func (d DirLocator) Locate(globalID string) (string, bool, error) {
	segs := strings.Split(globalID, ".")
	for k := len(segs); k >= 2; k-- {
		p := filepath.Join(string(d), segs[0], filepath.Join(segs[1:k]...)+".json")
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, true, nil
		}
	}
	return "", false, nil
}

// CatalogLocator locates models through the catalog.
type CatalogLocator struct {
	Store *store.Store
}

// Locate implements ModelLocator.
func (c CatalogLocator) Locate(globalID string) (string, bool, error) {
	rec, err := c.Store.LocateModel(globalID)
	if err != nil || rec == nil {
		return "", false, err
	}
	return rec.ModelPath, true, nil
}

// Node is one step of a usage chain: ID is reached from its parent.
type Node struct {
	ID       string  `json:"id"`
	Children []*Node `json:"children,omitempty"`
}

// Usage is a call that receives a tracked value.
type Usage struct {
	// Ref is the call target as recorded in the model.
	Ref string
	// Function is the loaded target, or nil when its model is not loaded.
	Function *model.FunctionEntity
	// Argument is the position of the tracked value among the call's
	// arguments, and Parameter the name the target binds it to, if known.
	Argument  int
	Parameter string
}

// ID returns the target's global identifier.
func (u Usage) ID() string {
	if u.Function != nil {
		return u.Function.GlobalIdentifier
	}
	return u.Ref
}

// Navigator holds loaded model documents and answers reference queries over
// them. It is not safe for concurrent use.
type Navigator struct {
	models   map[string]*model.Model
	entities map[string]model.Entity
	locator  ModelLocator
	logger   logrus.FieldLogger
}

// NavigatorOption configures a Navigator.
type NavigatorOption func(*Navigator)

// WithLocator sets how dependency models are found.
func WithLocator(l ModelLocator) NavigatorOption {
	return func(n *Navigator) { n.locator = l }
}

// WithNavigatorLogger sets the navigator's logger.
func WithNavigatorLogger(l logrus.FieldLogger) NavigatorOption {
	return func(n *Navigator) { n.logger = l }
}

// NewNavigator creates an empty Navigator.
func NewNavigator(opts ...NavigatorOption) *Navigator {
	n := &Navigator{
		models:   make(map[string]*model.Model),
		entities: make(map[string]model.Entity),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		n.logger = l
	}
	return n
}

// LoadFile loads the model document at path. A model already loaded under
// the same id is kept and returned. With loadDependencies, the models
// declaring the reference targets found in it are loaded too, recursively.
func (n *Navigator) LoadFile(path string, loadDependencies bool) (*model.Model, error) {
	m, err := model.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("navigator: %w", err)
	}
	if existing, ok := n.models[m.ModelID]; ok {
		return existing, nil
	}
	n.Add(m)
	n.logger.WithFields(logrus.Fields{"model_id": m.ModelID, "file": path}).Debug("model loaded")
	if loadDependencies {
		n.loadDependencies(m)
	}
	return m, nil
}

// Add registers an in-memory model. A model with the same id is replaced,
// along with the entities indexed from it.
func (n *Navigator) Add(m *model.Model) {
	if old, ok := n.models[m.ModelID]; ok {
		eachIdentified(old, func(id string, x model.Entity) {
			if n.entities[id] == x {
				delete(n.entities, id)
			}
		})
	}
	n.models[m.ModelID] = m
	eachIdentified(m, func(id string, x model.Entity) {
		if _, seen := n.entities[id]; !seen {
			n.entities[id] = x
		}
	})
}

func eachIdentified(m *model.Model, fn func(id string, x model.Entity)) {
	for _, e := range topLevel(m) {
		model.Walk(e, func(x model.Entity) bool {
			if id, ok := x.(model.Identified); ok && id.Ident() != "" {
				fn(id.Ident(), x)
			}
			return true
		})
	}
}

func (n *Navigator) loadDependencies(m *model.Model) {
	if n.locator == nil {
		return
	}
	for _, e := range topLevel(m) {
		for _, r := range model.References(e) {
			id := r.Ref
			if !strings.Contains(id, ".") || isBuiltin(id) {
				continue
			}
			if _, loaded := n.EntityModelIsLoaded(id); loaded {
				continue
			}
			log := n.logger.WithField("ref", id)
			path, ok, err := n.locator.Locate(id)
			if err != nil {
				log.WithError(err).Warn("locating dependency model failed")
				continue
			}
			if !ok {
				log.Debug("no model declares reference")
				continue
			}
			if _, err := n.LoadFile(path, true); err != nil {
				log.WithError(err).Warn("loading dependency model failed")
			}
		}
	}
}

// isBuiltin reports whether id names a builtin, which no model declares.
func isBuiltin(id string) bool {
	segs := strings.SplitN(id, ".", 3)
	if segs[0] == "builtin" || segs[0] == "builtins" {
		return true
	}
	return len(segs) > 1 && segs[1] == "builtins"
}

func topLevel(m *model.Model) []model.Entity {
	out := make([]model.Entity, 0, len(m.Classes)+len(m.Functions)+len(m.Dependencies))
	for _, c := range m.Classes {
		out = append(out, c)
	}
	for _, f := range m.Functions {
		out = append(out, f)
	}
	for _, d := range m.Dependencies {
		out = append(out, d)
	}
	return out
}

// Models returns the loaded model ids, sorted.
func (n *Navigator) Models() []string {
	ids := make([]string, 0, len(n.models))
	for id := range n.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntityModelIsLoaded returns the shortest dotted prefix of globalID that is
// a loaded model id.
func (n *Navigator) EntityModelIsLoaded(globalID string) (string, bool) {
	segs := strings.Split(globalID, ".")
	for i := range segs {
		prefix := strings.Join(segs[:i+1], ".")
		if _, ok := n.models[prefix]; ok {
			return prefix, true
		}
	}
	return "", false
}

// LookupEntity returns the loaded entity with the given global identifier.
// When its model is not loaded yet and a locator is set, the model is
// loaded first.
func (n *Navigator) LookupEntity(globalID string) (model.Entity, bool) {
	if e, ok := n.entities[globalID]; ok {
		return e, true
	}
	if _, loaded := n.EntityModelIsLoaded(globalID); loaded || n.locator == nil {
		return nil, false
	}
	path, ok, err := n.locator.Locate(globalID)
	if err != nil || !ok {
		return nil, false
	}
	if _, err := n.LoadFile(path, false); err != nil {
		n.logger.WithError(err).WithField("ref", globalID).Warn("loading model failed")
		return nil, false
	}
	e, ok := n.entities[globalID]
	return e, ok
}

// functions returns every loaded function: module functions, methods of
// classes at any depth and functions nested in bodies, each once, in model
// id order.
func (n *Navigator) functions() []*model.FunctionEntity {
	var out []*model.FunctionEntity
	seen := make(map[*model.FunctionEntity]bool)
	for _, id := range n.Models() {
		for _, e := range topLevel(n.models[id]) {
			model.Walk(e, func(x model.Entity) bool {
				if f, ok := x.(*model.FunctionEntity); ok && !seen[f] {
					seen[f] = true
					out = append(out, f)
				}
				return true
			})
		}
	}
	return out
}

// FindReferencesToGlobalID returns the loaded functions with a reference to
// target anywhere beneath them.
func (n *Navigator) FindReferencesToGlobalID(target string) []*model.FunctionEntity {
	var out []*model.FunctionEntity
	for _, f := range n.functions() {
		for _, r := range model.References(f) {
			if r.Ref == target {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// FindUsages follows name through fn's body. A plain assignment of name (or
// of a call to name) to another variable continues the search under that
// variable; a call taking name as an argument is a usage. Nested bodies are
// searched too.
func (n *Navigator) FindUsages(fn *model.FunctionEntity, name string) []Usage {
	u := &usageFinder{
		n:     n,
		root:  fn.Statements,
		names: make(map[string]bool),
		seen:  make(map[string]bool),
	}
	u.track(name)
	return u.out
}

type usageFinder struct {
	n     *Navigator
	root  []model.Entity
	names map[string]bool
	seen  map[string]bool
	out   []Usage
}

func (u *usageFinder) track(name string) {
	if name == "" || u.names[name] {
		return
	}
	u.names[name] = true
	var aliases []string
	u.scan(u.root, name, &aliases)
	for _, a := range aliases {
		u.track(a)
	}
}

func (u *usageFinder) scan(body []model.Entity, name string, aliases *[]string) {
	for _, s := range body {
		switch v := s.(type) {
		case *model.StatementEntity:
			if v.LHS != "" && assigns(v.RHS, name) {
				*aliases = append(*aliases, strings.TrimSpace(v.LHS))
			}
			for _, r := range model.References(v) {
				if i := r.ArgumentIndex(name); i >= 0 {
					u.record(r, i)
				}
			}
		case *model.FunctionEntity:
			u.scan(v.Statements, name, aliases)
		case *model.ClassEntity:
			for _, m := range v.Methods {
				u.scan(m.Statements, name, aliases)
			}
		case model.Block:
			u.scan(v.Body(), name, aliases)
		}
	}
}

// assigns reports whether rhs hands the value of name on unchanged, or is a
// call to name.
func assigns(rhs model.Entity, name string) bool {
	switch v := rhs.(type) {
	case *model.ReferenceEntity:
		return v.Ref == name
	case *model.BasicStringEntity:
		return strings.TrimSpace(v.Value) == name
	case *model.OperatorEntity:
		if strings.TrimSpace(v.Left) == name || strings.TrimSpace(v.Right) == name {
			return true
		}
		for _, r := range v.References {
			if r.Ref == name {
				return true
			}
		}
	}
	return false
}

func (u *usageFinder) record(r *model.ReferenceEntity, arg int) {
	key := fmt.Sprintf("%s#%d", r.Ref, arg)
	if u.seen[key] {
		return
	}
	u.seen[key] = true
	usage := Usage{Ref: r.Ref, Argument: arg}
	if e, ok := u.n.entities[r.Ref]; ok {
		if f, ok := e.(*model.FunctionEntity); ok {
			usage.Function = f
			// A call through a receiver does not pass the receiver parameter.
			idx := arg
			if r.Target != "" && len(f.Parameters) == len(r.Parameters)+1 {
				idx++
			}
			if idx < len(f.Parameters) {
				usage.Parameter = f.Parameters[idx].Name
			}
		}
	}
	u.out = append(u.out, usage)
}

// Navigate loads files with their dependencies and returns, for every
// function referencing globalID, a node whose children are the calls the
// referenced value flows into. Each loaded call target is expanded in turn
// through the parameter receiving the value, until depth levels below the
// roots have been built.
func (n *Navigator) Navigate(ctx context.Context, globalID string, depth int, files []string) ([]*Node, error) {
	if depth < 0 {
		return nil, fmt.Errorf("navigator: %w", ErrNegativeDepth)
	}
	depth = min(depth, MaxNavigateDepth)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := n.LoadFile(f, true); err != nil {
			return nil, err
		}
	}

	var forest []*Node
	for _, fn := range n.FindReferencesToGlobalID(globalID) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := map[string]bool{fn.GlobalIdentifier: true}
		forest = append(forest, &Node{
			ID:       fn.GlobalIdentifier,
			Children: n.expand(n.FindUsages(fn, globalID), depth, path),
		})
	}
	return forest, nil
}

func (n *Navigator) expand(usages []Usage, depth int, path map[string]bool) []*Node {
	if depth <= 0 || len(usages) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(usages))
	for _, u := range usages {
		node := &Node{ID: u.ID()}
		if u.Function != nil && u.Parameter != "" && !path[node.ID] {
			path[node.ID] = true
			node.Children = n.expand(n.FindUsages(u.Function, u.Parameter), depth-1, path)
			delete(path, node.ID)
		}
		nodes = append(nodes, node)
	}
	return nodes
}
