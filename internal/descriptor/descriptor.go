// Package descriptor turns a grammar into the extractor of one language.
//
// A Descriptor owns the language's regex builder, its preprocessing
// directives and its named selectors. Construction validates the whole
// grammar: every directive must build and compile, every selector must name
// a known model element, existing format strings and existing sub-selector
// targets. Selector regexes are compiled lazily and cached.
package descriptor

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/internal/grammar"
	"github.com/jward/sifter/internal/model"
	"github.com/jward/sifter/internal/regexbuilder"
	"github.com/jward/sifter/internal/resolver"
	"github.com/jward/sifter/internal/runtime"
)

var (
	// ErrConfig is returned when a grammar cannot be turned into a descriptor.
	ErrConfig = errors.New("invalid grammar")
	// ErrDecode is returned for source files that are not valid UTF-8.
	ErrDecode = errors.New("source is not valid UTF-8")
	// ErrSchema is returned when an extracted model fails validation.
	ErrSchema = model.ErrSchema
)

const defaultCacheSize = 256

// Descriptor extracts models from the source files of one language.
type Descriptor struct {
	grammar    *grammar.Grammar
	language   string
	builder    *regexbuilder.Builder
	directives []directive
	selectors  map[string]*Selector
	topLevel   []string
	mappings   map[string]string
	resolver   *resolver.Resolver
	runtime    *runtime.Runtime
	compiled   *lru.Cache[string, compiled]
	cacheSize  int
	logger     logrus.FieldLogger
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

type directive struct {
	name       string
	variations []directiveVariation
}

type directiveVariation struct {
	re          *regexp.Regexp
	replacement string
	script      string
}

// Option configures a Descriptor.
type Option func(*Descriptor)

// WithLogger sets the logger for selection and resolution diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Descriptor) { d.logger = l }
}

// WithRuntime sets the Risor runtime used by scripted directives and to
// load script_file sources. A default runtime rooted at the grammar's
// directory is created when none is given.
func WithRuntime(rt *runtime.Runtime) Option {
	return func(d *Descriptor) { d.runtime = rt }
}

// WithCacheSize bounds the number of compiled selector regexes kept.
func WithCacheSize(n int) Option {
	return func(d *Descriptor) { d.cacheSize = n }
}

// New builds a Descriptor from g. Any inconsistency in g is reported as an
// error wrapping ErrConfig.
func New(g *grammar.Grammar, opts ...Option) (*Descriptor, error) {
	d := &Descriptor{
		grammar:   g,
		language:  g.Name(),
		builder:   regexbuilder.New(),
		selectors: make(map[string]*Selector, len(g.Selectors)),
		mappings:  make(map[string]string, len(g.JSONMappings)),
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.logger = l
	}
	d.logger = d.logger.WithField("language", d.language)
	if d.runtime == nil {
		d.runtime = runtime.NewRuntime(grammarDir(g), runtime.WithLogger(d.logger))
	}
	cache, err := lru.New[string, compiled](max(d.cacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("descriptor: %s: %w", d.language, err)
	}
	d.compiled = cache

	steps := []func() error{d.registerPatterns, d.buildDirectives, d.buildSelectors, d.buildMappings}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("descriptor: %s: %w", d.language, err)
		}
	}
	d.resolver = resolver.New(d.language, g.Info.Builtins, resolver.WithLogger(d.logger))
	d.lint()
	return d, nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func (d *Descriptor) registerPatterns() error {
	for _, name := range sortedNames(d.grammar.Snippets) {
		if err := d.builder.RegisterSnippet(name, d.grammar.Snippets[name]); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	for _, name := range sortedNames(d.grammar.FormatStrings) {
		fs := d.grammar.FormatStrings[name]
		if err := d.builder.RegisterFormatString(name, fs.Regex, fs.Dependencies); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	return nil
}

func (d *Descriptor) buildDirectives() error {
	for _, gd := range d.grammar.Directives {
		dir := directive{name: gd.Name}
		for i, v := range gd.Variations {
			built, err := d.builder.Build(v.RegexFormatString)
			if err != nil {
				return configErr("directive %s variation %d: %v", gd.Name, i, err)
			}
			re, err := regexp.Compile("(?m)" + built)
			if err != nil {
				return configErr("directive %s variation %d: compile: %v", gd.Name, i, err)
			}
			dv := directiveVariation{re: re, replacement: v.Replacement, script: v.Script}
			if v.ScriptFile != "" {
				src, err := d.runtime.LoadScript(v.ScriptFile)
				if err != nil {
					return configErr("directive %s variation %d: %v", gd.Name, i, err)
				}
				dv.script = src
			}
			dir.variations = append(dir.variations, dv)
		}
		d.directives = append(d.directives, dir)
	}
	return nil
}

func validKinds() string {
	kinds := model.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func (d *Descriptor) buildSelectors() error {
	for _, name := range sortedNames(d.grammar.Selectors) {
		gs := d.grammar.Selectors[name]
		kind := model.Kind(gs.ModelElement)
		construct, err := model.ConstructorFor(kind)
		if err != nil {
			return configErr("selector %s: %v (want one of %s)", name, err, validKinds())
		}
		if len(gs.Variations) == 0 {
			return configErr("selector %s has no variations", name)
		}
		for i, v := range gs.Variations {
			if !d.builder.Has(v.RegexFormatString) {
				return configErr("selector %s variation %d: format string %q not found", name, i, v.RegexFormatString)
			}
		}
		s := &Selector{
			name:       name,
			kind:       kind,
			construct:  construct,
			variations: gs.Variations,
			d:          d,
		}
		dedentByField := make(map[string]bool)
		for _, subName := range sortedNames(gs.Subselectors) {
			sub := gs.Subselectors[subName]
			if _, ok := d.grammar.Selectors[sub.Selector]; !ok {
				return configErr("selector %s subselector %s: selector %q not found", name, subName, sub.Selector)
			}
			if prev, seen := dedentByField[sub.Field]; seen && prev != sub.Dedent {
				return configErr("selector %s: subselectors of field %q disagree on dedent", name, sub.Field)
			}
			dedentByField[sub.Field] = sub.Dedent
			s.subs = append(s.subs, subselector{name: subName, field: sub.Field, selector: sub.Selector, dedent: sub.Dedent})
		}
		d.selectors[name] = s
		if gs.TopLevel {
			d.topLevel = append(d.topLevel, name)
		}
	}
	return nil
}

// groupFor is the document group each entity kind may be mapped to.
var groupFor = map[model.Kind]string{
	model.KindClass:      "classes",
	model.KindFunction:   "functions",
	model.KindDependency: "dependencies",
}

func (d *Descriptor) buildMappings() error {
	for _, name := range sortedNames(d.grammar.JSONMappings) {
		group := d.grammar.JSONMappings[name]
		s, ok := d.selectors[name]
		if !ok {
			return configErr("json mapping: selector %q not found", name)
		}
		if want, ok := groupFor[s.kind]; !ok || want != group {
			return configErr("json mapping: selector %s produces %s entities, cannot map to %q", name, s.kind, group)
		}
		d.mappings[name] = group
	}
	for _, name := range d.topLevel {
		if _, ok := d.mappings[name]; ok {
			continue
		}
		group, ok := groupFor[d.selectors[name].kind]
		if !ok {
			return configErr("top-level selector %s produces %s entities, which have no document group", name, d.selectors[name].kind)
		}
		d.mappings[name] = group
	}
	return nil
}

// LintIssue is a format string that does not build, or builds with
// placeholders nothing fills. Such placeholders stay in the pattern verbatim.
type LintIssue struct {
	FormatString string
	Placeholders []string
	Err          error
}

// Lint reports every format string with unresolved placeholders or a build
// error, sorted by name.
func (d *Descriptor) Lint() []LintIssue {
	var out []LintIssue
	for _, name := range d.builder.FormatStrings() {
		missing, err := d.builder.Unresolved(name)
		if err != nil || len(missing) > 0 {
			out = append(out, LintIssue{FormatString: name, Placeholders: missing, Err: err})
		}
	}
	return out
}

func (d *Descriptor) lint() {
	for _, issue := range d.Lint() {
		entry := d.logger.WithField("format_string", issue.FormatString)
		if issue.Err != nil {
			entry.WithError(issue.Err).Warn("format string does not build")
			continue
		}
		entry.WithField("placeholders", issue.Placeholders).Warn("unresolved placeholders")
	}
}

// Language returns the language name.
func (d *Descriptor) Language() string { return d.language }

// Grammar returns the grammar the descriptor was built from.
func (d *Descriptor) Grammar() *grammar.Grammar { return d.grammar }

// Selector returns the named selector.
func (d *Descriptor) Selector(name string) (*Selector, bool) {
	s, ok := d.selectors[name]
	return s, ok
}

// compile builds and compiles a format string in multiline mode, caching
// the outcome.
func (d *Descriptor) compile(name string) (*regexp.Regexp, error) {
	if c, ok := d.compiled.Get(name); ok {
		return c.re, c.err
	}
	var c compiled
	built, err := d.builder.Build(name)
	if err != nil {
		c.err = err
	} else {
		c.re, c.err = regexp.Compile("(?m)" + built)
	}
	d.compiled.Add(name, c)
	return c.re, c.err
}

func grammarDir(g *grammar.Grammar) string {
	if g.Path == "" {
		return ""
	}
	return filepath.Dir(g.Path)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
