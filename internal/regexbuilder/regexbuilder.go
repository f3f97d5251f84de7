// Package regexbuilder composes named regex fragments into complete patterns.
//
// Snippets are literal fragments. Format strings are templates containing
// {{name}} placeholders that are filled from their declared dependencies or
// from registered snippets. Both kinds share one namespace.
package regexbuilder

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"
)

var (
	// ErrDuplicateName is returned when a name is registered twice.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrNotFound is returned when building a name that was never registered.
	ErrNotFound = errors.New("not found")
	// ErrCycle is returned when format strings depend on each other.
	ErrCycle = errors.New("dependency cycle")
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][-a-zA-Z0-9_]*)\s*\}\}`)

type formatString struct {
	template string
	deps     []string
}

// Builder holds the snippets and format strings of one language.
type Builder struct {
	mu       sync.RWMutex
	snippets map[string]string
	formats  map[string]formatString
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{
		snippets: make(map[string]string),
		formats:  make(map[string]formatString),
	}
}

// RegisterSnippet registers a literal fragment under name.
func (b *Builder) RegisterSnippet(name, fragment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exists(name) {
		return fmt.Errorf("regexbuilder: register snippet %q: %w", name, ErrDuplicateName)
	}
	b.snippets[name] = fragment
	return nil
}

// RegisterFormatString registers a template whose placeholders are filled
// from deps (and from snippets) at build time.
func (b *Builder) RegisterFormatString(name, template string, deps []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exists(name) {
		return fmt.Errorf("regexbuilder: register format string %q: %w", name, ErrDuplicateName)
	}
	b.formats[name] = formatString{template: template, deps: slices.Clone(deps)}
	return nil
}

func (b *Builder) exists(name string) bool {
	_, snip := b.snippets[name]
	_, format := b.formats[name]
	return snip || format
}

// Has reports whether name is registered in either namespace.
func (b *Builder) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exists(name)
}

// FormatStrings returns the names of registered format strings, sorted.
func (b *Builder) FormatStrings() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.formats))
	for n := range b.formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build returns the final pattern text for name. Snippets are returned
// verbatim. Placeholders in a format string that name neither a declared
// dependency nor a snippet are left in the output unchanged; see Unresolved.
func (b *Builder) Build(name string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.build(name, nil)
}

func (b *Builder) build(name string, stack []string) (string, error) {
	if s, ok := b.snippets[name]; ok {
		return s, nil
	}
	f, ok := b.formats[name]
	if !ok {
		return "", fmt.Errorf("regexbuilder: build %q: %w", name, ErrNotFound)
	}
	if slices.Contains(stack, name) {
		return "", fmt.Errorf("regexbuilder: build %q via %v: %w", name, stack, ErrCycle)
	}
	stack = append(stack, name)

	local := make(map[string]string, len(f.deps))
	for _, dep := range f.deps {
		v, err := b.build(dep, stack)
		if err != nil {
			return "", err
		}
		local[dep] = v
	}

	// ReplaceAllStringFunc inserts the returned text literally, so
	// backslashes and $ in fragments survive untouched.
	return placeholderRe.ReplaceAllStringFunc(f.template, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := local[key]; ok {
			return v
		}
		if v, ok := b.snippets[key]; ok {
			return v
		}
		return m
	}), nil
}

// Unresolved builds name and returns the placeholder names that remain in
// the output, in order of appearance.
func (b *Builder) Unresolved(name string) ([]string, error) {
	out, err := b.Build(name)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(out, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names, nil
}
