package grammar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
)

// Registry maps language names and file extensions to grammars. Grammars
// added later replace earlier ones of the same name, so descriptors on disk
// override embedded defaults.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Grammar
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Grammar)}
}

// Add registers g, replacing any grammar with the same name.
func (r *Registry) Add(g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[g.Name()] = g
}

// LoadFS adds every descriptor at the root of fsys.
func (r *Registry) LoadFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("grammar: read fs: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsDescriptor(e.Name()) {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return fmt.Errorf("grammar: %s: %w", e.Name(), err)
		}
		g, err := Parse(data, path.Ext(e.Name()))
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		g.Path = e.Name()
		g.fsys = fsys
		r.Add(g)
	}
	return nil
}

// LoadDir adds every descriptor in dir. A missing dir is not an error.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("grammar: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsDescriptor(e.Name()) {
			continue
		}
		g, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		r.Add(g)
	}
	return nil
}

// Get returns the grammar for a language.
func (r *Registry) Get(lang string) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byName[lang]
	return g, ok
}

// Languages returns every registered language, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LanguagesForExtension returns the languages claiming ext, sorted.
func (r *Registry) LanguagesForExtension(ext string) []string {
	ext = NormalizeExt(ext)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, g := range r.byName {
		for _, e := range g.Extensions() {
			if e == ext {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// LanguageForFile returns the first language claiming the file's extension.
func (r *Registry) LanguageForFile(p string) (string, bool) {
	langs := r.LanguagesForExtension(filepath.Ext(p))
	if len(langs) == 0 {
		return "", false
	}
	return langs[0], true
}

// Extensions maps every known extension to its languages.
func (r *Registry) Extensions() map[string][]string {
	out := make(map[string][]string)
	for _, lang := range r.Languages() {
		g, _ := r.Get(lang)
		for _, e := range g.Extensions() {
			out[e] = append(out[e], lang)
		}
	}
	return out
}

// SourceDirs returns the language's global source directories.
func (r *Registry) SourceDirs(lang string) []string {
	g, ok := r.Get(lang)
	if !ok {
		return nil
	}
	return append([]string(nil), g.Info.GlobalSources...)
}
