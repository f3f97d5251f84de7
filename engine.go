package sifter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/grammars"
	"github.com/jward/sifter/internal/descriptor"
	"github.com/jward/sifter/internal/grammar"
	"github.com/jward/sifter/internal/metrics"
	"github.com/jward/sifter/internal/model"
	sifterrt "github.com/jward/sifter/internal/runtime"
	"github.com/jward/sifter/internal/store"
)

// ErrUnknownLanguage is returned when no grammar is registered for a
// language.
var ErrUnknownLanguage = errors.New("unknown language")

// Engine owns the grammar registry, one lazily built Descriptor per
// language, the optional catalog and the translation settings.
type Engine struct {
	registry *grammar.Registry

	mu          sync.Mutex
	descriptors map[string]*descriptor.Descriptor

	outputDir   string
	langsDir    string
	extraFS     []fs.FS
	sourceRoots []string
	jobs        int
	force       bool
	lazy        bool
	languages   map[string]bool // nil means all languages
	excludes    []glob.Glob
	patterns    []string

	catalogPath string
	store       *store.Store
	metrics     *metrics.Recorder
	logger      logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to descriptors, resolvers and
// navigators.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithJobs bounds the number of files translated concurrently.
func WithJobs(n int) Option {
	return func(e *Engine) { e.jobs = n }
}

// WithSourceRoots sets the roots model identifiers are computed against.
func WithSourceRoots(roots ...string) Option {
	return func(e *Engine) { e.sourceRoots = roots }
}

// WithForce re-extracts files even when their models are current.
func WithForce(force bool) Option {
	return func(e *Engine) { e.force = force }
}

// WithLazy defers building a language's Descriptor until a file of that
// language is translated. Otherwise every registered grammar is validated
// by New.
func WithLazy(lazy bool) Option {
	return func(e *Engine) { e.lazy = lazy }
}

// WithLanguages restricts which languages the Engine will translate.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithExcludes skips files matching any of the glob patterns, checked
// against the slash separated path and the base name.
func WithExcludes(patterns ...string) Option {
	return func(e *Engine) { e.patterns = append(e.patterns, patterns...) }
}

// WithLangsDir loads grammar files from dir, overriding built-in grammars
// of the same name.
func WithLangsDir(dir string) Option {
	return func(e *Engine) { e.langsDir = dir }
}

// WithGrammarFS loads the grammars at the root of fsys after the built-in
// ones.
func WithGrammarFS(fsys fs.FS) Option {
	return func(e *Engine) { e.extraFS = append(e.extraFS, fsys) }
}

// WithCatalog records models and runs in the SQLite catalog at path.
func WithCatalog(path string) Option {
	return func(e *Engine) { e.catalogPath = path }
}

// WithMetrics records translation metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// New creates an Engine writing models under outputDir.
func New(outputDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		registry:    grammar.NewRegistry(),
		descriptors: make(map[string]*descriptor.Descriptor),
		outputDir:   outputDir,
		jobs:        runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.logger = l
	}
	if e.jobs < 1 {
		e.jobs = 1
	}

	for _, p := range e.patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("sifter: exclude %q: %w", p, err)
		}
		e.excludes = append(e.excludes, g)
	}

	if err := e.registry.LoadFS(grammars.FS); err != nil {
		return nil, fmt.Errorf("sifter: built-in grammars: %w", err)
	}
	for _, fsys := range e.extraFS {
		if err := e.registry.LoadFS(fsys); err != nil {
			return nil, fmt.Errorf("sifter: grammars: %w", err)
		}
	}
	if e.langsDir != "" {
		if err := e.registry.LoadDir(e.langsDir); err != nil {
			return nil, fmt.Errorf("sifter: grammars: %w", err)
		}
	}

	if e.catalogPath != "" {
		if err := os.MkdirAll(filepath.Dir(e.catalogPath), 0o755); err != nil {
			return nil, fmt.Errorf("sifter: catalog dir: %w", err)
		}
		s, err := store.NewStore(e.catalogPath)
		if err != nil {
			return nil, fmt.Errorf("sifter: create catalog: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("sifter: migrate: %w", err)
		}
		e.store = s
	}

	if !e.lazy {
		for _, lang := range e.registry.Languages() {
			if e.languages != nil && !e.languages[lang] {
				continue
			}
			if _, err := e.Descriptor(lang); err != nil {
				e.Close()
				return nil, err
			}
		}
	}
	return e, nil
}

// Close releases the catalog, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the catalog, or nil when none is configured.
func (e *Engine) Store() *store.Store {
	return e.store
}

// OutputDir returns the directory models are written under.
func (e *Engine) OutputDir() string {
	return e.outputDir
}

// Languages returns every registered language, sorted.
func (e *Engine) Languages() []string {
	return e.registry.Languages()
}

// Grammar returns the grammar of a language.
func (e *Engine) Grammar(lang string) (*grammar.Grammar, bool) {
	return e.registry.Get(lang)
}

// Descriptor returns the language's Descriptor, building it on first use.
func (e *Engine) Descriptor(lang string) (*descriptor.Descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.descriptors[lang]; ok {
		return d, nil
	}
	g, ok := e.registry.Get(lang)
	if !ok {
		return nil, fmt.Errorf("sifter: %q: %w", lang, ErrUnknownLanguage)
	}
	opts := []descriptor.Option{descriptor.WithLogger(e.logger)}
	if g.FS() != nil {
		rt := sifterrt.NewRuntime("", sifterrt.WithRuntimeFS(g.FS()), sifterrt.WithLogger(e.logger))
		opts = append(opts, descriptor.WithRuntime(rt))
	}
	d, err := descriptor.New(g, opts...)
	if err != nil {
		return nil, fmt.Errorf("sifter: %w", err)
	}
	e.descriptors[lang] = d
	return d, nil
}

// Lint builds every language's Descriptor and reports its format strings
// with unresolved placeholders. Languages whose grammar does not build are
// reported in the returned error.
func (e *Engine) Lint() (map[string][]LintIssue, error) {
	out := make(map[string][]LintIssue)
	var errs []error
	for _, lang := range e.registry.Languages() {
		d, err := e.Descriptor(lang)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[lang] = d.Lint()
	}
	return out, errors.Join(errs...)
}

// Models lists the known models of a language, or of every language when
// lang is empty. Without a catalog the output directory is scanned.
func (e *Engine) Models(lang string) ([]*ModelRecord, error) {
	if e.store != nil {
		return e.store.Models(lang)
	}
	root := e.outputDir
	if lang != "" {
		root = filepath.Join(root, lang)
	}
	var out []*ModelRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		m, err := model.ReadFile(path)
		if err != nil {
			e.logger.WithError(err).WithField("file", path).Debug("not a model document")
			return nil
		}
		out = append(out, &ModelRecord{
			ModelID:    m.ModelID,
			Language:   m.SourceLanguage,
			SourcePath: m.FileName,
			ModelPath:  path,
			Hash:       m.Hash,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sifter: list models: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

// ModelsByID returns the known models among ids, ordered by model id.
// Unknown ids are left out.
func (e *Engine) ModelsByID(ids []string) ([]*ModelRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if e.store != nil {
		return e.store.ModelsByID(ids)
	}
	all, err := e.Models("")
	if err != nil {
		return nil, err
	}
	var out []*ModelRecord
	for _, r := range all {
		if slices.Contains(ids, r.ModelID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Navigator returns an empty Navigator that locates dependency models
// through the catalog, or the output directory without one.
func (e *Engine) Navigator() *Navigator {
	var loc ModelLocator = DirLocator(e.outputDir)
	if e.store != nil {
		loc = CatalogLocator{Store: e.store}
	}
	return NewNavigator(WithLocator(loc), WithNavigatorLogger(e.logger))
}

// Navigate loads files and builds the usage forest of globalID.
func (e *Engine) Navigate(ctx context.Context, globalID string, depth int, files []string) ([]*Node, error) {
	return e.Navigator().Navigate(ctx, globalID, depth, files)
}

// Hunt runs a taint search. With req.Language set, that language's
// configured sinks, sources and cleaners are added to the request's.
func (e *Engine) Hunt(ctx context.Context, req HuntRequest) (map[string][]*Node, error) {
	if req.Language != "" {
		g, ok := e.registry.Get(req.Language)
		if !ok {
			return nil, fmt.Errorf("sifter: hunt: %q: %w", req.Language, ErrUnknownLanguage)
		}
		req.Sinks = mergeIDs(req.Sinks, g.Info.Sinks)
		req.Dangers = mergeIDs(req.Dangers, g.Info.Sources)
		req.Cleaners = mergeIDs(req.Cleaners, g.Info.Cleaners)
	}
	return Hunt(ctx, e.Navigator(), req, e.logger)
}

// skipDirs are never descended into by TranslateDirectory.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// TranslateDirectory translates every supported file under root. Hidden
// directories, skipDirs, paths ignored by .gitignore files and excluded
// paths are left out.
func (e *Engine) TranslateDirectory(ctx context.Context, root string) (*TranslateReport, error) {
	paths, err := e.ListFiles(root)
	if err != nil {
		return nil, err
	}
	return e.TranslateFiles(ctx, paths)
}

// ListFiles returns the files TranslateDirectory would translate, sorted.
func (e *Engine) ListFiles(root string) ([]string, error) {
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		e.logger.WithError(err).WithField("file", root).Warn("reading .gitignore failed")
	}
	matcher := gitignore.NewMatcher(patterns)

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		segs := strings.Split(filepath.ToSlash(rel), "/")
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] || matcher.Match(segs, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.Match(segs, false) || e.excluded(filepath.ToSlash(rel)) {
			return nil
		}
		if _, ok := e.languageFor(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sifter: walk directory: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// excluded reports whether the slash separated path or its base name
// matches an exclude pattern.
func (e *Engine) excluded(path string) bool {
	base := filepath.Base(path)
	for _, g := range e.excludes {
		if g.Match(path) || g.Match(base) {
			return true
		}
	}
	return false
}

// languageFor returns the language that translates path, honouring the
// language filter.
func (e *Engine) languageFor(path string) (string, bool) {
	lang, ok := e.registry.LanguageForFile(path)
	if !ok || (e.languages != nil && !e.languages[lang]) {
		return "", false
	}
	return lang, true
}

// grammarKey is the catalog metadata key holding a language's grammar hash.
func grammarKey(lang string) string {
	return "grammar_hash:" + lang
}

// grammarChanged reports whether the language's grammar differs from the
// one recorded by the last successful run. A language never recorded has
// not changed.
func (e *Engine) grammarChanged(lang string) bool {
	if e.store == nil {
		return false
	}
	g, ok := e.registry.Get(lang)
	if !ok {
		return false
	}
	stored, err := e.store.GetMetadata(grammarKey(lang))
	if err != nil {
		e.logger.WithError(err).WithField("language", lang).Warn("reading grammar hash failed")
		return false
	}
	return stored != "" && stored != g.Hash()
}

func (e *Engine) recordGrammar(lang string) {
	if e.store == nil {
		return
	}
	g, ok := e.registry.Get(lang)
	if !ok {
		return
	}
	if err := e.store.SetMetadata(grammarKey(lang), g.Hash()); err != nil {
		e.logger.WithError(err).WithField("language", lang).Warn("recording grammar hash failed")
	}
}
