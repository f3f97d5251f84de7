// Package runtime embeds a Risor VM that evaluates scripted preprocessing
// directives.
package runtime

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"
)

// Runtime evaluates Risor scripts with the sifter host globals.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     logrus.FieldLogger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts and imported modules from fsys instead of
// scriptsDir.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger routes the script log object to logger.
func WithLogger(logger logrus.FieldLogger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a Runtime resolving script paths and imports against
// scriptsDir, which may be empty.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir}
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

// Match is one regex match handed to a replacement script.
type Match struct {
	Language  string
	Directive string
	Text      string
	Groups    []string
}

// Replace evaluates source for one match and returns the replacement text.
// The script sees the globals match, groups, language and directive and
// must evaluate to a string.
func (r *Runtime) Replace(ctx context.Context, source string, m Match) (string, error) {
	groups := make([]object.Object, 0, len(m.Groups))
	for _, g := range m.Groups {
		groups = append(groups, object.NewString(g))
	}
	label := m.Directive
	if label == "" {
		label = "<inline>"
	}
	res, err := r.eval(ctx, source, label, map[string]any{
		"match":     object.NewString(m.Text),
		"groups":    object.NewList(groups),
		"language":  object.NewString(m.Language),
		"directive": object.NewString(m.Directive),
	})
	if err != nil {
		return "", err
	}
	s, ok := res.(*object.String)
	if !ok {
		return "", fmt.Errorf("runtime: script %s returned %s, want string", label, typeName(res))
	}
	return s.Value(), nil
}

func typeName(o object.Object) string {
	if o == nil {
		return "nothing"
	}
	return string(o.Type())
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	res, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return res, nil
}

// buildImporter returns an importer for the configured script source, or
// nil when neither an fs.FS nor a scripts directory is set.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a script from the configured fs.FS, or from disk
// relative to scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"dedent":     makeDedentFn(),
		"hash_text":  makeHashTextFn(),
		"split_args": makeSplitArgsFn(),
		"log":        mustProxy(&logObject{logger: r.logger}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
