package descriptor

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/internal/model"
	"github.com/jward/sifter/internal/resolver"
)

// ParseRequest names one source file to translate.
type ParseRequest struct {
	Path        string
	OutputDir   string
	SourceRoots []string
	// Force re-extracts even when the stored model has the same hash.
	Force bool
}

// ParseResult describes a translated (or cached) file.
type ParseResult struct {
	Path       string
	OutputPath string
	ModelID    string
	Hash       string
	Cached     bool
	Unresolved []resolver.Unresolved
	// Model is nil when Cached is set.
	Model *model.Model
}

// Location is where a source file's model lives.
type Location struct {
	// RelPath is the slash separated path relative to the chosen source root.
	RelPath    string
	ModelID    string
	OutputPath string
}

// Locate computes the model identifier and output path of the source file at
// path. Of the roots containing the file, the one giving the shortest
// relative path wins; a file outside every root is named by its base name.
func (d *Descriptor) Locate(path, outputDir string, roots []string) (Location, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Location{}, fmt.Errorf("descriptor: locate %s: %w", path, err)
	}
	rel := filepath.Base(abs)
	found := false
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		r, err := filepath.Rel(rootAbs, abs)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			continue
		}
		if !found || len(r) < len(rel) {
			rel, found = r, true
		}
	}
	rel = filepath.ToSlash(rel)
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return Location{
		RelPath:    rel,
		ModelID:    model.JoinID(d.language, strings.ReplaceAll(stem, "/", ".")),
		OutputPath: filepath.Join(outputDir, d.language, filepath.FromSlash(stem)+".json"),
	}, nil
}

// Extract preprocesses text and runs the top-level selectors with the given
// identifier prefix. The result is grouped by document group and cleared of
// top-level functions duplicating a class method, but not resolved.
func (d *Descriptor) Extract(ctx context.Context, text, prefix string) (*model.Extraction, error) {
	text, err := d.Preprocess(ctx, text)
	if err != nil {
		return nil, err
	}
	x := &model.Extraction{}
	var all []model.Entity
	for _, name := range d.topLevel {
		all = append(all, d.selectors[name].Select(text, prefix)...)
	}
	sortByStart(all)
	for _, e := range all {
		switch v := e.(type) {
		case *model.ClassEntity:
			x.Classes = append(x.Classes, v)
		case *model.FunctionEntity:
			x.Functions = append(x.Functions, v)
		case *model.DependencyEntity:
			x.Dependencies = append(x.Dependencies, v)
		}
	}
	x.Functions = removeMethodDuplicates(x.Functions, x.Classes)
	return x, nil
}

// removeMethodDuplicates drops top-level functions whose content hash equals
// that of a method of any class, nested classes included.
func removeMethodDuplicates(fns []*model.FunctionEntity, classes []*model.ClassEntity) []*model.FunctionEntity {
	methods := make(map[string]bool)
	var visit func(cs []*model.ClassEntity)
	visit = func(cs []*model.ClassEntity) {
		for _, c := range cs {
			for _, m := range c.Methods {
				methods[m.ContentHash] = true
			}
			visit(c.Classes)
		}
	}
	visit(classes)

	out := fns[:0:0]
	for _, f := range fns {
		if !methods[f.ContentHash] {
			out = append(out, f)
		}
	}
	return out
}

// Parse translates one source file into its model document. An unchanged
// file whose model already exists is left alone unless Force is set.
func (d *Descriptor) Parse(ctx context.Context, req ParseRequest) (*ParseResult, error) {
	log := d.logger.WithField("file", req.Path)
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: read: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("descriptor: %s: %w", req.Path, ErrDecode)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(data))

	loc, err := d.Locate(req.Path, req.OutputDir, req.SourceRoots)
	if err != nil {
		return nil, err
	}
	res := &ParseResult{Path: req.Path, OutputPath: loc.OutputPath, ModelID: loc.ModelID, Hash: hash}

	if !req.Force {
		stored, err := model.ReadHash(loc.OutputPath)
		switch {
		case err == nil && stored == hash:
			log.WithField("model_id", loc.ModelID).Debug("model up to date")
			res.Cached = true
			return res, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			log.WithError(err).Debug("stored model unreadable, re-extracting")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x, err := d.Extract(ctx, string(data), loc.ModelID)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %s: %w", req.Path, err)
	}
	resolved, misses, err := d.resolver.Resolve(x)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %s: resolve: %w", req.Path, err)
	}

	m := &model.Model{
		ModelID:        loc.ModelID,
		Hash:           hash,
		FileName:       loc.RelPath,
		DateGenerated:  time.Now().UTC().Format(time.RFC3339),
		SourceLanguage: d.language,
		Extraction:     *resolved,
	}
	if err := writeModel(m, loc.OutputPath); err != nil {
		return nil, fmt.Errorf("descriptor: %s: %w", req.Path, err)
	}
	log.WithFields(logrus.Fields{
		"model_id":   loc.ModelID,
		"unresolved": len(misses),
	}).Debug("model written")

	res.Unresolved = misses
	res.Model = m
	return res, nil
}

// writeModel validates m and writes it through a temporary file in the
// destination directory.
func writeModel(m *model.Model, path string) error {
	doc := m.Flatten()
	if err := model.Validate(doc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func sortByStart(es []model.Entity) {
	sort.SliceStable(es, func(i, j int) bool {
		return es[i].Span().Start < es[j].Span().Start
	})
}
