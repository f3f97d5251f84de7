package sifter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jward/sifter/internal/descriptor"
	"github.com/jward/sifter/internal/metrics"
	"github.com/jward/sifter/internal/store"
)

// workItem holds everything a translation worker needs.
type workItem struct {
	path  string
	lang  string
	d     *descriptor.Descriptor
	roots []string
	force bool
}

// result is a worker's FileResult plus what the writer needs for the
// catalog.
type result struct {
	FileResult
	hash string
}

// TranslateFiles translates files in three phases:
//
//	Phase A (serial):   language lookup, descriptor construction, grammar
//	                    change detection.
//	Phase B (parallel): Descriptor.Parse through a worker pool bounded by jobs.
//	Phase C (serial):   a single writer collects results, updates metrics
//	                    and commits the catalog batch.
//
// A file that fails does not stop the others; the returned error
// summarises the failures and the report is returned either way. Only a
// grammar that cannot be built or a cancelled context aborts the run.
func (e *Engine) TranslateFiles(ctx context.Context, paths []string) (*TranslateReport, error) {
	runID, err := e.beginRun()
	if err != nil {
		return nil, err
	}
	report := &TranslateReport{RunID: runID}
	log := e.logger.WithField("run_id", runID)

	// ---- Phase A: Serial preparation ----
	items, skipped, err := e.prepare(paths)
	if err != nil {
		return nil, err
	}
	for _, fr := range skipped {
		report.add(fr)
		e.metrics.File(fr.Language, metrics.OutcomeSkipped)
	}

	// ---- Phase B: Parallel translation ----
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.jobs)
	results := make(chan result)
	var waitErr error
	go func() {
		defer close(results)
		for _, item := range items {
			g.Go(func() error {
				res := e.translateOne(gctx, item)
				select {
				case results <- res:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		waitErr = g.Wait()
	}()

	// ---- Phase C: Serial writer ----
	var batch *store.Batch
	if e.store != nil {
		batch = store.NewBatch()
	}
	var errs []error
	failedLangs := make(map[string]bool)
	for res := range results {
		fr := res.FileResult
		report.add(fr)
		e.record(log, fr)
		switch fr.Status {
		case StatusFailed:
			errs = append(errs, fmt.Errorf("translate %s: %s", fr.Path, fr.Error))
			failedLangs[fr.Language] = true
		case StatusParsed, StatusCached:
			if batch != nil {
				e.bufferModel(batch, runID, res)
			}
		}
	}
	if waitErr != nil {
		return report, fmt.Errorf("sifter: translate: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if batch != nil {
		if err := e.store.CommitBatch(batch); err != nil {
			return report, fmt.Errorf("sifter: %w", err)
		}
	}
	recorded := make(map[string]bool)
	for _, item := range items {
		if !failedLangs[item.lang] && !recorded[item.lang] {
			recorded[item.lang] = true
			e.recordGrammar(item.lang)
		}
	}
	if err := e.finishRun(report); err != nil {
		return report, err
	}

	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Path < report.Files[j].Path })
	log.WithFields(logrus.Fields{
		"parsed":     report.Parsed,
		"cached":     report.Cached,
		"failed":     report.Failed,
		"skipped":    report.Skipped,
		"unresolved": report.Unresolved,
	}).Info("translation finished")

	if len(errs) > 0 {
		return report, fmt.Errorf("translation had %d error(s): %w", len(errs), errs[0])
	}
	return report, nil
}

// prepare does Phase A: it resolves every path to a language and its
// Descriptor, and reports the paths that will not be translated.
func (e *Engine) prepare(paths []string) ([]workItem, []FileResult, error) {
	var (
		items   []workItem
		skipped []FileResult
	)
	forced := make(map[string]bool)
	for _, path := range paths {
		if e.excluded(filepath.ToSlash(path)) {
			skipped = append(skipped, FileResult{Path: path, Status: StatusSkipped, Error: "excluded"})
			continue
		}
		lang, ok := e.languageFor(path)
		if !ok {
			skipped = append(skipped, FileResult{Path: path, Status: StatusSkipped, Error: "no grammar for file"})
			continue
		}
		d, err := e.Descriptor(lang)
		if err != nil {
			return nil, nil, err
		}
		force, seen := forced[lang]
		if !seen {
			force = e.grammarChanged(lang)
			if force {
				e.logger.WithField("language", lang).Info("grammar changed, re-extracting")
			}
			forced[lang] = force
		}
		roots := append(append([]string(nil), e.sourceRoots...), e.registry.SourceDirs(lang)...)
		items = append(items, workItem{path: path, lang: lang, d: d, roots: roots, force: e.force || force})
	}
	return items, skipped, nil
}

// translateOne does Phase B work for a single file.
func (e *Engine) translateOne(ctx context.Context, item workItem) result {
	fr := FileResult{Path: item.path, Language: item.lang}
	start := time.Now()
	res, err := item.d.Parse(ctx, descriptor.ParseRequest{
		Path:        item.path,
		OutputDir:   e.outputDir,
		SourceRoots: item.roots,
		Force:       item.force,
	})
	e.metrics.ObserveParse(item.lang, time.Since(start))
	switch {
	case errors.Is(err, descriptor.ErrDecode):
		fr.Status = StatusSkipped
		fr.Error = err.Error()
		return result{FileResult: fr}
	case err != nil:
		fr.Status = StatusFailed
		fr.Error = err.Error()
		return result{FileResult: fr}
	}
	fr.ModelID = res.ModelID
	fr.OutputPath = res.OutputPath
	fr.Unresolved = res.Unresolved
	fr.Status = StatusParsed
	if res.Cached {
		fr.Status = StatusCached
	}
	return result{FileResult: fr, hash: res.Hash}
}

func (e *Engine) record(log logrus.FieldLogger, fr FileResult) {
	entry := log.WithFields(logrus.Fields{"file": fr.Path, "language": fr.Language})
	switch fr.Status {
	case StatusParsed:
		entry.WithFields(logrus.Fields{"model_id": fr.ModelID, "unresolved": len(fr.Unresolved)}).Debug("file translated")
		e.metrics.File(fr.Language, metrics.OutcomeParsed)
	case StatusCached:
		entry.WithField("model_id", fr.ModelID).Debug("model up to date")
		e.metrics.File(fr.Language, metrics.OutcomeCached)
	case StatusSkipped:
		entry.WithField("reason", fr.Error).Warn("file skipped")
		e.metrics.File(fr.Language, metrics.OutcomeSkipped)
	case StatusFailed:
		entry.WithField("error", fr.Error).Error("file failed")
		e.metrics.File(fr.Language, metrics.OutcomeFailed)
	}
	e.metrics.Unresolved(fr.Language, len(fr.Unresolved))
}

// bufferModel queues the catalog entry of a translated file. Cached files
// are only catalogued when the catalog does not know them yet.
func (e *Engine) bufferModel(batch *store.Batch, runID string, res result) {
	if res.Status == StatusCached {
		if rec, err := e.store.ModelByID(res.ModelID); err != nil || rec != nil {
			return
		}
	}
	src, err := filepath.Abs(res.Path)
	if err != nil {
		src = res.Path
	}
	batch.AddModel(store.ModelRecord{
		ModelID:    res.ModelID,
		Language:   res.Language,
		SourcePath: src,
		ModelPath:  res.OutputPath,
		Hash:       res.hash,
		Unresolved: len(res.Unresolved),
		RunID:      &runID,
	})
}

func (e *Engine) beginRun() (string, error) {
	if e.store == nil {
		return uuid.NewString(), nil
	}
	id, err := e.store.BeginRun()
	if err != nil {
		return "", fmt.Errorf("sifter: %w", err)
	}
	return id, nil
}

func (e *Engine) finishRun(r *TranslateReport) error {
	e.metrics.Run()
	if e.store == nil {
		return nil
	}
	err := e.store.FinishRun(r.RunID, store.RunCounts{
		Parsed:     r.Parsed,
		Cached:     r.Cached,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Unresolved: r.Unresolved,
	})
	if err != nil {
		return fmt.Errorf("sifter: %w", err)
	}
	return nil
}
