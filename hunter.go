package sifter

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// HuntRequest describes a taint search.
type HuntRequest struct {
	RecursionDepth int
	// Sinks are the identifiers a tainted value must not reach.
	Sinks []string
	// Dangers are the taint sources.
	Dangers []string
	// Cleaners sanitise a value; chains through them are not reported.
	Cleaners []string
	Files    []string
	// Language, when set, adds that language's configured sinks, sources
	// and cleaners.
	Language string
}

// Prune returns tree without every branch whose node is cleaner, at any
// depth. The input is not modified.
func Prune(cleaner string, tree []*Node) []*Node {
	var out []*Node
	for _, b := range tree {
		if b.ID == cleaner {
			continue
		}
		out = append(out, &Node{ID: b.ID, Children: Prune(cleaner, b.Children)})
	}
	return out
}

// StripSafe returns tree without the branches in which no sink appears,
// narrowing the children of every kept branch the same way. The input is
// not modified.
func StripSafe(sinks []string, tree []*Node) []*Node {
	var out []*Node
	for _, b := range tree {
		if !slices.Contains(sinks, b.ID) && !anyAppears(sinks, b.Children) {
			continue
		}
		out = append(out, &Node{ID: b.ID, Children: StripSafe(sinks, b.Children)})
	}
	return out
}

func anyAppears(ids []string, tree []*Node) bool {
	for _, b := range tree {
		if slices.Contains(ids, b.ID) || anyAppears(ids, b.Children) {
			return true
		}
	}
	return false
}

// Hunt navigates from every danger and keeps the chains that reach a sink
// without passing a cleaner.
func Hunt(ctx context.Context, nav *Navigator, req HuntRequest, logger logrus.FieldLogger) (map[string][]*Node, error) {
	findings := make(map[string][]*Node, len(req.Dangers))
	for _, danger := range req.Dangers {
		tree, err := nav.Navigate(ctx, danger, req.RecursionDepth, req.Files)
		if err != nil {
			return nil, fmt.Errorf("hunt %s: %w", danger, err)
		}
		for _, c := range req.Cleaners {
			tree = Prune(c, tree)
		}
		tree = StripSafe(req.Sinks, tree)
		if logger != nil {
			logger.WithFields(logrus.Fields{"danger": danger, "chains": len(tree)}).Debug("hunt finished")
		}
		findings[danger] = tree
	}
	return findings, nil
}

// mergeIDs appends the ids of extra missing from base, keeping order.
func mergeIDs(base, extra []string) []string {
	out := slices.Clone(base)
	for _, id := range extra {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
