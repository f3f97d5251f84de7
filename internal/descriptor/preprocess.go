package descriptor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/sifter/internal/runtime"
)

// Preprocess applies the directives in declared order. Each variation
// rewrites every match of its pattern across the whole text, either by
// template expansion of its replacement or by evaluating its script once
// per match.
func (d *Descriptor) Preprocess(ctx context.Context, text string) (string, error) {
	for _, dir := range d.directives {
		for i, v := range dir.variations {
			if v.script == "" {
				text = v.re.ReplaceAllString(text, v.replacement)
				continue
			}
			out, err := d.replaceScripted(ctx, dir.name, v, text)
			if err != nil {
				return "", fmt.Errorf("directive %s variation %d: %w", dir.name, i, err)
			}
			text = out
		}
	}
	return text, nil
}

func (d *Descriptor) replaceScripted(ctx context.Context, name string, v directiveVariation, text string) (string, error) {
	var (
		b    strings.Builder
		last int
	)
	for _, loc := range v.re.FindAllStringSubmatchIndex(text, -1) {
		groups := make([]string, 0, len(loc)/2)
		for g := 0; g < len(loc); g += 2 {
			if loc[g] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, text[loc[g]:loc[g+1]])
		}
		repl, err := d.runtime.Replace(ctx, v.script, runtime.Match{
			Language:  d.language,
			Directive: name,
			Text:      groups[0],
			Groups:    groups,
		})
		if err != nil {
			return "", err
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String(), nil
}
