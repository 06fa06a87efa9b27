// Package judge decides whether a service's ranked recommendations hit the
// gold-standard answer, either by normalized exact matching or with a
// model-assisted judge that falls back to exact matching on failure.
package judge

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// Judge scores one sample's recommendations against the standard answer.
// recommendations is grouped per scenario and already truncated to the
// combination's limits.
type Judge interface {
	Judge(ctx context.Context, recommendations [][]string, standardAnswer string) (models.Verdict, error)
}

// New builds the judge selected by the run spec.
func New(cfg config.Judge) (Judge, error) {
	switch cfg.Mode {
	case "", "exact":
		return NewExact(), nil
	case "model":
		return NewModel(cfg)
	default:
		return nil, fmt.Errorf("unknown judge mode %q", cfg.Mode)
	}
}

// Normalize canonicalizes clinical item text for comparison: full-width runes
// are folded to half-width, all whitespace is removed, and the result is
// lower-cased. "心电图" and "心 电 图" compare equal; "ECG" and "ecg" too.
func Normalize(s string) string {
	folded := width.Narrow.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// flatten returns the first scenario group's items in rank order. Top-1 and
// Top-3 verdicts are always taken over this list.
func flatten(recommendations [][]string) []string {
	if len(recommendations) == 0 {
		return nil
	}
	return recommendations[0]
}
