// Package classifier matches signal text to fault kinds using an ordered
// pattern table.
package classifier

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// ErrEmptyKind is returned when a pattern has no kind.
var ErrEmptyKind = errors.New("pattern kind is empty")

// Pattern pairs a fault kind with a regular expression.
type Pattern struct {
	Kind fault.Kind
	Expr string
}

type rule struct {
	kind fault.Kind
	re   *regexp.Regexp
}

// Classifier matches signals against an ordered table. The first matching
// pattern wins. A Classifier is immutable after construction and safe for
// concurrent use.
type Classifier struct {
	rules []rule
	now   func() time.Time
}

// New compiles patterns in the given order.
func New(patterns []Pattern) (*Classifier, error) {
	rules := make([]rule, 0, len(patterns))
	for i, p := range patterns {
		if p.Kind == "" {
			return nil, fmt.Errorf("pattern %d (%q): %w", i, p.Expr, ErrEmptyKind)
		}
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %d for %s: %w", i, p.Kind, err)
		}
		rules = append(rules, rule{kind: p.Kind, re: re})
	}
	return &Classifier{rules: rules, now: time.Now}, nil
}

// Default returns a classifier over the built-in pattern table.
func Default() *Classifier {
	c, err := New(defaultPatterns)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultPatterns returns a copy of the built-in table.
func DefaultPatterns() []Pattern {
	return append([]Pattern(nil), defaultPatterns...)
}

// WithPrepended returns a classifier whose table is extra followed by the
// built-in table, so operator patterns take precedence.
func WithPrepended(extra []Pattern) (*Classifier, error) {
	all := make([]Pattern, 0, len(extra)+len(defaultPatterns))
	all = append(all, extra...)
	all = append(all, defaultPatterns...)
	return New(all)
}

// Classify returns the classification of the first pattern matching text,
// or unknown if none matches.
func (c *Classifier) Classify(text string) fault.Classification {
	now := c.now()
	for _, r := range c.rules {
		if r.re.MatchString(text) {
			return fault.Classification{
				Kind:         r.kind,
				Confidence:   fault.MatchConfidence,
				ClassifiedAt: now,
			}
		}
	}
	return fault.Unknown(now)
}

// Patterns returns the compiled table in match order.
func (c *Classifier) Patterns() []Pattern {
	out := make([]Pattern, len(c.rules))
	for i, r := range c.rules {
		out[i] = Pattern{Kind: r.kind, Expr: r.re.String()}
	}
	return out
}
