// Package normalize masks known-volatile fragments of captured HTML so that
// two captures can be compared without tripping over session tokens,
// cache-busting parameters and widget churn.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"loginwatch/internal/model"
)

type compiledRule struct {
	rule   model.MaskingRule
	re     *regexp.Regexp
	within *regexp.Regexp
}

func (c compiledRule) apply(s string) string {
	if c.within == nil {
		return c.re.ReplaceAllString(s, c.rule.Replacement)
	}
	return c.within.ReplaceAllStringFunc(s, func(span string) string {
		return c.re.ReplaceAllString(span, c.rule.Replacement)
	})
}

// SkippedRule records a rule left out of a Ruleset because it did not compile.
type SkippedRule struct {
	Name string
	Err  error
}

// Ruleset is an ordered, compiled masking table. It is safe for concurrent use.
type Ruleset struct {
	rules   []compiledRule
	skipped []SkippedRule
	digest  string
}

// Compile builds a Ruleset from the enabled rules, in order. A rule whose
// patterns fail to compile is logged and skipped; the remaining rules still
// apply.
func Compile(rules []model.MaskingRule, log *slog.Logger) *Ruleset {
	if log == nil {
		log = slog.Default()
	}

	rs := &Ruleset{}
	h := sha256.New()
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := compileRule(r)
		if err != nil {
			log.Warn("skip masking rule", "rule", r.Name, "error", err)
			rs.skipped = append(rs.skipped, SkippedRule{Name: r.Name, Err: err})
			continue
		}
		rs.rules = append(rs.rules, c)
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\n", r.Name, r.Within, r.Pattern, r.Replacement)
	}
	rs.digest = hex.EncodeToString(h.Sum(nil))
	return rs
}

var errCompile = errors.New("does not compile")

// ErrNotIdempotent is returned for rules whose output they would rewrite again.
var ErrNotIdempotent = errors.New("masking its own output changes it again")

func compileRule(r model.MaskingRule) (compiledRule, error) {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("pattern %w: %w", errCompile, err)
	}
	c := compiledRule{rule: r, re: re}
	if r.Within != "" {
		c.within, err = regexp.Compile(r.Within)
		if err != nil {
			return compiledRule{}, fmt.Errorf("within %w: %w", errCompile, err)
		}
	}
	return c, nil
}

// idempotent masks the rule's own replacement twice and expects the second
// pass to change nothing.
func (c compiledRule) idempotent() error {
	once := c.apply(c.rule.Replacement)
	if twice := c.apply(once); twice != once {
		return fmt.Errorf("%w: %q becomes %q", ErrNotIdempotent, once, twice)
	}
	return nil
}

// Normalize applies every rule of the set to html in order.
func (r *Ruleset) Normalize(html string) string {
	out := html
	for _, c := range r.rules {
		out = c.apply(out)
	}
	return out
}

// Digest fingerprints the active rules. Two rulesets with the same digest
// normalize every input identically.
func (r *Ruleset) Digest() string {
	return r.digest
}

// Active returns the names of the rules in application order.
func (r *Ruleset) Active() []string {
	names := make([]string, 0, len(r.rules))
	for _, c := range r.rules {
		names = append(names, c.rule.Name)
	}
	return names
}

// Skipped returns the rules that failed to compile.
func (r *Ruleset) Skipped() []SkippedRule {
	return r.skipped
}

// Validate checks that a rule is well formed, compiles, and leaves its own
// output alone.
func Validate(r model.MaskingRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %q: pattern is required", r.Name)
	}
	c, err := compileRule(r)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if err := c.idempotent(); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return nil
}

// Resolve applies per-target overrides to a base table: named rules are
// switched on or off, and extra rules are appended enabled. Extra rules must
// pass Validate, except that a pattern which does not compile is left for
// Compile to skip.
func Resolve(base []model.MaskingRule, o model.RuleOverrides) ([]model.MaskingRule, error) {
	out := make([]model.MaskingRule, len(base))
	copy(out, base)

	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.Name] = i
	}

	var unknown []string
	set := func(names []string, enabled bool) {
		for _, n := range names {
			i, ok := index[n]
			if !ok {
				unknown = append(unknown, n)
				continue
			}
			out[i].Enabled = enabled
		}
	}
	set(o.Enable, true)
	set(o.Disable, false)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown masking rules: %s", strings.Join(unknown, ", "))
	}

	for _, r := range o.Extra {
		if _, dup := index[r.Name]; dup {
			return nil, fmt.Errorf("extra rule %q shadows a built-in rule", r.Name)
		}
		if err := Validate(r); err != nil && !errors.Is(err, errCompile) {
			return nil, fmt.Errorf("extra %w", err)
		}
		r.Enabled = true
		index[r.Name] = len(out)
		out = append(out, r)
	}
	return out, nil
}
