package extract

import (
	"regexp"
	"sort"
)

// Churn summarizes how a security object moved between two captures.
type Churn struct {
	Added   []string
	Removed []string
	// Changed lists keys present in both whose preview differs.
	Changed []string
	Stable  []string
}

// SameKeys reports whether both objects had the same key set.
func (c Churn) SameKeys() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Compare diffs the keys and value previews of two objects. A nil object is
// treated as empty.
func Compare(a, b *Object) Churn {
	var before, after map[string]string
	if a != nil {
		before = a.Preview
	}
	if b != nil {
		after = b.Preview
	}

	var c Churn
	for k, v := range before {
		nv, ok := after[k]
		switch {
		case !ok:
			c.Removed = append(c.Removed, k)
		case nv != v:
			c.Changed = append(c.Changed, k)
		default:
			c.Stable = append(c.Stable, k)
		}
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			c.Added = append(c.Added, k)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	sort.Strings(c.Changed)
	sort.Strings(c.Stable)
	return c
}

var (
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}:\d{2}`)
	sessionRe   = regexp.MustCompile(`(?i)session[_-]?id["\s]*[:=]["\s]*([a-zA-Z0-9]+)`)
	tokenRe     = regexp.MustCompile(`(?i)token["\s]*[:=]["\s]*([a-zA-Z0-9]+)`)
	csrfRe      = regexp.MustCompile(`(?i)csrf[_-]?token["\s]*[:=]["\s]*([a-zA-Z0-9]+)`)
)

// Hints are fragments of a page that look dynamic.
type Hints struct {
	Timestamps []string
	Sessions   []string
	Tokens     []string
	CSRF       []string
}

// Empty reports whether no hint was found.
func (h Hints) Empty() bool {
	return len(h.Timestamps)+len(h.Sessions)+len(h.Tokens)+len(h.CSRF) == 0
}

// DynamicHints spots timestamps, session ids and tokens in html.
func DynamicHints(html string) Hints {
	return Hints{
		Timestamps: timestampRe.FindAllString(html, -1),
		Sessions:   submatches(sessionRe, html),
		Tokens:     submatches(tokenRe, html),
		CSRF:       submatches(csrfRe, html),
	}
}

func submatches(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}
