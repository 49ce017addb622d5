// Package extract locates the largest inline script object literal in a page
// and summarizes its keys. It is a diagnostic aid for deciding which masking
// rules to add; nothing here feeds back into normalization.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// PreviewLen is the longest value preview kept per key.
	PreviewLen = 50
	// maxDepth bounds brace nesting inside a literal.
	maxDepth = 64
	// maxLiteral bounds how far a single literal is scanned.
	maxLiteral = 512 << 10
)

var assignStart = regexp.MustCompile(`\b(?:var|let|const)\s+([A-Za-z_$][\w$]*)\s*=\s*\{`)

// Object is an inline object literal assigned to a script variable.
type Object struct {
	Name string
	// Body is the literal text including the outer braces.
	Body string
	// Keys are the top-level keys, sorted.
	Keys    []string
	Preview map[string]string
}

// Extract returns the longest object literal assigned to a variable in html.
// It reports false when the page has none.
func Extract(html string) (*Object, bool) {
	var best *Object
	scannedTo := 0
	for _, m := range assignStart.FindAllStringSubmatchIndex(html, -1) {
		open := m[1] - 1
		// A literal nested in an earlier match is always shorter than it.
		if open < scannedTo {
			continue
		}
		end, ok := matchBrace(html, open)
		// Starts before end were either inside this literal or inside the
		// construct that broke it, so no byte is scanned twice.
		scannedTo = end
		if !ok {
			continue
		}
		if best == nil || end-open > len(best.Body) {
			best = &Object{Name: html[m[2]:m[3]], Body: html[open:end]}
		}
	}
	if best == nil {
		return nil, false
	}
	best.Keys, best.Preview = topLevel(best.Body)
	return best, true
}

// matchBrace returns the index just past the brace closing the one at open.
// When the literal is broken it returns the index where scanning gave up.
func matchBrace(s string, open int) (int, bool) {
	limit := min(len(s), open+maxLiteral)
	depth := 0
	for i := open; i < limit; i++ {
		switch s[i] {
		case '"', '\'', '`':
			j, ok := skipString(s, i, limit)
			if !ok {
				return j, false
			}
			i = j
		case '/':
			j, ok := skipComment(s, i, limit)
			if !ok {
				return j, false
			}
			i = j - 1
		case '<':
			if strings.HasPrefix(s[i:limit], "</script") {
				return i, false
			}
		case '{':
			depth++
			if depth > maxDepth {
				return i, false
			}
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return limit, false
}

// skipString returns the index of the quote closing the string opened at i.
// An unclosed string reports false with the index where it ended.
func skipString(s string, i, limit int) (int, bool) {
	quote := s[i]
	for j := i + 1; j < limit; j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j, true
		case '\n':
			if quote != '`' {
				return j, false
			}
		}
	}
	return limit, false
}

// skipComment returns the index just past a comment starting at i. Input at i
// that does not start a comment is consumed as a single byte.
func skipComment(s string, i, limit int) (int, bool) {
	if i+1 >= limit {
		return i + 1, true
	}
	switch s[i+1] {
	case '/':
		nl := strings.IndexByte(s[i:limit], '\n')
		if nl < 0 {
			return limit, false
		}
		return i + nl + 1, true
	case '*':
		end := strings.Index(s[i+2:limit], "*/")
		if end < 0 {
			return limit, false
		}
		return i + 2 + end + 2, true
	}
	return i + 1, true
}

func skipSpace(s string, i, end int) int {
	for i < end {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		case '/':
			j, ok := skipComment(s, i, end)
			if !ok || j == i+1 {
				return i
			}
			i = j
		default:
			return i
		}
	}
	return i
}

// skipValue returns the index of the comma or closing brace ending the value
// that starts at i.
func skipValue(s string, i, end int) int {
	depth := 0
	for ; i < end; i++ {
		switch s[i] {
		case '"', '\'', '`':
			j, ok := skipString(s, i, end)
			if !ok {
				return end
			}
			i = j
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
			if depth < 0 {
				return i
			}
		case ',':
			if depth == 0 {
				return i
			}
		}
	}
	return end
}

func readKey(s string, i, end int) (string, int, bool) {
	if c := s[i]; c == '"' || c == '\'' {
		j, ok := skipString(s, i, end)
		if !ok {
			return "", 0, false
		}
		return s[i+1 : j], j + 1, true
	}
	j := i
	for j < end && isIdent(s[j]) {
		j++
	}
	if j == i {
		return "", 0, false
	}
	return s[i:j], j, true
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

// topLevel lists the keys directly inside body and previews their values.
func topLevel(body string) ([]string, map[string]string) {
	preview := make(map[string]string)
	end := len(body) - 1
	for i := 1; i < end; {
		i = skipSpace(body, i, end)
		if i >= end {
			break
		}
		key, next, ok := readKey(body, i, end)
		if !ok {
			i = skipValue(body, i, end) + 1
			continue
		}
		j := skipSpace(body, next, end)
		if j >= end || body[j] != ':' {
			i = skipValue(body, j, end) + 1
			continue
		}
		vstart := skipSpace(body, j+1, end)
		vend := skipValue(body, vstart, end)
		preview[key] = Shorten(strings.TrimSpace(body[vstart:vend]))
		i = vend + 1
	}

	keys := make([]string, 0, len(preview))
	for k := range preview {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, preview
}

// Shorten strips surrounding quotes from v and elides it past PreviewLen.
func Shorten(v string) string {
	v = strings.Trim(v, `"'`)
	if utf8.RuneCountInString(v) <= PreviewLen {
		return v
	}
	r := []rune(v)
	return string(r[:PreviewLen-3]) + "..."
}
