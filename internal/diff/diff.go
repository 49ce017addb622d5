// Package diff renders bounded line-level differences between two captures
// for operator review.
package diff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// ContextLines is the number of unchanged lines shown around each hunk.
	ContextLines = 3
	// MaxLines caps the number of diff lines in a report.
	MaxLines = 50
)

// Report is the result of comparing two documents.
type Report struct {
	LabelOld  string
	LabelNew  string
	Identical bool
	// Lines holds at most MaxLines unified diff lines, headers included.
	Lines []string
	// Omitted counts the diff lines cut from Lines.
	Omitted  int
	OldBytes int
	NewBytes int
	OldChars int
	NewChars int
}

// Render compares oldHTML and newHTML as raw text. It has no side effects.
func Render(oldHTML, newHTML, labelOld, labelNew string) Report {
	r := Report{
		LabelOld: labelOld,
		LabelNew: labelNew,
		OldBytes: len(oldHTML),
		NewBytes: len(newHTML),
		OldChars: utf8.RuneCountInString(oldHTML),
		NewChars: utf8.RuneCountInString(newHTML),
	}
	if oldHTML == newHTML {
		r.Identical = true
		return r
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(oldHTML),
		B:        splitLines(newHTML),
		FromFile: labelOld,
		ToFile:   labelNew,
		Context:  ContextLines,
	})
	if err != nil {
		r.Lines = []string{fmt.Sprintf("diff unavailable: %v", err)}
		return r
	}
	if text == "" {
		return r
	}

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) > MaxLines {
		r.Omitted = len(lines) - MaxLines
		lines = lines[:MaxLines]
	}
	r.Lines = lines
	return r
}

// splitLines breaks s on any line terminator and drops the terminators, so
// documents that differ only in line endings produce no line-level diff.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}

// HasLineDiff reports whether the documents differ line by line.
func (r Report) HasLineDiff() bool {
	return len(r.Lines) > 0
}

// String formats the report as plain text.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s vs %s ===\n", r.LabelOld, r.LabelNew)
	if r.Identical {
		b.WriteString("identical\n")
		return b.String()
	}

	if r.HasLineDiff() {
		b.WriteString("differences:\n")
		for _, l := range r.Lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		if r.Omitted > 0 {
			fmt.Fprintf(&b, "... %d more diff lines omitted (%d total)\n", r.Omitted, r.Omitted+len(r.Lines))
		}
	} else {
		b.WriteString("no line-level differences, but the content differs\n")
	}

	if r.OldBytes != r.NewBytes || r.OldChars != r.NewChars {
		fmt.Fprintf(&b, "length differs: %s=%d bytes (%d chars), %s=%d bytes (%d chars)\n",
			r.LabelOld, r.OldBytes, r.OldChars, r.LabelNew, r.NewBytes, r.NewChars)
	}
	return b.String()
}
