package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"loginwatch/internal/diff"
	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/report"
)

const (
	maxMessageLen = 4096
	alertDiffLen  = 30
	timeLayout    = "2006-01-02 15:04:05"
)

// truncate cuts text to at most limit runes, marking the cut.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	const marker = "\n…"
	runes := []rune(text)
	return string(runes[:limit-utf8.RuneCountInString(marker)]) + marker
}

// FormatAlert formats a content change alert. Only the head of the diff is
// included; the full diff is one button away.
func FormatAlert(ev report.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] login page changed\n", ev.Target.Label())
	fmt.Fprintf(&b, "%s\n", ev.Target.URL)
	if ev.Capture != nil {
		fmt.Fprintf(&b, "Capture #%d at %s, %d bytes\n", ev.Capture.ID, ev.Capture.CapturedAt.Local().Format(timeLayout), ev.Capture.ByteSize)
	}
	if ev.Diff == nil {
		return b.String()
	}

	b.WriteString("\n")
	lines := ev.Diff.Lines
	if len(lines) > alertDiffLen {
		lines = lines[:alertDiffLen]
	}
	for _, l := range lines {
		b.WriteString(strings.TrimRight(l, "\n"))
		b.WriteString("\n")
	}
	if rest := len(ev.Diff.Lines) - len(lines) + ev.Diff.Omitted; rest > 0 {
		fmt.Fprintf(&b, "... %d more diff lines\n", rest)
	}
	return b.String()
}

// FormatFailure formats an operator alert about a failing target.
func FormatFailure(targetID string, err error) string {
	return fmt.Sprintf("[%s] monitoring failure\n\n%v", targetID, err)
}

// FormatTargetList formats the monitored targets with their latest capture.
func FormatTargetList(targets []model.Target, latest map[string]*model.Capture) string {
	if len(targets) == 0 {
		return "No targets are configured."
	}
	var b strings.Builder
	b.WriteString("Monitored targets:\n")
	for i, t := range targets {
		fmt.Fprintf(&b, "\n%d. %s  (every %s, %s)\n", i+1, t.Label(), t.Interval, fetchMode(t.Fetch))
		fmt.Fprintf(&b, "   %s\n", t.URL)
		c, ok := latest[t.ID]
		if !ok {
			b.WriteString("   no captures yet\n")
			continue
		}
		fmt.Fprintf(&b, "   last: #%d %s, %s\n", c.ID, c.CapturedAt.Local().Format(timeLayout), c.ChangeDetails.Describe())
	}
	return b.String()
}

func fetchMode(m model.FetchMode) string {
	if m == "" {
		return string(model.FetchHTTP)
	}
	return string(m)
}

// FormatHistory formats recent captures of a target, newest first.
func FormatHistory(t model.Target, captures []model.Capture) string {
	if len(captures) == 0 {
		return fmt.Sprintf("No captures for %s yet.", t.Label())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Captures of %s:\n\n", t.Label())
	for _, c := range captures {
		mark := " "
		if c.ChangeDetected {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s #%d  %s  %d bytes  %s\n", mark, c.ID, c.CapturedAt.Local().Format(timeLayout), c.ByteSize, c.ChangeDetails.Describe())
	}
	return b.String()
}

// FormatDiff formats a raw diff between two captures together with the masked
// verdict.
func FormatDiff(t model.Target, rep diff.Report, masked bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", t.Label())
	if masked {
		b.WriteString("Verdict: content changed\n\n")
	} else {
		b.WriteString("Verdict: unchanged after masking\n\n")
	}
	b.WriteString(rep.String())
	return b.String()
}

// FormatCheck formats the outcome of an on-demand check.
func FormatCheck(ev report.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ev.Target.Label(), ev.Classification.Describe())
	switch {
	case ev.Err != nil:
		fmt.Fprintf(&b, "Error: %v\n", ev.Err)
		if ev.Streak > 1 {
			fmt.Fprintf(&b, "%d consecutive failures\n", ev.Streak)
		}
	case ev.Capture != nil:
		fmt.Fprintf(&b, "Capture #%d, %d bytes, %s\n", ev.Capture.ID, ev.Capture.ByteSize, ev.Capture.CapturedAt.Local().Format(timeLayout))
	}
	if ev.Diff != nil {
		fmt.Fprintf(&b, "%d diff lines. Use /diff to see them.\n", len(ev.Diff.Lines)+ev.Diff.Omitted)
	}
	return b.String()
}

// FormatRules formats the compiled masking rules of a target.
func FormatRules(t model.Target, rs *normalize.Ruleset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Masking rules for %s:\n\n", t.Label())
	for i, name := range rs.Active() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
	}
	if skipped := rs.Skipped(); len(skipped) > 0 {
		b.WriteString("\nSkipped:\n")
		for _, s := range skipped {
			fmt.Fprintf(&b, "  %s: %v\n", s.Name, s.Err)
		}
	}
	fmt.Fprintf(&b, "\nDigest: %.12s", rs.Digest())
	return b.String()
}
