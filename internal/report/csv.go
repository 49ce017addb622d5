package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"unicode/utf8"
)

// digestPrefixLen is how much of the raw digest goes into a CSV row.
const digestPrefixLen = 10

var csvColumns = []string{"date", "time", "target", "changed", "details", "size_chars", "digest"}

// CSV appends one summary row per cycle to a CSV file.
type CSV struct {
	mu   sync.Mutex
	path string
}

// NewCSV creates a CSV reporter writing to path. The file and its header row
// are created on first use.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Report implements Reporter.
func (c *CSV) Report(_ context.Context, ev Event) error {
	return c.append(row(ev))
}

// ReportFailure implements Reporter. Failures are not summary rows.
func (c *CSV) ReportFailure(context.Context, string, error) error {
	return nil
}

func (c *CSV) append(record []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv report: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv report: %w", err)
	}
	return writeRows(f, info.Size() == 0, record)
}

func writeRows(w io.Writer, header bool, records ...[]string) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvColumns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, r := range records {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(ev Event) []string {
	at := ev.At
	if ev.Capture != nil {
		at = ev.Capture.CapturedAt
	}
	at = at.Local()

	changed := "no"
	if ev.Changed() {
		changed = "yes"
	}
	size, digest := "", ""
	if c := ev.Capture; c != nil {
		size = strconv.Itoa(utf8.RuneCountInString(c.RawHTML))
		digest = c.RawDigest
		if len(digest) > digestPrefixLen {
			digest = digest[:digestPrefixLen]
		}
	}

	return []string{
		at.Format("2006-01-02"),
		at.Format("15:04:05"),
		sanitize(ev.Target.ID),
		changed,
		ev.Classification.Describe(),
		size,
		digest,
	}
}

// sanitize keeps spreadsheet applications from evaluating a cell as a formula.
func sanitize(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
