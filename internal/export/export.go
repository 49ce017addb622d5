// Package export writes stored captures to HTML files for offline review.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loginwatch/internal/model"
)

// ErrNoCaptures is returned when a target has nothing to export.
var ErrNoCaptures = errors.New("no captures to export")

// HistoryReader is the part of the repository export needs.
type HistoryReader interface {
	History(ctx context.Context, targetID string) ([]model.Capture, error)
}

// ByDate writes every capture of a target into one folder per UTC day:
// <dir>/<YYYY-MM-DD>/<target>_<HHMMSS>_<id>.html. It returns the written
// paths, oldest first.
func ByDate(ctx context.Context, src HistoryReader, targetID, dir string) ([]string, error) {
	history, err := src.History(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return nil, ErrNoCaptures
	}

	prefix := SafeFilename(targetID)
	paths := make([]string, 0, len(history))
	for _, c := range history {
		at := c.CapturedAt.UTC()
		day := filepath.Join(dir, at.Format("2006-01-02"))
		if err := os.MkdirAll(day, 0o755); err != nil {
			return paths, fmt.Errorf("create %s: %w", day, err)
		}
		path := filepath.Join(day, fmt.Sprintf("%s_%s_%d.html", prefix, at.Format("150405"), c.ID))
		if err := write(path, c.RawHTML); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Milestones writes the first, second-latest and latest capture of a target
// as <target>_first.html, <target>_previous.html and <target>_latest.html.
// Files for captures that do not exist yet are skipped.
func Milestones(ctx context.Context, src HistoryReader, targetID, dir string) ([]string, error) {
	history, err := src.History(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	n := len(history)
	if n == 0 {
		return nil, ErrNoCaptures
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	picks := []struct {
		name  string
		index int
	}{
		{"first", 0},
		{"previous", n - 2},
		{"latest", n - 1},
	}

	prefix := SafeFilename(targetID)
	var paths []string
	seen := make(map[int]bool)
	for _, p := range picks {
		if p.index < 0 || seen[p.index] {
			continue
		}
		seen[p.index] = true
		path := filepath.Join(dir, prefix+"_"+p.name+".html")
		if err := write(path, history[p.index].RawHTML); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func write(path, html string) error {
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SafeFilename maps a target id to a name usable on any filesystem. Ids that
// do not survive the mapping unchanged get a short digest suffix, so distinct
// ids never share a name.
func SafeFilename(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == id {
		return name
	}
	if name == "" {
		name = "target"
	}
	sum := sha256.Sum256([]byte(id))
	return name + "~" + hex.EncodeToString(sum[:4])
}
