package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loginwatch/internal/config"
	"loginwatch/internal/detector"
	"loginwatch/internal/model"
	"loginwatch/internal/storage"
)

const targetsYAML = `targets:
  - id: bank-a
    url: https://a.example/login
    rules:
      disable: [asset-version]
`

func newTestEnv(t *testing.T) (*env, *bytes.Buffer) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(targetsYAML), 0o644); err != nil {
		t.Fatalf("write targets: %v", err)
	}

	var out bytes.Buffer
	return &env{
		cfg:   &config.Config{TargetsFile: path, CheckInterval: 10 * time.Minute},
		store: store,
		out:   &out,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &out
}

func seed(t *testing.T, e *env, targetID, html string) *model.Capture {
	t.Helper()
	c := &model.Capture{
		TargetID:         targetID,
		RawHTML:          html,
		RawDigest:        detector.Digest(html),
		NormalizedDigest: detector.Digest(html),
		ByteSize:         len(html),
		ChangeDetails:    model.FirstCapture,
	}
	if err := e.store.Append(context.Background(), c); err != nil {
		t.Fatalf("append: %v", err)
	}
	return c
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("output missing %q, got:\n%s", want, got)
	}
}

func TestRunCompare(t *testing.T) {
	ctx := context.Background()
	const (
		v1 = "<link href=\"a.css?v=1\">\n<p>login</p>\n"
		v2 = "<link href=\"a.css?v=2\">\n<p>login</p>\n"
	)

	t.Run("rules follow the targets file", func(t *testing.T) {
		e, out := newTestEnv(t)
		seed(t, e, "bank-a", v1)
		seed(t, e, "bank-a", v2)

		if err := runCompare(ctx, e, []string{"1", "#2"}); err != nil {
			t.Fatalf("compare: %v", err)
		}
		got := out.String()
		requireContains(t, got, "raw:    differs")
		// asset-version is disabled for bank-a.
		requireContains(t, got, "masked: content changed")
		requireContains(t, got, "-<link href=\"a.css?v=1\">")
		requireContains(t, got, "+<link href=\"a.css?v=2\">")
	})

	t.Run("default rules for unknown targets", func(t *testing.T) {
		e, out := newTestEnv(t)
		seed(t, e, "bank-z", v1)
		seed(t, e, "bank-z", v2)

		if err := runCompare(ctx, e, []string{"1", "2"}); err != nil {
			t.Fatalf("compare: %v", err)
		}
		requireContains(t, out.String(), "masked: unchanged")
	})

	t.Run("missing capture", func(t *testing.T) {
		e, _ := newTestEnv(t)
		err := runCompare(ctx, e, []string{"1", "2"})
		if err == nil || !strings.Contains(err.Error(), "capture #1 not found") {
			t.Errorf("got %v, want capture #1 not found", err)
		}
	})

	t.Run("bad arguments", func(t *testing.T) {
		e, _ := newTestEnv(t)
		if err := runCompare(ctx, e, []string{"1"}); err == nil {
			t.Error("expected error for one id")
		}
		if err := runCompare(ctx, e, []string{"1", "x"}); err == nil {
			t.Error("expected error for non-numeric id")
		}
	})
}

func TestRunShow(t *testing.T) {
	e, out := newTestEnv(t)
	seed(t, e, "bank-a", "<p>1</p>")
	seed(t, e, "bank-a", "<p>2</p>")

	if err := runShow(context.Background(), e, []string{"-n", "1", "bank-a"}); err != nil {
		t.Fatalf("show: %v", err)
	}
	got := out.String()
	requireContains(t, got, "#2")
	if strings.Contains(got, "#1 ") {
		t.Errorf("-n 1 should list one capture, got:\n%s", got)
	}
}

func TestRunExport(t *testing.T) {
	e, out := newTestEnv(t)
	seed(t, e, "bank-a", "<p>1</p>")
	dir := t.TempDir()

	if err := runExport(context.Background(), e, []string{"-dir", dir, "-milestones", "bank-a"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out.String(), "exported 1 captures")
	data, err := os.ReadFile(filepath.Join(dir, "bank-a", "bank-a_first.html"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "<p>1</p>" {
		t.Errorf("exported %q", data)
	}
}

func TestRunAnalyze(t *testing.T) {
	e, out := newTestEnv(t)
	seed(t, e, "bank-a", `<script>var SR = {key: "a", ts: "1"}; var token = "abc123";</script>`)
	seed(t, e, "bank-a", `<script>var SR = {key: "a", ts: "2"}; var token = "def456";</script>`)

	if err := runAnalyze(context.Background(), e, []string{"bank-a"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	got := out.String()
	requireContains(t, got, "variables: SR")
	requireContains(t, got, "keys (2): key, ts")
	requireContains(t, got, "key set: stable")
	requireContains(t, got, "values changed first to last: ts")
	requireContains(t, got, "tokens (1): def456")
}

func TestRunRules(t *testing.T) {
	e, out := newTestEnv(t)
	if err := runRules(context.Background(), e, []string{"bank-a"}); err != nil {
		t.Fatalf("rules: %v", err)
	}
	got := out.String()
	requireContains(t, got, "Masking rules for bank-a")
	requireContains(t, got, "off asset-version")
	requireContains(t, got, "skipped: 0")
}
