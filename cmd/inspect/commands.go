package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"loginwatch/internal/detector"
	"loginwatch/internal/diff"
	"loginwatch/internal/export"
	"loginwatch/internal/extract"
	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

func runTargets(ctx context.Context, e *env, _ []string) error {
	ids, err := e.store.ListTargets(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(e.out, mutedStyle.Render("no captures stored"))
		return nil
	}
	fmt.Fprintln(e.out, titleStyle.Render("Targets with captures"))
	for _, id := range ids {
		latest, err := e.store.Latest(ctx, id)
		if err != nil {
			return fmt.Errorf("latest capture of %s: %w", id, err)
		}
		fmt.Fprintf(e.out, "  %-30s last #%d at %s\n", id, latest.ID, latest.CapturedAt.Local().Format(timeLayout))
	}
	return nil
}

func runShow(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of captures to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs.Args(), "target")
	if err != nil {
		return err
	}

	captures, err := e.store.Recent(ctx, id, max(*n, 1))
	if err != nil {
		return err
	}
	if len(captures) == 0 {
		fmt.Fprintln(e.out, mutedStyle.Render("no captures for "+id))
		return nil
	}

	fmt.Fprintln(e.out, titleStyle.Render("Recent captures of "+id))
	for _, c := range captures {
		line := fmt.Sprintf("  #%-6d %s  %8d bytes  %.12s  %s",
			c.ID, c.CapturedAt.Local().Format(timeLayout), c.ByteSize, c.NormalizedDigest, c.ChangeDetails.Describe())
		if c.ChangeDetected && c.ChangeDetails == model.ContentChanged {
			line = warnStyle.Render(line)
		}
		fmt.Fprintln(e.out, line)
	}
	return nil
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("dir", "./exports", "output directory")
	milestones := fs.Bool("milestones", false, "export only the first, previous and latest capture")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs.Args(), "target")
	if err != nil {
		return err
	}

	var paths []string
	if *milestones {
		paths, err = export.Milestones(ctx, e.store, id, filepath.Join(*dir, export.SafeFilename(id)))
	} else {
		paths, err = export.ByDate(ctx, e.store, id, *dir)
	}
	if errors.Is(err, export.ErrNoCaptures) {
		fmt.Fprintln(e.out, mutedStyle.Render("no captures for "+id))
		return nil
	}
	for _, p := range paths {
		fmt.Fprintln(e.out, "  "+p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, okStyle.Render(fmt.Sprintf("exported %d captures", len(paths))))
	return nil
}

func runCompare(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return errors.New("expected two capture ids")
	}
	var pair [2]*model.Capture
	for i, a := range args {
		id, err := strconv.ParseInt(strings.TrimPrefix(a, "#"), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid capture id %q", a)
		}
		if pair[i], err = e.store.Get(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("capture #%d not found", id)
			}
			return err
		}
	}
	a, b := pair[0], pair[1]
	if a.TargetID != b.TargetID {
		fmt.Fprintln(e.out, warnStyle.Render(fmt.Sprintf("captures belong to different targets: %s, %s", a.TargetID, b.TargetID)))
	}

	rs, err := e.ruleset(e.target(b.TargetID))
	if err != nil {
		return err
	}

	fmt.Fprintln(e.out, titleStyle.Render(fmt.Sprintf("%s vs %s", a.Label(), b.Label())))
	fmt.Fprintf(e.out, "  raw:    %s\n", verdict(detector.RawChanged(a.RawHTML, b.RawHTML), "differs", "identical"))
	fmt.Fprintf(e.out, "  masked: %s\n", verdict(detector.Changed(a.RawHTML, b.RawHTML, rs), "content changed", "unchanged"))
	fmt.Fprintln(e.out)

	printDiff(e.out, diff.Render(a.RawHTML, b.RawHTML, a.Label(), b.Label()))
	return nil
}

func printDiff(w io.Writer, rep diff.Report) {
	for _, line := range strings.Split(strings.TrimSuffix(rep.String(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "==="):
			line = subtitleStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			line = hunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			line = addStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			line = removeStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}

func runAnalyze(ctx context.Context, e *env, args []string) error {
	id, err := oneArg(args, "target")
	if err != nil {
		return err
	}
	history, err := e.store.History(ctx, id)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(e.out, mutedStyle.Render("no captures for "+id))
		return nil
	}

	fmt.Fprintln(e.out, titleStyle.Render("Security object analysis of "+id))
	for _, d := range extract.AnalyzeHistory(history) {
		fmt.Fprintln(e.out)
		fmt.Fprintln(e.out, subtitleStyle.Render(fmt.Sprintf("%s  (%d captures)", d.Date, len(d.Samples))))
		if len(d.Names) == 0 {
			fmt.Fprintln(e.out, "  "+warnStyle.Render("no security object found"))
			continue
		}
		fmt.Fprintf(e.out, "  variables: %s\n", strings.Join(d.Names, ", "))
		if d.Missing > 0 {
			fmt.Fprintf(e.out, "  %s\n", warnStyle.Render(fmt.Sprintf("%d captures without an object", d.Missing)))
		}
		fmt.Fprintf(e.out, "  keys (%d): %s\n", len(d.Keys), strings.Join(d.Keys, ", "))
		fmt.Fprintf(e.out, "  key set: %s\n", verdict(!d.KeysStable, "differs between captures", "stable"))
		if !d.Churn.SameKeys() {
			fmt.Fprintf(e.out, "  added: %v  removed: %v\n", d.Churn.Added, d.Churn.Removed)
		}
		if len(d.Churn.Changed) > 0 {
			fmt.Fprintf(e.out, "  values changed first to last: %s\n", strings.Join(d.Churn.Changed, ", "))
		} else {
			fmt.Fprintln(e.out, "  values: "+okStyle.Render("identical first to last"))
		}
	}

	latest := history[len(history)-1]
	hints := extract.DynamicHints(latest.RawHTML)
	fmt.Fprintln(e.out)
	fmt.Fprintln(e.out, subtitleStyle.Render("Dynamic elements in "+latest.Label()))
	if hints.Empty() {
		fmt.Fprintln(e.out, "  "+mutedStyle.Render("none"))
		return nil
	}
	printHints(e.out, "timestamps", hints.Timestamps)
	printHints(e.out, "session ids", hints.Sessions)
	printHints(e.out, "tokens", hints.Tokens)
	printHints(e.out, "csrf tokens", hints.CSRF)
	return nil
}

func printHints(w io.Writer, label string, values []string) {
	if len(values) == 0 {
		return
	}
	shown := make([]string, 0, 5)
	for _, v := range values[:min(len(values), 5)] {
		shown = append(shown, extract.Shorten(v))
	}
	fmt.Fprintf(w, "  %s (%d): %s\n", label, len(values), strings.Join(shown, ", "))
}

func runRules(_ context.Context, e *env, args []string) error {
	t := model.Target{ID: "default"}
	if len(args) > 0 {
		t = e.target(args[0])
	}

	rules, err := normalize.Resolve(normalize.DefaultRules(), t.Rules)
	if err != nil {
		return fmt.Errorf("target %q: %w", t.ID, err)
	}

	fmt.Fprintln(e.out, titleStyle.Render(fmt.Sprintf("Masking rules for %s (table v%d)", t.Label(), normalize.RulesVersion)))
	for _, r := range rules {
		status := okStyle.Render("on ")
		if !r.Enabled {
			status = mutedStyle.Render("off")
		}
		line := fmt.Sprintf("  %s %-22s %-18s", status, r.Name, r.Category)
		if err := normalize.Validate(r); err != nil {
			line += " " + badStyle.Render(err.Error())
		}
		fmt.Fprintln(e.out, line)
	}

	rs := normalize.Compile(rules, e.log)
	fmt.Fprintf(e.out, "\n  active: %d  skipped: %d  digest: %.12s\n", len(rs.Active()), len(rs.Skipped()), rs.Digest())
	return nil
}
