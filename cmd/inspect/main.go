// Command inspect reads the capture history offline: it lists, exports,
// compares and analyzes stored captures of a target.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"loginwatch/internal/config"
	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/storage"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"targets", "targets", runTargets},
	{"show", "show [-n count] <target>", runShow},
	{"export", "export [-dir path] [-milestones] <target>", runExport},
	{"compare", "compare <capture id> <capture id>", runCompare},
	{"analyze", "analyze <target>", runAnalyze},
	{"rules", "rules [target]", runRules},
}

// env is shared by all commands.
type env struct {
	cfg   *config.Config
	store storage.Storage
	out   io.Writer
	log   *slog.Logger
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := execute(c, cfg, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("%s: %v", name, err)))
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
	usage()
	os.Exit(1)
}

func execute(c command, cfg *config.Config, args []string) error {
	e := &env{
		cfg: cfg,
		out: os.Stdout,
		log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if c.name != "rules" {
		store, err := storage.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = store.Close() }()
		e.store = store
	}
	return c.run(context.Background(), e, args)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: inspect <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %s\n", c.usage)
	}
}

// target looks a target up in the targets file. Targets that only exist in
// the database are returned bare, with the default rules.
func (e *env) target(id string) model.Target {
	targets, err := config.LoadTargets(e.cfg.TargetsFile, e.cfg.CheckInterval)
	if err != nil {
		e.log.Warn("load targets", "path", e.cfg.TargetsFile, "error", err)
		return model.Target{ID: id}
	}
	for _, t := range targets {
		if t.ID == id {
			return t
		}
	}
	return model.Target{ID: id}
}

// ruleset compiles the masking rules a target is monitored with.
func (e *env) ruleset(t model.Target) (*normalize.Ruleset, error) {
	rules, err := normalize.Resolve(normalize.DefaultRules(), t.Rules)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", t.ID, err)
	}
	return normalize.Compile(rules, e.log.With("target", t.ID)), nil
}

func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("expected one %s argument", what)
	}
	return args[0], nil
}
