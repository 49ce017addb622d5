package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"loginwatch/migrations"
)

const usage = `Usage: migrate [-db path] [-force] <command>

Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  status      Show migration status
  version     Show current version
  down        Roll back one version (needs -force)
  reset       Roll back all migrations (needs -force)

Rolling back drops the capture history and its append-only triggers.
`

// errNeedsForce guards the commands that drop stored captures.
var errNeedsForce = errors.New("drops the capture history, rerun with -force")

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/loginwatch.db"), "path to sqlite database")
	force := flag.Bool("force", false, "allow down and reset")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		log.Fatalf("setup migrations: %v", err)
	}

	if err := run(db, args[0], *force); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func run(db *sql.DB, cmd string, force bool) error {
	switch cmd {
	case "up":
		return goose.Up(db, ".")
	case "up-one":
		return goose.UpByOne(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	case "down", "reset":
		if !force {
			return errNeedsForce
		}
		if cmd == "down" {
			return goose.Down(db, ".")
		}
		return goose.Reset(db, ".")
	default:
		return errors.New("unknown command")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
