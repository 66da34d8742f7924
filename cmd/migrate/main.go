// Command migrate manages the database schema.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"newsfeed/internal/config"
	"newsfeed/migrations"
)

const usage = `Usage: migrate [-db path] <command>

Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations`

func main() {
	config.LoadDotenv(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	dbPath := flag.String("db", cfg.DatabasePath, "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	log := cfg.Logger()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Error("open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	provider, err := migrations.NewProvider(db)
	if err != nil {
		log.Error("create provider", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), provider, args[0]); err != nil {
		log.Error("migrate", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p *goose.Provider, cmd string) error {
	switch cmd {
	case "up":
		results, err := p.Up(ctx)
		printResults(results)
		return err
	case "up-one":
		res, err := p.UpByOne(ctx)
		printResults([]*goose.MigrationResult{res})
		return err
	case "down":
		res, err := p.Down(ctx)
		printResults([]*goose.MigrationResult{res})
		return err
	case "reset":
		results, err := p.DownTo(ctx, 0)
		printResults(results)
		return err
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-20s %s\n", applied, s.Source.Path)
		}
		return nil
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printResults(results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Printf("%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration)
	}
}
