package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command> [arg]

commands:
  up               apply all pending migrations
  down             roll back the latest migration
  to <version>     migrate up or down to version (YYYYMMDDHHMMSS)
  status           list migrations and whether they are applied
  version          print the current database version
  create <name>    write an empty migration into -dir
  validate         check migration file names and goose annotations

flags:
`

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, arg := flag.Arg(0), flag.Arg(1)

	if err := runOffline(command, arg, *dir); !errors.Is(err, errNeedsDatabase) {
		exitOn(err)
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(err)
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(err)
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(err)

	var migrator *migrate.Migrator
	if *dir != "" {
		migrator, err = migrate.FromDir(sqlDB, *dir)
	} else {
		migrator, err = migrate.NewEmbedded(sqlDB)
	}
	exitOn(err)

	exitOn(runOnline(ctx, migrator, command, arg, os.Stdout))
	logg.Info(ctx, "migrate finished")
}

var errNeedsDatabase = errors.New("command needs a database")

// runOffline handles the commands that only touch files.
func runOffline(command, arg, dir string) error {
	switch command {
	case "create":
		if arg == "" {
			return errors.New("create needs a migration name")
		}
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, arg, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if dir == "" {
			dir = migrate.DefaultDir
		}
		if err := migrate.ValidateDir(dir); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	}
	return errNeedsDatabase
}

func runOnline(ctx context.Context, m *migrate.Migrator, command, arg string, out io.Writer) error {
	switch command {
	case "up":
		applied, err := m.Up(ctx)
		printApplied(out, applied)
		return err
	case "down":
		applied, err := m.Down(ctx)
		printApplied(out, applied)
		return err
	case "to":
		target, err := migrate.ParseVersion(arg)
		if err != nil {
			return err
		}
		applied, err := m.To(ctx, target)
		printApplied(out, applied)
		return err
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil
	case "status":
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, row := range rows {
			state, at := "pending", "-"
			if row.Applied {
				state, at = "applied", row.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.Version, state, at, row.Path)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printApplied(out io.Writer, applied []migrate.Applied) {
	if len(applied) == 0 {
		fmt.Fprintln(out, "nothing to do")
		return
	}
	for _, a := range applied {
		fmt.Fprintf(out, "%-4s %d %s (%s)\n", a.Direction, a.Version, a.Path, a.Duration.Round(time.Millisecond))
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
