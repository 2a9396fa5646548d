package main

import (
	"fmt"
	"os"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"
	"github.com/vseklecov/sopds/pkg/authors"
	"github.com/vseklecov/sopds/pkg/config"
	"github.com/vseklecov/sopds/pkg/database"
	"github.com/vseklecov/sopds/pkg/genres"
	"github.com/vseklecov/sopds/pkg/migrations"
	"github.com/vseklecov/sopds/pkg/scanner"
	"github.com/vseklecov/sopds/pkg/version"
)

func main() {
	app := &cli.App{
		Name:    "scanner",
		Usage:   "scan the library directory and register books in the catalog",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
				Value:   "sopds.yml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "init",
				Usage: "initialize the database and seed the genre taxonomy",
			},
			&cli.BoolFlag{
				Name:  "scan-all",
				Usage: "rescan every file regardless of modification time",
			},
			&cli.BoolFlag{
				Name:  "last",
				Usage: "print the time of the last completed scan",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logger.New().Err(err).Fatal("app run error")
	}
}

func run(c *cli.Context) error {
	log := logger.New()
	if c.Bool("verbose") {
		log = logger.NewWithLevel("debug")
	}

	exclusive := 0
	for _, name := range []string{"init", "scan-all", "last"} {
		if c.Bool(name) {
			exclusive++
		}
	}
	if exclusive > 1 {
		return fmt.Errorf("--init, --scan-all and --last are mutually exclusive")
	}

	cfg, err := config.New(c.String("config"))
	if err != nil {
		return err
	}

	if c.Bool("last") {
		state, err := config.LoadState(cfg.StateFilePath)
		if err != nil {
			return err
		}
		if state.LastScan.IsZero() {
			fmt.Println("The library has never been scanned")
			return nil
		}
		fmt.Printf("Last scan completed at %s\n", state.LastScan.Format(time.RFC3339))
		return nil
	}

	db, err := database.New(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	group, err := migrations.BringUpToDate(c.Context, db)
	if err != nil {
		return err
	}
	if group.ID != 0 {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	if c.Bool("init") {
		if err := genres.NewService(db).Seed(c.Context); err != nil {
			return err
		}
		if err := authors.NewService(db).EnsureUnknown(c.Context); err != nil {
			return err
		}
		log.Info("database initialized")
		return nil
	}

	state, err := config.LoadState(cfg.StateFilePath)
	if err != nil {
		return err
	}

	opts := scanner.Options{Full: c.Bool("scan-all"), Since: state.LastScan}
	if state.LastScan.IsZero() {
		opts.Full = true
	}

	started := time.Now()
	stats, err := scanner.New(cfg, db).Run(c.Context, opts)
	if err != nil {
		return err
	}

	state.LastScan = started
	if err := state.Save(cfg.StateFilePath); err != nil {
		return err
	}

	log.Info("scan finished", logger.Data{
		"files":      stats.Files,
		"added":      stats.Added,
		"duplicates": stats.Duplicates,
		"skipped":    stats.Skipped,
		"errors":     stats.Errors,
	})
	return nil
}
