package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/denismitr/upgradedb"
	"github.com/denismitr/upgradedb/internal/cli"
	"github.com/logrusorgru/aurora/v3"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"
)

const prefix = "upgradedb: "

func main() {
	flag.Bool("list", false, "list the migrations that have not been applied (default)")
	executeCmd := flag.Bool("execute", false, "apply the pending migrations")
	seedCmd := flag.Bool("seed", false, "record migrations as applied without running them, takes -stop-at or migration names as arguments")
	historyCmd := flag.Bool("history", false, "show the migrations applied to a database")
	initCmd := flag.Bool("init", false, "create a config file stub")

	configPath := flag.String("config", cli.DefaultConfigFile, "path to the config file")
	folder := flag.String("path", "", "migrations folder, overrides the config file")
	databases := flag.String("database", "", "comma separated database aliases to work on")
	stopAt := flag.String("stop-at", "", "ignore migrations numbered above this value")
	timeout := flag.Duration("timeout", 10*time.Minute, "give up after this long")

	debug := flag.Bool("debug", false, "print debug messages")
	printSQL := flag.Bool("sql", false, "print every query")
	noColor := flag.Bool("no-color", false, "disable colored output")

	flag.Parse()

	if err := cli.LoadDotenv(".env"); err != nil {
		exit(err)
	}

	if *initCmd {
		if err := cli.InitCfg(*configPath); err != nil {
			exit(err)
		}

		fmt.Println(aurora.Green(prefix), "created", *configPath)
		return
	}

	path := *configPath
	if !cli.FileExists(path) {
		path = ""
	}

	cfg, err := cli.LoadConfig(path)
	if err != nil {
		exit(err)
	}

	if *folder != "" {
		cfg.MigrationsFolder = *folder
	}

	app, closer, err := cli.New(cfg, cli.LogConfig{
		Printer: log.New(os.Stdout, "", 0),
		NoColor: *noColor,
		LoggerOptions: upgradedb.LoggerOptions{
			SQL:   *printSQL,
			Debug: *debug,
			Trace: *debug,
		},
	})
	if err != nil {
		exit(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)

	act := cli.ActionConfig{Databases: split(*databases), StopAt: *stopAt, Labels: flag.Args()}

	switch {
	case *executeCmd:
		err = execute(ctx, app, act)
	case *seedCmd:
		err = seed(ctx, app, act)
	case *historyCmd:
		err = history(ctx, app, act)
	default:
		err = list(ctx, app, act)
	}

	cancelTimeout()
	cancel()

	if closeErr := closer(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		exit(err)
	}
}

func list(ctx context.Context, app *cli.App, act cli.ActionConfig) error {
	pending, err := app.List(ctx, act)
	if err != nil {
		return err
	}

	if pending.Len() == 0 {
		fmt.Println(aurora.Green(prefix), "nothing to migrate")
		return nil
	}

	for _, alias := range pending.Aliases() {
		fmt.Println(aurora.Bold(alias))
		for _, f := range pending[alias] {
			fmt.Println("  ", f.Label())
		}
	}

	return nil
}

func execute(ctx context.Context, app *cli.App, act cli.ActionConfig) error {
	result, err := app.Execute(ctx, act)
	if err != nil {
		return err
	}

	fmt.Println(aurora.Green(prefix), fmt.Sprintf("all done, %d migration(s) applied", result.Count()))

	return nil
}

func seed(ctx context.Context, app *cli.App, act cli.ActionConfig) error {
	outcomes, err := app.Seed(ctx, act)
	for _, o := range outcomes {
		fmt.Printf("%s %s: %s\n", aurora.Bold(o.Database), o.Label, o.Status)
	}

	return err
}

func history(ctx context.Context, app *cli.App, act cli.ActionConfig) error {
	aliases := act.Databases
	if len(aliases) == 0 {
		aliases = app.Databases()
	}

	for _, alias := range aliases {
		records, err := app.History(ctx, alias)
		if err != nil {
			return err
		}

		fmt.Println(aurora.Bold(alias))
		for _, r := range records {
			rev := "-"
			if r.Revision.Valid {
				rev = r.Revision.String
			}
			fmt.Printf("  %s  %s  %s\n", r.DateCreated.Format(time.RFC3339), r.Label, rev)
		}
	}

	return nil
}

func split(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// exit prints the error with its stack trace
func exit(err error) {
	fmt.Fprintf(os.Stderr, "%s %+v\n", aurora.Red(prefix), err)
	os.Exit(1)
}
