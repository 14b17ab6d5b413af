package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v3"
)

// envPrefix 環境変数の接頭辞（例: PSYCHOMETRICS_MODEL=3PL）
const envPrefix = "PSYCHOMETRICS"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(os.Stdout).ParseAndRun(ctx, os.Args[1:]); err != nil && err != flag.ErrHelp {
		fmt.Fprintf(os.Stderr, "psychometrics: %v\n", err)
		os.Exit(1)
	}
}

// commandOptions are shared by every subcommand: flags may also come from a
// JSON config file or PSYCHOMETRICS_* environment variables.
func commandOptions() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix(envPrefix),
	}
}
