// Package main provides the aemetwind command line tool: query AEMET
// OpenData daily climate and wind records, list stations and run bulk
// downloads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "aemetwind-cli"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "aemetwind:", err)
		stop()
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	a := &app{}
	return &cli.Command{
		Name:        "aemetwind",
		Usage:       "AEMET OpenData daily climate and wind client",
		Description: "Long periods are split into requests of at most five years and streamed back in date order.",
		Version:     Version + " (built " + BuildTime + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"cfg"},
				Usage:   "optional YAML config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded when present",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "AEMET OpenData API key, overrides AEMET_API_KEY",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "AEMET OpenData base URL, overrides AEMET_BASE_URL",
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "pause before every daily climate request, overrides AEMET_REQUEST_DELAY",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn, error or disabled",
			},
			&cli.BoolFlag{
				Name:  "log-pretty",
				Usage: "human readable logs on stderr",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			decomposeCommand(a),
			climateCommand(a),
			windCommand(a),
			stationsCommand(a),
			downloadCommand(a),
			envCommand(),
		},
	}
}
