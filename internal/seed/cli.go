package seed

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/okian/dashboard-api/pkg/logger"
)

// NewApp builds the seed-events command line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "seed-events",
		Usage: "generate user events, submit them to dashboard-api and verify the served stats",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: DefaultBaseURL, Usage: "base URL of the service", EnvVars: []string{"SEED_URL"}},
			&cli.IntFlag{Name: "events", Value: DefaultEvents, Usage: "number of events to generate"},
			&cli.IntFlag{Name: "deployments", Value: DefaultDeployments, Usage: "events go to deployment ids 1..N"},
			&cli.IntFlag{Name: "users", Value: DefaultUsers, Usage: "distinct users per deployment"},
			&cli.IntFlag{Name: "days", Value: DefaultDays, Usage: "spread events over the last N days"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * 2, Usage: "concurrent submitters"},
			&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "generator seed; reruns with the same seed only produce duplicates"},
			&cli.DurationFlag{Name: "timeout", Value: DefaultTimeout, Usage: "HTTP request timeout"},
			&cli.DurationFlag{Name: "settle", Value: DefaultSettleTimeout, Usage: "how long to wait for served stats to match"},
			&cli.StringFlag{Name: "output", Usage: "write the generated events to this JSON file"},
			&cli.BoolFlag{Name: "skip-verify", Usage: "submit only"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Value: logger.FormatText, Usage: "text or json"},
		},
		Before: func(cCtx *cli.Context) error {
			if err := logger.Init(logger.WithFormat(cCtx.String("log-format"))); err != nil {
				return err
			}
			return logger.SetLevelString(cCtx.String("log-level"))
		},
		Action: func(cCtx *cli.Context) error {
			_, err := Run(cCtx.Context, ConfigFromCLI(cCtx))
			return err
		},
	}
}

// ConfigFromCLI reads a Config from the parsed flags.
func ConfigFromCLI(cCtx *cli.Context) *Config {
	return &Config{
		BaseURL:     cCtx.String("url"),
		NumEvents:   cCtx.Int("events"),
		Deployments: cCtx.Int("deployments"),
		Users:       cCtx.Int("users"),
		Days:        cCtx.Int("days"),
		Workers:     cCtx.Int("workers"),
		Seed:        cCtx.Uint64("seed"),
		Timeout:     cCtx.Duration("timeout"),
		Settle:      cCtx.Duration("settle"),
		OutputFile:  cCtx.String("output"),
		SkipVerify:  cCtx.Bool("skip-verify"),
	}
}
