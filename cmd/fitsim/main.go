package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"github.com/vkngwrapper/fitsim/config"
	"github.com/vkngwrapper/fitsim/driver"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"github.com/vkngwrapper/fitsim/scenario"
	"github.com/vkngwrapper/fitsim/simulator"
	"golang.org/x/exp/slog"
)

func main() {
	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type environment struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	env := environment{stdin: stdin, stdout: stdout, stderr: stderr}

	return &cli.App{
		Name:      "fitsim",
		Usage:     "compare first, best, worst and next fit placement over a simulated address space",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load settings from a YAML file",
				EnvVars: []string{config.ConfigFileEnvVar},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every arena operation to stderr",
			},
		},
		Commands: []*cli.Command{{
			Name:   "interactive",
			Usage:  "run the interactive menu",
			Action: env.interactive,
		}, {
			Name:      "run",
			Usage:     "replay a YAML scenario and print the resulting statistics",
			ArgsUsage: "SCENARIO",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "save",
					Usage: "save the statistics report after the replay",
				},
				&cli.BoolFlag{
					Name:  "json",
					Usage: "print the statistics as json instead of tables",
				},
			},
			Action: env.run,
		}, {
			Name:  "strategies",
			Usage: "list the placement strategies",
			Action: func(c *cli.Context) error {
				for _, strategy := range metadata.AllStrategies {
					fmt.Fprintf(env.stdout, "%-10s %s\n", strategy.Slug(), strategy)
				}
				return nil
			},
		}},
		DefaultCommand: "interactive",
	}
}

// setup loads the configuration and builds the simulator every command runs against
func (env environment) setup(c *cli.Context) (*config.Config, *slog.Logger, *simulator.Simulator, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}

	level := slog.LevelWarn
	if c.Bool("verbose") || cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(env.stderr, &slog.HandlerOptions{Level: level}))

	options, err := cfg.SimulatorOptions(logger, env.stdout, env.stderr)
	if err != nil {
		return nil, nil, nil, err
	}

	sim, err := simulator.New(logger, options)
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, logger, sim, nil
}

func (env environment) interactive(c *cli.Context) error {
	cfg, logger, sim, err := env.setup(c)
	if err != nil {
		return err
	}

	d := driver.New(sim, env.stdin, env.stdout, driver.Options{
		ReportPath: cfg.Report(),
		Logger:     logger,
	})

	return d.Run(c.Context)
}

func (env environment) run(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("run expects exactly one scenario file")
	}

	s, err := scenario.Load(c.Args().First())
	if err != nil {
		return err
	}

	cfg, _, sim, err := env.setup(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	outcomes, err := scenario.Run(ctx, sim, s)
	if err != nil {
		return err
	}

	if !c.Bool("json") {
		for _, outcome := range outcomes {
			printOutcome(env.stdout, outcome)
		}
	}

	if c.Bool("json") {
		fmt.Fprintln(env.stdout, sim.BuildStatsString(false))
	} else {
		if err := sim.RenderLayout(env.stdout); err != nil {
			return err
		}
		if err := sim.RenderStatistics(env.stdout); err != nil {
			return err
		}
	}

	if c.Bool("save") {
		return sim.SaveStatistics(ctx, cfg.Report())
	}

	return nil
}

func printOutcome(w io.Writer, outcome scenario.Outcome) {
	prefix := fmt.Sprintf("step %d [%s] %s", outcome.Step, outcome.Strategy, outcome.Op)

	switch {
	case outcome.Err != nil:
		fmt.Fprintf(w, "%s: %v\n", prefix, outcome.Err)
	case len(outcome.Regions) == 0:
		fmt.Fprintf(w, "%s: ok\n", prefix)
	default:
		for _, region := range outcome.Regions {
			fmt.Fprintf(w, "%s: %d-%d (%d bytes)\n", prefix, region.Start, region.End, region.Size())
		}
	}
}
