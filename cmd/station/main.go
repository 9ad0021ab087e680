// Command station is the judge station: it queues scores on disk, delivers
// them when the scoring server is reachable and shows the live board.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/station"
	"github.com/okian/heatscore/pkg/logger"
)

const envPrefix = "HEATSCORE_STATION_"

func env(name string) []string { return []string{envPrefix + name} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString("station: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	def := station.DefaultConfig()
	return &cli.App{
		Name:  "station",
		Usage: "judge station for the heatscore scoring server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: def.ServerURL, Usage: "scoring server base URL", EnvVars: env("SERVER")},
			&cli.StringFlag{Name: "data", Value: def.DataPath, Usage: "station database file", EnvVars: env("DATA")},
			&cli.Int64Flag{Name: "heat", Usage: "round heat this station judges", EnvVars: env("HEAT")},
			&cli.Int64Flag{Name: "judge", Usage: "personnel id of the judge at this station", EnvVars: env("JUDGE")},
			&cli.DurationFlag{Name: "probe-every", Value: def.ProbeEvery, Usage: "connectivity probe interval", EnvVars: env("PROBE_EVERY")},
			&cli.DurationFlag{Name: "drain-every", Value: def.DrainEvery, Usage: "periodic drain interval", EnvVars: env("DRAIN_EVERY")},
			&cli.DurationFlag{Name: "poll-every", Value: def.PollEvery, Usage: "live board refresh interval", EnvVars: env("POLL_EVERY")},
			&cli.DurationFlag{Name: "submit-timeout", Value: def.SubmitTimeout, Usage: "timeout for one score submission", EnvVars: env("SUBMIT_TIMEOUT")},
			&cli.DurationFlag{Name: "probe-timeout", Value: def.ProbeTimeout, Usage: "timeout for one health probe", EnvVars: env("PROBE_TIMEOUT")},
			&cli.IntFlag{Name: "max-pending", Value: def.MaxPending, Usage: "scores kept before enqueue refuses", EnvVars: env("MAX_PENDING")},
			&cli.Float64Flag{Name: "score-min", Value: def.ScoreRange.Min, Usage: "lowest accepted score", EnvVars: env("SCORE_MIN")},
			&cli.Float64Flag{Name: "score-max", Value: def.ScoreRange.Max, Usage: "highest accepted score", EnvVars: env("SCORE_MAX")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", EnvVars: env("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: logger.FormatText, Usage: "text or json", EnvVars: env("LOG_FORMAT")},
		},
		Before: initLogging,
		Commands: []*cli.Command{
			enqueueCommand(),
			drainCommand(),
			statusCommand(),
			pendingCommand(),
			rejectedCommand(),
			discardCommand(),
			loginCommand(),
			logoutCommand(),
			boardCommand(),
			runCommand(),
			simulateCommand(),
		},
	}
}

// initLogging sends logs to the app's error writer so command output stays clean.
func initLogging(c *cli.Context) error {
	if err := logger.InitWithFormat(c.String("log-format"), c.App.ErrWriter); err != nil {
		return err
	}
	return logger.SetLevelString(c.String("log-level"))
}

func configFrom(c *cli.Context) station.Config {
	return station.Config{
		ServerURL:     c.String("server"),
		DataPath:      c.String("data"),
		RoundHeatID:   c.Int64("heat"),
		PersonnelID:   c.Int64("judge"),
		ProbeEvery:    c.Duration("probe-every"),
		DrainEvery:    c.Duration("drain-every"),
		PollEvery:     c.Duration("poll-every"),
		SubmitTimeout: c.Duration("submit-timeout"),
		ProbeTimeout:  c.Duration("probe-timeout"),
		MaxPending:    c.Int("max-pending"),
		ScoreRange:    model.ScoreRange{Min: c.Float64("score-min"), Max: c.Float64("score-max")},
	}
}

// openStation opens the station described by the global flags.
func openStation(c *cli.Context, opts ...station.Option) (*station.Station, error) {
	opts = append(opts, station.WithLogger(logger.Get().Named("station")))
	return station.Open(c.Context, configFrom(c), opts...)
}

// withStation runs fn against an opened station and closes it afterwards.
func withStation(fn func(c *cli.Context, st *station.Station) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		st, err := openStation(c)
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(c, st)
	}
}
