package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/okian/heatscore/internal/adapters/http/client"
	"github.com/okian/heatscore/internal/adapters/mq/queue"
	"github.com/okian/heatscore/internal/adapters/mq/worker"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/scoring"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/internal/heatsim"
	"github.com/okian/heatscore/internal/station"
	"github.com/okian/heatscore/pkg/logger"
	"github.com/okian/heatscore/pkg/metrics"
)

var errNeedsHeatAndJudge = errors.New("--heat and --judge are required")

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "queue a score for the configured heat and judge",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "run", Usage: "run number", Required: true},
			&cli.Int64Flag{Name: "athlete", Usage: "athlete id", Required: true},
			&cli.IntFlag{Name: "bib", Usage: "bib number", Required: true},
			&cli.Float64Flag{Name: "score", Usage: "judge score", Required: true},
			&cli.BoolFlag{Name: "now", Usage: "try to deliver the queue right away"},
		},
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			heat, judge := c.Int64("heat"), c.Int64("judge")
			if heat <= 0 || judge <= 0 {
				return errNeedsHeatAndJudge
			}
			e, err := st.Enqueue(c.Context, model.ScoreSubmission{
				RoundHeatID: heat,
				RunNum:      c.Int("run"),
				PersonnelID: judge,
				AthleteID:   c.Int64("athlete"),
				Bib:         c.Int("bib"),
				Score:       c.Float64("score"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "queued %s (bib %d, run %d, %.1f)\n", e.ID(), e.Submission.Bib, e.Submission.RunNum, e.Submission.Score)
			if !c.Bool("now") {
				return nil
			}
			return drain(c, st)
		}),
	}
}

func drainCommand() *cli.Command {
	return &cli.Command{
		Name:   "drain",
		Usage:  "deliver queued scores once",
		Action: withStation(drain),
	}
}

func drain(c *cli.Context, st *station.Station) error {
	rep, err := st.DrainOnce(c.Context)
	switch {
	case errors.Is(err, worker.ErrOffline):
		fmt.Fprintf(c.App.Writer, "offline: %d scores stay queued\n", rep.Remaining)
		return nil
	case err != nil && rep.State == worker.StatePaused:
		fmt.Fprintf(c.App.Writer, "delivered %d, rejected %d, paused with %d queued: %v\n", rep.Flushed, rep.Rejected, rep.Remaining, err)
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(c.App.Writer, "delivered %d, rejected %d, %d queued\n", rep.Flushed, rep.Rejected, rep.Remaining)
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show queue depth, connectivity and session",
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			online := st.Probe(c.Context)
			s := st.Status(c.Context)
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "server\t%s\t%s\n", c.String("server"), onlineLabel(online))
			fmt.Fprintf(w, "pending\t%d\n", s.Queue.Pending)
			fmt.Fprintf(w, "rejected\t%d\n", s.Queue.Rejected)
			fmt.Fprintf(w, "confirmed\t%d\n", s.Queue.Confirmed)
			if !s.Queue.OldestQueued.IsZero() {
				fmt.Fprintf(w, "oldest\t%s\n", s.Queue.OldestQueued.Format(time.RFC3339))
			}
			if s.SessionExpires.IsZero() {
				fmt.Fprintf(w, "session\tnone\n")
			} else {
				fmt.Fprintf(w, "session\texpires %s\n", s.SessionExpires.Format(time.RFC3339))
			}
			return w.Flush()
		}),
	}
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func pendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "list scores not yet confirmed by the server",
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			return printEntries(c.App.Writer, st.Pending(c.Context))
		}),
	}
}

func rejectedCommand() *cli.Command {
	return &cli.Command{
		Name:  "rejected",
		Usage: "list scores the server refused",
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			return printEntries(c.App.Writer, st.Rejected(c.Context))
		}),
	}
}

func printEntries(out io.Writer, entries []queue.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHEAT\tRUN\tBIB\tSCORE\tATTEMPTS\tLAST ERROR")
	for _, e := range entries {
		s := e.Submission
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%d\t%s\n", e.ID(), s.RoundHeatID, s.RunNum, s.Bib, s.Score, e.Attempts, e.LastError)
	}
	return w.Flush()
}

func discardCommand() *cli.Command {
	return &cli.Command{
		Name:      "discard",
		Usage:     "drop a rejected score",
		ArgsUsage: "<id>",
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("discard needs the id of a rejected score")
			}
			if err := st.Discard(c.Context, id); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "discarded %s\n", id)
			return nil
		}),
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "open a panel session with the judge passcode",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "passcode", Usage: "judge passcode", Required: true, EnvVars: env("PASSCODE")},
			&cli.Int64Flag{Name: "event", Usage: "event id"},
			&cli.Int64Flag{Name: "division", Usage: "division id"},
			&cli.Int64Flag{Name: "round", Usage: "round id"},
		},
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			heat, judge := c.Int64("heat"), c.Int64("judge")
			if heat <= 0 || judge <= 0 {
				return errNeedsHeatAndJudge
			}
			sess, err := st.Login(c.Context, types.SessionRequest{
				EventID:     c.Int64("event"),
				DivisionID:  c.Int64("division"),
				RoundID:     c.Int64("round"),
				RoundHeatID: heat,
				PersonnelID: judge,
				Passcode:    c.String("passcode"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "session open until %s\n", sess.ExpiresAt.Format(time.RFC3339))
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored panel session",
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			if err := st.Logout(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "session cleared")
			return nil
		}),
	}
}

func boardCommand() *cli.Command {
	return &cli.Command{
		Name:  "board",
		Usage: "print the standings and run board for the configured heat",
		Action: withStation(func(c *cli.Context, st *station.Station) error {
			b, err := st.Board(c.Context)
			if err != nil {
				return err
			}
			return printBoard(c.App.Writer, b)
		}),
	}
}

func printBoard(out io.Writer, b station.Board) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "standings at %s\n", b.FetchedAt.Format(time.TimeOnly))
	fmt.Fprintln(w, "RANK\tBIB\tNAME\tBEST")
	for _, s := range b.Standings.Ranked {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", s.Rank, s.BibNum, s.Name, formatScore(s.Best))
	}
	for _, s := range b.Standings.Unranked {
		fmt.Fprintf(w, "-\t%d\t%s\t%s\n", s.BibNum, s.Name, formatScore(s.Best))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "BIB\tRUN\tMARKS\tSCORE")
	for _, a := range b.Runs {
		for _, r := range a.Runs {
			marks := ""
			for i, m := range r.Marks {
				if i > 0 {
					marks += " "
				}
				marks += strconv.FormatFloat(m.Score, 'f', -1, 64)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", a.BibNum, r.RunNum, marks, formatScore(r.Score))
		}
	}
	return w.Flush()
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "keep delivering queued scores until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "board", Usage: "print the live board on every refresh"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve station metrics on this address", EnvVars: env("METRICS_ADDR")},
		},
		Action: func(c *cli.Context) error {
			out := c.App.Writer
			opts := []station.Option{
				station.WithReportHandler(func(r worker.Report) {
					if r.Flushed > 0 || r.Rejected > 0 || r.Err != nil {
						fmt.Fprintf(out, "delivered %d, rejected %d, %d queued (%s)\n", r.Flushed, r.Rejected, r.Remaining, r.State)
					}
				}),
			}
			if c.Bool("board") {
				opts = append(opts, station.WithBoardHandler(func(b station.Board) { _ = printBoard(out, b) }))
			}
			st, err := openStation(c, opts...)
			if err != nil {
				return err
			}
			defer st.Close()

			if addr := c.String("metrics-addr"); addr != "" {
				srv := metricsServer(addr)
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Get().Error(c.Context, "metrics server failed", logger.Error(err))
					}
				}()
				defer srv.Close()
			}

			if err := st.Start(c.Context); err != nil {
				return err
			}
			<-c.Context.Done()
			st.Stop()
			fmt.Fprintf(out, "stopped with %d scores queued\n", st.Status(c.Context).Queue.Pending)
			return nil
		},
	}
}

func metricsServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

func simulateCommand() *cli.Command {
	def := heatsim.DefaultConfig()
	return &cli.Command{
		Name:  "simulate",
		Usage: "score the configured heat with a simulated panel and verify the standings",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "runs", Value: def.Runs, Usage: "runs per athlete"},
			&cli.Int64SliceFlag{Name: "judges", Value: cli.NewInt64Slice(def.Judges...), Usage: "panel personnel ids"},
			&cli.IntFlag{Name: "workers", Value: def.Workers, Usage: "concurrent submitters"},
			&cli.IntFlag{Name: "replay-every", Value: def.ReplayEvery, Usage: "resend every Nth score, 0 disables"},
			&cli.Uint64Flag{Name: "seed", Value: def.Seed, Usage: "score generator seed"},
			&cli.StringFlag{Name: "rule", Value: string(def.Rule), Usage: "server scoring rule: mean, trimmed_mean or median"},
			&cli.IntFlag{Name: "trim-min-judges", Value: def.TrimMinJudges, Usage: "server trim_min_judges"},
			&cli.IntFlag{Name: "precision", Value: def.Precision, Usage: "server score_precision"},
			&cli.DurationFlag{Name: "settle", Value: def.SettleTimeout, Usage: "how long standings may take to match"},
		},
		Action: func(c *cli.Context) error {
			rule, err := scoring.ParseRule(c.String("rule"))
			if err != nil {
				return err
			}
			if c.Int64("heat") <= 0 {
				return errors.New("--heat is required")
			}
			cfg := heatsim.Config{
				RoundHeatID:   c.Int64("heat"),
				Runs:          c.Int("runs"),
				Judges:        c.Int64Slice("judges"),
				Workers:       c.Int("workers"),
				ReplayEvery:   c.Int("replay-every"),
				Seed:          c.Uint64("seed"),
				ScoreRange:    model.ScoreRange{Min: c.Float64("score-min"), Max: c.Float64("score-max")},
				Rule:          rule,
				TrimMinJudges: c.Int("trim-min-judges"),
				Precision:     c.Int("precision"),
				SettleTimeout: c.Duration("settle"),
			}
			target := client.New(c.String("server"),
				client.WithTimeout(c.Duration("submit-timeout")),
				client.WithLogger(logger.Get().Named("client")),
			)
			stats, err := heatsim.Run(c.Context, target, cfg, logger.Get().Named("heatsim"))
			fmt.Fprintf(c.App.Writer, "athletes %d, submitted %d, applied %d, duplicate %d, rejected %d, failed %d in %s\n",
				stats.Athletes, stats.Submitted, stats.Applied, stats.Duplicate, stats.Rejected, stats.Failed, stats.Duration.Round(time.Millisecond))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "standings verified: %d ranked\n", stats.Ranked)
			return nil
		},
	}
}
