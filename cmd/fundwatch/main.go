// Command fundwatch records the disclosed holdings of active funds and reports
// how each fund's manager rebalanced between trading days.
//
// Usage:
//
//	fundwatch collect [fund...] [--top 5]
//	fundwatch analyze <fund> [--date 2025-07-07] [--top 5]
//	fundwatch history <fund> [--days 30] [--stock NAME] [--window 5]
//	fundwatch funds
//	fundwatch serve [--addr :8080]
//	fundwatch setup
//
// Settings come from --config, FUNDWATCH_CONFIG or the built-in defaults.
// FUNDWATCH_DATA_DIR overrides the data directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fundwatch/config"
	"github.com/vadiminshakov/fundwatch/internal/app"
	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/internal/events"
	"github.com/vadiminshakov/fundwatch/internal/report"
	"github.com/vadiminshakov/fundwatch/internal/services/calendar"
	"github.com/vadiminshakov/fundwatch/internal/services/collector"
	"github.com/vadiminshakov/fundwatch/internal/services/history"
	"github.com/vadiminshakov/fundwatch/internal/services/rebalance"
	"github.com/vadiminshakov/fundwatch/internal/setup"
	"github.com/vadiminshakov/fundwatch/internal/storage/snapshots"
	"github.com/vadiminshakov/fundwatch/internal/web"
	"github.com/vadiminshakov/fundwatch/pkg/date"
	"github.com/vadiminshakov/fundwatch/pkg/retrier"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Fatal("fundwatch failed", zap.Error(err))
	}
}

type cli struct {
	l          *zap.Logger
	configPath string
	cfg        config.Config
}

func newRootCmd(l *zap.Logger) *cobra.Command {
	c := &cli{l: l}

	root := &cobra.Command{
		Use:           "fundwatch",
		Short:         "Track fund holdings and decompose rebalances into drift and trades",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "setup" {
				return nil
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to yaml config")

	root.AddCommand(
		c.collectCmd(),
		c.analyzeCmd(),
		c.historyCmd(),
		c.fundsCmd(),
		c.serveCmd(),
		c.setupCmd(),
	)
	return root
}

func (c *cli) collectCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "collect [fund...]",
		Short: "Fetch today's holdings and compare them with the previous business day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := c.cfg.Today()
			m, closeStore, err := c.monitor()
			if err != nil {
				return err
			}
			defer closeStore()

			if len(args) == 0 {
				failed := 0
				for _, o := range m.RunAll(cmd.Context(), day) {
					if o.Err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", o.Fund, o.Err)
						continue
					}
					if err := report.Rebalance(cmd.OutOrStdout(), o.Report, top); err != nil {
						return err
					}
				}
				if failed > 0 {
					return errors.Errorf("%d of %d funds failed", failed, len(m.Funds()))
				}
				return nil
			}

			for _, id := range args {
				r, err := m.Run(cmd.Context(), id, day)
				if err != nil {
					return err
				}
				if err := report.Rebalance(cmd.OutOrStdout(), r, top); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "entries shown per section")
	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	var on string
	var top int

	cmd := &cobra.Command{
		Use:   "analyze <fund>",
		Short: "Compare a stored snapshot with its baseline without fetching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := c.date(on)
			if err != nil {
				return err
			}
			m, closeStore, err := c.monitor()
			if err != nil {
				return err
			}
			defer closeStore()

			r, err := m.Analyze(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			return report.Rebalance(cmd.OutOrStdout(), r, top)
		},
	}
	cmd.Flags().StringVar(&on, "date", "", "snapshot date (default today in the market timezone)")
	cmd.Flags().IntVar(&top, "top", 5, "entries shown per section")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		days      int
		stock     string
		window    int
		smoothing string
	)

	cmd := &cobra.Command{
		Use:   "history <fund>",
		Short: "Show holding weights over the most recent stored snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeStore, err := c.monitor()
			if err != nil {
				return err
			}
			defer closeStore()

			if stock == "" {
				h, err := m.History(cmd.Context(), args[0], days)
				if err != nil {
					return err
				}
				return report.History(cmd.OutOrStdout(), h)
			}

			tr, err := m.Trend(cmd.Context(), args[0], stock, days, window, history.Smoothing(smoothing))
			if err != nil {
				return err
			}
			return report.Trend(cmd.OutOrStdout(), tr)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "number of most recent snapshots")
	cmd.Flags().StringVar(&stock, "stock", "", "show the weight trend of one holding")
	cmd.Flags().IntVar(&window, "window", 5, "moving average window")
	cmd.Flags().StringVar(&smoothing, "smoothing", string(history.SmoothingSMA), "moving average: sma or ema")
	return cmd
}

func (c *cli) fundsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "funds",
		Short: "List configured funds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return report.Funds(cmd.OutOrStdout(), c.cfg.Funds)
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs := events.NewBroadcaster[events.RunCompleted](256)
			m, closeStore, err := c.monitor(app.WithEvents(runs))
			if err != nil {
				return err
			}
			defer closeStore()

			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			return web.NewServer(addr, c.l, m, c.cfg.Today, web.WithEvents(runs)).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (c *cli) setupCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive wizard writing a config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return setup.RunTUI(out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "fundwatch.yaml", "config file to write")
	return cmd
}

func (c *cli) date(v string) (date.Date, error) {
	if v == "" {
		return c.cfg.Today(), nil
	}
	return date.Parse(v)
}

// monitor assembles the services from the loaded config. The returned func closes the store.
func (c *cli) monitor(opts ...app.Option) (*app.Monitor, func(), error) {
	cfg := c.cfg

	store, err := snapshots.Open(cfg.Storage.Backend, filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "open snapshot store")
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			c.l.Warn("failed to close snapshot store", zap.Error(err))
		}
	}

	estimator, ok := rebalance.EstimatorByName(cfg.Analyzer.Method)
	if !ok {
		closeStore()
		return nil, nil, errors.Errorf("unknown drift estimator %q", cfg.Analyzer.Method)
	}

	var col collector.Collector = collector.NewHTTPCollector(c.l,
		collector.WithTimeout(cfg.Collector.Timeout),
		collector.WithUserAgent(cfg.Collector.UserAgent),
		collector.WithInsecureSkipVerify(cfg.Collector.InsecureSkipVerify),
		collector.WithWeightTolerance(cfg.Analyzer.WeightTolerance),
		collector.WithRetrier(retrier.New(
			retrier.WithMaxRetries(cfg.Collector.Retries),
			retrier.WithRetryIf(domain.IsRetryable),
			retrier.WithOnRetry(collector.LogRetry(c.l)),
		)),
	)
	if cfg.Collector.CacheTTL > 0 {
		col = collector.NewCachingCollector(col, cfg.Collector.CacheTTL)
	}

	m := app.NewMonitor(c.l, col, store,
		calendar.New(cfg.Holidays...),
		rebalance.NewAnalyzer(rebalance.WithEstimator(estimator)),
		cfg.Funds,
		append([]app.Option{
			app.WithBaselineLookback(cfg.Analyzer.BaselineLookback),
			app.WithClock(cfg.Today),
		}, opts...)...,
	)
	return m, closeStore, nil
}
