package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"BotInvest/internal/collector"
	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
	"BotInvest/internal/observability"
	"BotInvest/internal/report"
	"BotInvest/internal/scheduler"
	"BotInvest/internal/screener"
)

func newScreenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "screen [symbols...]",
		Short: "Screen the universe and print ranked long-term, short-term and watch buckets",
		Example: `  botinvest screen
  botinvest screen AAPL MSFT HK.00700`,
		RunE: func(cmd *cobra.Command, args []string) error {
			universe := app.Config.Screener.Universe
			if len(args) > 0 {
				universe = args
			}
			res, err := app.Screener.Run(cmd.Context(), collector.NormalizeUniverse(universe))
			if res == nil {
				return err
			}
			if recErr := app.Recorder.RecordScreening(cmd.Context(), res); recErr != nil {
				app.Logger.Warn("record screening", zap.Error(recErr))
			}
			fmt.Fprint(cmd.OutOrStdout(), report.FormatScreening(res))
			return err
		},
	}
}

func newAnalyzeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Show indicators and rule matches for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Screener.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.FormatAnalysis(a))
			return nil
		},
	}
}

func newTradeCmd(app *App, side string) *cobra.Command {
	return &cobra.Command{
		Use:     side + " <symbol> <quantity> <price>",
		Short:   "Record a " + side + " through the execution backend",
		Example: "  botinvest " + side + " AAPL 10 150.25",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := collector.NormalizeTicker(args[0])
			qty, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: quantity %q", ledger.ErrInvalidOrder, args[1])
			}
			price, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("%w: price %q", ledger.ErrInvalidOrder, args[2])
			}

			var t model.Trade
			if side == "buy" {
				t, err = app.Ledger.Buy(cmd.Context(), symbol, qty, price)
			} else {
				t, err = app.Ledger.Sell(cmd.Context(), symbol, qty, price)
			}

			var warn *ledger.PersistenceWarning
			switch {
			case errors.As(err, &warn):
				fmt.Fprintln(cmd.OutOrStdout(), report.FormatTrade(t))
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", warn)
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.FormatTrade(t))
			fmt.Fprintf(cmd.OutOrStdout(), "cash %s\n", app.Ledger.Cash().StringFixed(2))
			return nil
		},
	}
}

func newPortfolioCmd(app *App) *cobra.Command {
	var overrides map[string]string
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Value open positions at the latest close",
		Example: `  botinvest portfolio
  botinvest portfolio --price AAPL=190.5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var symbols []string
			for _, p := range app.Ledger.Positions() {
				if _, ok := overrides[p.Symbol]; !ok {
					symbols = append(symbols, p.Symbol)
				}
			}
			prices, errs := app.Collector.LatestCloses(cmd.Context(), symbols)
			for _, err := range errs {
				app.Logger.Warn("latest close unavailable", zap.Error(err))
			}
			for sym, raw := range overrides {
				p, err := decimal.NewFromString(raw)
				if err != nil {
					return fmt.Errorf("price for %s: %w", sym, err)
				}
				prices[collector.NormalizeTicker(sym)] = p
			}

			v := app.Ledger.Valuation(prices)
			if err := app.Recorder.RecordEquity(cmd.Context(), &v); err != nil {
				app.Logger.Warn("record equity", zap.Error(err))
			}
			fmt.Fprint(cmd.OutOrStdout(), report.FormatPortfolio(&v))
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&overrides, "price", nil, "override the price of a symbol (SYMBOL=PRICE)")
	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded trades, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			trades := app.Ledger.History()
			if symbol != "" {
				want := collector.NormalizeTicker(symbol)
				var filtered []model.Trade
				for _, t := range trades {
					if t.Symbol == want {
						filtered = append(filtered, t)
					}
				}
				trades = filtered
			}
			fmt.Fprint(cmd.OutOrStdout(), report.FormatHistory(trades))
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "only show trades for this symbol")
	return cmd
}

func newResetCmd(app *App) *cobra.Command {
	var (
		cash string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all positions and trades and start over with fresh cash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset discards the whole ledger; pass --yes to confirm")
			}
			amount, err := app.Config.StartingCash()
			if err != nil {
				return err
			}
			if cash != "" {
				if amount, err = decimal.NewFromString(cash); err != nil {
					return fmt.Errorf("%w: cash %q", ledger.ErrInvalidOrder, cash)
				}
			}

			var warn *ledger.PersistenceWarning
			if err := app.Ledger.Reset(cmd.Context(), amount); err != nil && !errors.As(err, &warn) {
				return err
			} else if warn != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", warn)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger reset, cash %s\n", amount.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().StringVar(&cash, "cash", "", "starting cash (default from config)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run scheduled screening and equity snapshots until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := app.Config
			log := app.Logger

			sched := scheduler.NewScheduler(ctx, app.Screener, app.Collector, app.Ledger, app.Recorder,
				collector.NormalizeUniverse(cfg.Screener.Universe), app.Metrics, log)
			sched.OnScreening = func(res *screener.Result) {
				fmt.Fprint(cmd.OutOrStdout(), report.FormatScreening(res))
			}
			if err := sched.RegisterAll(cfg.Schedule.ScreenCron, cfg.Schedule.SnapshotCron); err != nil {
				return err
			}

			var srv *http.Server
			if cfg.Metrics.Addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", observability.Handler(app.Registry))
				srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					log.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error("metrics server", zap.Error(err))
					}
				}()
			}

			sched.Start()
			if cfg.Schedule.RunOnStart {
				log.Info("run_on_start enabled, executing screening now")
				go func() {
					if _, err := sched.RunScreeningNow(); err != nil {
						log.Error("initial screening", zap.Error(err))
					}
				}()
			}

			log.Info("botinvest is running, press Ctrl+C to stop",
				zap.String("executor", app.Ledger.ExecutorName()),
				zap.String("screen_cron", cfg.Schedule.ScreenCron),
				zap.String("snapshot_cron", cfg.Schedule.SnapshotCron))
			<-ctx.Done()

			log.Info("shutdown signal received, stopping")
			sched.Stop()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("metrics server shutdown", zap.Error(err))
				}
			}
			return nil
		},
	}
}
