package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, app := newRootCmd()
	err := root.ExecuteContext(ctx)
	app.Close()
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *App) {
	app := &App{}
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}

	root := &cobra.Command{
		Use:          "botinvest",
		Short:        "Personal investment assistant: indicators, screening and a paper ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")

	root.AddCommand(
		newScreenCmd(app),
		newAnalyzeCmd(app),
		newTradeCmd(app, "buy"),
		newTradeCmd(app, "sell"),
		newPortfolioCmd(app),
		newHistoryCmd(app),
		newResetCmd(app),
		newRunCmd(app),
	)
	return root, app
}
