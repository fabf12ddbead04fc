// Command spendctl operates on the local store and the remote ledger from
// the shell.
package main

import (
	"context"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"spendsync/internal/backend"
	"spendsync/internal/cli"
	"spendsync/internal/config"
	applog "spendsync/internal/log"
	"spendsync/internal/report"
)

// globals are shared by every command.
type globals struct {
	Owner   string        `short:"o" env:"SPENDSYNC_OWNER" help:"Owner whose data to operate on."`
	Plain   bool          `help:"Print raw Markdown instead of styled output."`
	Width   int           `default:"100" help:"Wrap width for styled output."`
	Timeout time.Duration `default:"1m" help:"Overall command timeout."`
}

var cliArgs struct {
	Globals globals `embed:""`

	Add      addCmd      `cmd:"" help:"Record a transaction and push it to the ledger."`
	List     listCmd     `cmd:"" help:"List an owner's transactions."`
	Pull     pullCmd     `cmd:"" help:"Copy the ledger's transactions and budgets for an owner into the local store."`
	Summary  summaryCmd  `cmd:"" help:"Show the financial summary for the current month."`
	Budget   budgetCmd   `cmd:"" help:"Manage spending budgets."`
	Unsynced unsyncedCmd `cmd:"" help:"List transactions not yet in the ledger."`
	Retry    retryCmd    `cmd:"" help:"Push unsynced transactions again."`
	Insights insightsCmd `cmd:"" help:"Ask the model about the current summary."`
	Receipt  receiptCmd  `cmd:"" help:"Read a receipt image with the model."`
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentCLI)

	kctx := kong.Parse(&cliArgs,
		kong.Name("spendctl"),
		kong.Description("Inspect and reconcile spendsync transactions."),
		kong.UsageOnError(),
	)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		kctx.FatalIfErrorf(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliArgs.Globals.Timeout)
	defer cancel()

	app := &appContext{
		ctx:     ctx,
		globals: &cliArgs.Globals,
		cfg:     cfg,
		logger:  logger,
		format:  report.NewFormatter(cfg.Currency),
		out:     os.Stdout,
	}

	err := kctx.Run(app)
	app.close()
	kctx.FatalIfErrorf(err)
}

func backendConfig(cfg *config.Config) (backend.Config, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return backend.Config{}, err
	}
	// One-shot commands push synchronously; the worker owns retries.
	bc.AMQPURL = ""
	return bc, nil
}
