package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spendsync/internal/backend"
	"spendsync/internal/config"
	"spendsync/internal/core"
	"spendsync/internal/insights"
	applog "spendsync/internal/log"
	"spendsync/internal/report"
	"spendsync/internal/services"
	"spendsync/internal/summary"
)

// appContext is bound into every command's Run method.
type appContext struct {
	ctx     context.Context
	globals *globals
	cfg     *config.Config
	logger  *applog.Logger
	format  report.Formatter
	out     io.Writer

	be *backend.BackendResult
}

// backend opens the store and ledger on first use.
func (a *appContext) backend() (*backend.BackendResult, error) {
	if a.be != nil {
		return a.be, nil
	}
	bc, err := backendConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	be, err := backend.NewFactory(a.logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(a.ctx, bc)
	if err != nil {
		return nil, err
	}
	a.be = be
	return be, nil
}

func (a *appContext) close() {
	if a.be == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.be.Cleanup(ctx); err != nil {
		a.logger.Warn("Backend cleanup error", "error", err)
	}
}

func (a *appContext) owner() (string, error) {
	owner := strings.TrimSpace(a.globals.Owner)
	if owner == "" {
		return "", errors.New("missing --owner (or SPENDSYNC_OWNER)")
	}
	return owner, nil
}

func (a *appContext) print(md string) error {
	out, err := report.Render(md, a.globals.Width, a.globals.Plain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.out, out)
	return err
}

func (a *appContext) printSync(res services.SyncResult) error {
	status := "synced"
	if !res.Synced() {
		status = "saved locally, ledger write failed: " + res.RemoteErr.Cause
	}
	md := a.format.Transactions("Transaction", []core.Transaction{res.Transaction})
	return a.print(md + "\n" + status + "\n")
}

type addCmd struct {
	Amount      string   `arg:"" help:"Amount, with a dot or comma separator."`
	Description string   `arg:"" help:"What the money was for."`
	Category    string   `short:"c" default:"OTHER" help:"Category name."`
	Type        string   `short:"t" default:"EXPENSE" enum:"EXPENSE,INCOME,expense,income" help:"EXPENSE or INCOME."`
	Date        string   `short:"d" help:"Date as YYYY-MM-DD (default today)."`
	Tag         []string `help:"Tag to attach; repeatable."`
	Every       string   `help:"Make this a recurring template: daily, weekly, monthly or yearly."`
}

func (c *addCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	amount, err := core.ParseAmount(c.Amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", c.Amount, err)
	}
	cat, ok := core.ParseCategory(c.Category)
	if !ok {
		return fmt.Errorf("unknown category %q", c.Category)
	}

	t := core.Transaction{
		OwnerID:     owner,
		Amount:      amount,
		Category:    cat,
		Type:        core.TransactionType(strings.ToUpper(c.Type)),
		Description: c.Description,
		Tags:        c.Tag,
	}
	if c.Date != "" {
		t.Date, err = time.ParseInLocation(time.DateOnly, c.Date, app.cfg.TimeLocation())
		if err != nil {
			return fmt.Errorf("date %q: expected YYYY-MM-DD", c.Date)
		}
	}
	if c.Every != "" {
		period, ok := core.ParseRecurringPeriod(strings.ToUpper(c.Every))
		if !ok || period == core.NoRepeat {
			return fmt.Errorf("unknown period %q", c.Every)
		}
		t.Recurring, t.RecurringPeriod = true, period
	}

	be, err := app.backend()
	if err != nil {
		return err
	}
	res, err := be.Reconciler.Create(app.ctx, t)
	if err != nil {
		return err
	}
	return app.printSync(res)
}

type listCmd struct {
	Category string `short:"c" help:"Only this category."`
}

func (c *listCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	be, err := app.backend()
	if err != nil {
		return err
	}

	var txs []core.Transaction
	if c.Category != "" {
		cat, ok := core.ParseCategory(c.Category)
		if !ok {
			return fmt.Errorf("unknown category %q", c.Category)
		}
		txs, err = be.Store.ListByCategory(app.ctx, owner, cat)
	} else {
		txs, err = be.Store.ListByOwner(app.ctx, owner)
	}
	if err != nil {
		return err
	}
	return app.print(app.format.Transactions("Transactions", txs))
}

type pullCmd struct{}

func (c *pullCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	be, err := app.backend()
	if err != nil {
		return err
	}
	res, err := be.Reconciler.PullAll(app.ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Pulled %d transactions (%d unreadable documents skipped)\n", res.Applied, res.Dropped)

	res, err = be.Budgets.Pull(app.ctx, owner)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "Pulled %d budgets (%d unreadable documents skipped)\n", res.Applied, res.Dropped)
	return err
}

type summaryCmd struct {
	JSON bool `help:"Print the summary as JSON."`
}

func (c *summaryCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	be, err := app.backend()
	if err != nil {
		return err
	}
	s, err := summary.NewEngine(be.Store, app.cfg.TimeLocation()).Summary(app.ctx, owner)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	statuses, err := app.budgetStatuses(be, owner)
	if err != nil {
		return err
	}
	md := app.format.Summary(s)
	if len(statuses) > 0 {
		md += "\n" + app.format.Budgets(statuses)
	}
	return app.print(md)
}

func (a *appContext) budgetStatuses(be *backend.BackendResult, owner string) ([]core.BudgetStatus, error) {
	budgets, err := be.Budgets.List(a.ctx, owner)
	if err != nil {
		return nil, err
	}
	return summary.NewEngine(be.Store, a.cfg.TimeLocation()).BudgetStatuses(a.ctx, owner, budgets)
}

type unsyncedCmd struct{}

func (c *unsyncedCmd) Run(app *appContext) error {
	be, err := app.backend()
	if err != nil {
		return err
	}
	txs, err := be.Reconciler.Unsynced(app.ctx)
	if err != nil {
		return err
	}
	return app.print(app.format.Transactions("Unsynced transactions", txs))
}

type retryCmd struct {
	IDs []string `arg:"" optional:"" name:"id" help:"Transactions to retry (default all unsynced)."`
}

func (c *retryCmd) Run(app *appContext) error {
	be, err := app.backend()
	if err != nil {
		return err
	}

	if len(c.IDs) == 0 {
		cfg := services.DefaultSyncProcessorConfig()
		cfg.BatchSize = app.cfg.SyncBatchSize
		cfg.Concurrency = app.cfg.SyncConcurrency
		stats := services.NewSyncProcessor(be.Reconciler, cfg).ProcessOnce(app.ctx)
		_, err = fmt.Fprintf(app.out, "Checked %d, synced %d, failed %d\n", stats.Checked, stats.Synced, stats.Failed)
		return err
	}

	var failed int
	for _, id := range c.IDs {
		res, err := be.Reconciler.Retry(app.ctx, id)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(app.out, "%s: %v\n", id, err)
		case !res.Synced():
			failed++
			fmt.Fprintf(app.out, "%s: %s\n", id, res.RemoteErr.Cause)
		default:
			fmt.Fprintf(app.out, "%s: synced\n", id)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transactions still unsynced", failed, len(c.IDs))
	}
	return nil
}

func (a *appContext) advisor() (*insights.Client, error) {
	if a.cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	return insights.NewFromAPIKey(a.ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
}

type insightsCmd struct {
	Question []string `arg:"" optional:"" help:"Question to ask about the summary."`
}

func (c *insightsCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	advisor, err := app.advisor()
	if err != nil {
		return err
	}
	be, err := app.backend()
	if err != nil {
		return err
	}
	s, err := summary.NewEngine(be.Store, app.cfg.TimeLocation()).Summary(app.ctx, owner)
	if err != nil {
		return err
	}
	statuses, err := app.budgetStatuses(be, owner)
	if err != nil {
		return err
	}
	prompt, err := insights.SummaryPrompt(s, statuses, strings.Join(c.Question, " "))
	if err != nil {
		return err
	}
	text, err := advisor.Generate(app.ctx, prompt)
	if err != nil {
		return err
	}
	return app.print(text + "\n")
}

type receiptCmd struct {
	Path string `arg:"" type:"existingfile" help:"Receipt image file."`
}

func (c *receiptCmd) Run(app *appContext) error {
	advisor, err := app.advisor()
	if err != nil {
		return err
	}
	image, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(c.Path)))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%s does not look like an image (%s)", c.Path, mimeType)
	}

	text, err := advisor.AnalyzeReceipt(app.ctx, image, mimeType)
	if err != nil {
		return err
	}
	return app.print(text + "\n")
}

type budgetCmd struct {
	Set  budgetSetCmd  `cmd:"" help:"Create or replace a budget."`
	List budgetListCmd `cmd:"" default:"1" help:"Show budgets and what is left of them."`
	Rm   budgetRmCmd   `cmd:"" help:"Delete a budget."`
}

type budgetSetCmd struct {
	Amount    string  `arg:"" help:"Spending limit per period."`
	Category  string  `short:"c" help:"Category to limit (default every expense)."`
	Period    string  `short:"p" default:"MONTHLY" enum:"WEEKLY,MONTHLY,YEARLY,weekly,monthly,yearly" help:"WEEKLY, MONTHLY or YEARLY."`
	Threshold float64 `default:"0.8" help:"Share of the limit that raises an alert."`
	Start     string  `help:"First day counted, as YYYY-MM-DD (default today)."`
	ID        string  `help:"Replace the budget with this ID."`
}

func (c *budgetSetCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	amount, err := core.ParseAmount(c.Amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", c.Amount, err)
	}
	b := core.Budget{
		ID:             c.ID,
		OwnerID:        owner,
		Amount:         amount,
		Period:         core.BudgetPeriodOrDefault(c.Period),
		AlertThreshold: c.Threshold,
	}
	if c.Category != "" {
		cat, ok := core.ParseCategory(c.Category)
		if !ok {
			return fmt.Errorf("unknown category %q", c.Category)
		}
		b.Category = cat
	}
	if c.Start != "" {
		b.StartDate, err = time.ParseInLocation(time.DateOnly, c.Start, app.cfg.TimeLocation())
		if err != nil {
			return fmt.Errorf("start %q: expected YYYY-MM-DD", c.Start)
		}
	}

	be, err := app.backend()
	if err != nil {
		return err
	}
	res, err := be.Budgets.Save(app.ctx, b)
	if err != nil {
		return err
	}
	status := "synced"
	if !res.Synced() {
		status = "saved locally, ledger write failed: " + res.RemoteErr.Cause
	}
	_, err = fmt.Fprintf(app.out, "Budget %s (%s, %s): %s\n",
		res.Budget.ID, res.Budget.Label(), app.format.Money(res.Budget.Amount), status)
	return err
}

type budgetListCmd struct{}

func (c *budgetListCmd) Run(app *appContext) error {
	owner, err := app.owner()
	if err != nil {
		return err
	}
	be, err := app.backend()
	if err != nil {
		return err
	}
	statuses, err := app.budgetStatuses(be, owner)
	if err != nil {
		return err
	}
	return app.print(app.format.Budgets(statuses))
}

type budgetRmCmd struct {
	ID string `arg:"" help:"Budget to delete."`
}

func (c *budgetRmCmd) Run(app *appContext) error {
	be, err := app.backend()
	if err != nil {
		return err
	}
	res, err := be.Budgets.Delete(app.ctx, c.ID)
	if err != nil {
		return err
	}
	if res.RemoteErr != nil {
		_, err = fmt.Fprintf(app.out, "%s: deleted locally, ledger delete failed: %s\n", c.ID, res.RemoteErr.Cause)
		return err
	}
	_, err = fmt.Fprintf(app.out, "%s: deleted\n", c.ID)
	return err
}
