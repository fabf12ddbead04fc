package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendsync/internal/core"
)

// SeriesTagPrefix marks occurrences generated from a recurring template.
const SeriesTagPrefix = "series:"

// SeriesTag returns the tag carried by every occurrence of a template.
func SeriesTag(templateID string) string {
	return SeriesTagPrefix + templateID
}

// RecurringStore is the part of the transaction store the processor reads.
type RecurringStore interface {
	ListRecurring(ctx context.Context) ([]core.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)
}

// TransactionCreator creates transactions with the usual sync rules.
type TransactionCreator interface {
	Create(ctx context.Context, t core.Transaction) (SyncResult, error)
}

// RecurringProcessor materialises occurrences of recurring templates.
// A template is any transaction flagged recurring with a period other than
// NONE. The template itself counts as the first occurrence.
type RecurringProcessor struct {
	store   RecurringStore
	creator TransactionCreator
}

func NewRecurringProcessor(store RecurringStore, creator TransactionCreator) *RecurringProcessor {
	return &RecurringProcessor{store: store, creator: creator}
}

// ProcessAll creates due occurrences for every owner.
func (p *RecurringProcessor) ProcessAll(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.creator == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.store.ListRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recurring templates: %w", err)
	}

	byOwner := make(map[string][]core.Transaction)
	var owners []string
	for _, t := range templates {
		if _, ok := byOwner[t.OwnerID]; !ok {
			owners = append(owners, t.OwnerID)
		}
		byOwner[t.OwnerID] = append(byOwner[t.OwnerID], t)
	}

	total := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := p.process(ctx, owner, byOwner[owner], now)
		total += n
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process recurring templates",
				"owner_id", owner,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"created", total,
		"templates", len(templates),
		"processing_date", now.Format("2006-01-02"))

	return total, nil
}

// ProcessDue creates due occurrences for a single owner.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, ownerID string, now time.Time) (int, error) {
	if p.store == nil || p.creator == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	all, err := p.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	var templates []core.Transaction
	for _, t := range all {
		if isTemplate(t) {
			templates = append(templates, t)
		}
	}
	return p.processWith(ctx, templates, all, now)
}

func (p *RecurringProcessor) process(ctx context.Context, ownerID string, templates []core.Transaction, now time.Time) (int, error) {
	all, err := p.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return p.processWith(ctx, templates, all, now)
}

func (p *RecurringProcessor) processWith(ctx context.Context, templates, all []core.Transaction, now time.Time) (int, error) {
	created := 0
	for _, tmpl := range templates {
		checker, err := GetDuenessChecker(tmpl.RecurringPeriod)
		if err != nil {
			slog.WarnContext(ctx, "Skipping recurring template", "id", tmpl.ID, "error", err)
			continue
		}

		last := latestOccurrence(tmpl, all)
		if !checker.IsDue(last, now, tmpl.Date) {
			continue
		}

		res, err := p.creator.Create(ctx, occurrenceOf(tmpl, now))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from recurring template",
				"template_id", tmpl.ID,
				"description", tmpl.Description,
				"error", err)
			continue
		}

		created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tmpl.ID,
			"id", res.Transaction.ID,
			"period", tmpl.RecurringPeriod,
			"synced", res.Synced())
	}
	return created, nil
}

func isTemplate(t core.Transaction) bool {
	return t.Recurring && t.RecurringPeriod != core.NoRepeat
}

// latestOccurrence returns the date of the newest transaction in the
// template's series, or the template's own date.
func latestOccurrence(tmpl core.Transaction, all []core.Transaction) time.Time {
	last := tmpl.Date
	tag := SeriesTag(tmpl.ID)
	for _, t := range all {
		if t.HasTag(tag) && t.Date.After(last) {
			last = t.Date
		}
	}
	return last
}

func occurrenceOf(tmpl core.Transaction, now time.Time) core.Transaction {
	tags := make([]string, 0, len(tmpl.Tags)+1)
	tags = append(tags, tmpl.Tags...)
	tags = append(tags, SeriesTag(tmpl.ID))

	return core.Transaction{
		OwnerID:         tmpl.OwnerID,
		Amount:          tmpl.Amount,
		Category:        tmpl.Category,
		Type:            tmpl.Type,
		Description:     tmpl.Description,
		Date:            now,
		RecurringPeriod: core.NoRepeat,
		Tags:            tags,
	}
}
