package ledger

import (
	"fmt"
	"time"

	"spendsync/internal/core"
)

// Budget wire fields not shared with transactions.
const (
	FieldPeriod         = "period"
	FieldStartDate      = "startDate"
	FieldAlertThreshold = "alertThreshold"
)

// BudgetToDocument maps a budget to its wire shape, stamping lastModified.
// An overall budget has an empty category.
func BudgetToDocument(b core.Budget, now time.Time) Document {
	return Document{
		FieldOwnerID:        b.OwnerID,
		FieldCategory:       string(b.Category),
		FieldAmount:         b.Amount.String(),
		FieldPeriod:         string(b.Period),
		FieldStartDate:      b.StartDate.UnixMilli(),
		FieldAlertThreshold: b.AlertThreshold,
		FieldLastModified:   now.UnixMilli(),
	}
}

// BudgetFromDocument decodes a remote budget. The owner and a positive
// amount are required; a missing period, start date or threshold takes its
// default. The result is always SYNCED.
func BudgetFromDocument(id string, doc Document) (core.Budget, error) {
	if id == "" {
		return core.Budget{}, fmt.Errorf("id: %w", ErrMissingField)
	}
	owner, _ := doc[FieldOwnerID].(string)
	if owner == "" {
		return core.Budget{}, fmt.Errorf("%s: %w", FieldOwnerID, ErrMissingField)
	}
	amount, err := decodeAmount(doc[FieldAmount])
	if err != nil {
		return core.Budget{}, err
	}
	if !amount.IsPositive() {
		return core.Budget{}, fmt.Errorf("%s %s: %w", FieldAmount, amount, core.ErrInvalidAmount)
	}

	b := core.Budget{
		ID:             id,
		OwnerID:        owner,
		Amount:         amount,
		AlertThreshold: core.DefaultAlertThreshold,
		SyncStatus:     core.Synced,
	}
	if cat, _ := doc[FieldCategory].(string); cat != "" {
		b.Category = core.CategoryOrDefault(cat)
	}
	period, _ := doc[FieldPeriod].(string)
	b.Period = core.BudgetPeriodOrDefault(period)

	if v, ok := doc[FieldStartDate]; ok && v != nil {
		if b.StartDate, err = decodeMillis(FieldStartDate, v); err != nil {
			return core.Budget{}, err
		}
	}
	switch th := doc[FieldAlertThreshold].(type) {
	case float64:
		b.AlertThreshold = th
	case float32:
		b.AlertThreshold = float64(th)
	case int32:
		b.AlertThreshold = float64(th)
	case int64:
		b.AlertThreshold = float64(th)
	case int:
		b.AlertThreshold = float64(th)
	}
	if b.AlertThreshold <= 0 || b.AlertThreshold > 1 {
		b.AlertThreshold = core.DefaultAlertThreshold
	}
	return b, nil
}
