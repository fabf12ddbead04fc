// Package ledger defines the remote copy of the transaction ledger used for
// cross-device sync, and the wire shape exchanged with it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

// Document is the on-the-wire shape of a transaction.
type Document map[string]any

// Wire field names.
const (
	FieldOwnerID         = "ownerId"
	FieldAmount          = "amount"
	FieldCategory        = "category"
	FieldType            = "type"
	FieldDescription     = "description"
	FieldDate            = "date"
	FieldReceiptURL      = "receiptUrl"
	FieldIsRecurring     = "isRecurring"
	FieldRecurringPeriod = "recurringPeriod"
	FieldTags            = "tags"
	FieldLastModified    = "lastModified"
)

// Ledger is the remote document collection keyed by transaction id.
// Every failure is reported as a *core.RemoteError.
type Ledger interface {
	// Query calls fn for every document whose field equals value. It stops
	// at the first error returned by fn or when ctx is done.
	Query(ctx context.Context, field string, value any, fn func(id string, doc Document) error) error
	Get(ctx context.Context, id string) (Document, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, id string, doc Document) error
	// Update overwrites an existing document and fails when it is absent.
	Update(ctx context.Context, id string, doc Document) error
	Delete(ctx context.Context, id string) error
}

var (
	ErrMissingField = errors.New("missing field")
	ErrBadField     = errors.New("malformed field")
)

// ToDocument maps a transaction to its wire shape, stamping lastModified.
func ToDocument(t core.Transaction, now time.Time) Document {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return Document{
		FieldOwnerID:         t.OwnerID,
		FieldAmount:          t.Amount.String(),
		FieldCategory:        string(t.Category),
		FieldType:            string(t.Type),
		FieldDescription:     t.Description,
		FieldReceiptURL:      t.ReceiptURL,
		FieldDate:            t.Date.UnixMilli(),
		FieldIsRecurring:     t.Recurring,
		FieldRecurringPeriod: string(t.RecurringPeriod),
		FieldTags:            tags,
		FieldLastModified:    now.UnixMilli(),
	}
}

// FromDocument decodes a remote document. Unknown enum strings fall back to
// their defaults; a missing id, owner, amount or date, or a non-positive
// amount, is an error. The result is always SYNCED.
func FromDocument(id string, doc Document) (core.Transaction, error) {
	if id == "" {
		return core.Transaction{}, fmt.Errorf("id: %w", ErrMissingField)
	}
	owner, _ := doc[FieldOwnerID].(string)
	if owner == "" {
		return core.Transaction{}, fmt.Errorf("%s: %w", FieldOwnerID, ErrMissingField)
	}

	amount, err := decodeAmount(doc[FieldAmount])
	if err != nil {
		return core.Transaction{}, err
	}
	if !amount.IsPositive() {
		return core.Transaction{}, fmt.Errorf("%s %s: %w", FieldAmount, amount, core.ErrInvalidAmount)
	}

	date, err := decodeMillis(FieldDate, doc[FieldDate])
	if err != nil {
		return core.Transaction{}, err
	}

	str := func(key string) string {
		s, _ := doc[key].(string)
		return s
	}
	recurring, _ := doc[FieldIsRecurring].(bool)

	return core.Transaction{
		ID:              id,
		OwnerID:         owner,
		Amount:          amount,
		Category:        core.CategoryOrDefault(str(FieldCategory)),
		Type:            core.TransactionTypeOrDefault(str(FieldType)),
		Description:     str(FieldDescription),
		Date:            date,
		ReceiptURL:      str(FieldReceiptURL),
		Recurring:       recurring,
		RecurringPeriod: core.RecurringPeriodOrDefault(str(FieldRecurringPeriod)),
		Tags:            decodeTags(doc[FieldTags]),
		SyncStatus:      core.Synced,
	}, nil
}

func decodeAmount(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%s: %w", FieldAmount, ErrMissingField)
	case string:
		d, err := decimal.NewFromString(a)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s %q: %w", FieldAmount, a, ErrBadField)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(a), nil
	case float32:
		return decimal.NewFromFloat32(a), nil
	case int:
		return decimal.NewFromInt(int64(a)), nil
	case int32:
		return decimal.NewFromInt32(a), nil
	case int64:
		return decimal.NewFromInt(a), nil
	case decimal.Decimal:
		return a, nil
	default:
		return decimal.Zero, fmt.Errorf("%s of type %T: %w", FieldAmount, v, ErrBadField)
	}
}

func decodeMillis(field string, v any) (time.Time, error) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%s: %w", field, ErrMissingField)
	case int64:
		return time.UnixMilli(d), nil
	case int32:
		return time.UnixMilli(int64(d)), nil
	case int:
		return time.UnixMilli(int64(d)), nil
	case float64:
		return time.UnixMilli(int64(d)), nil
	case string:
		ms, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s %q: %w", field, d, ErrBadField)
		}
		return time.UnixMilli(ms), nil
	case time.Time:
		return time.UnixMilli(d.UnixMilli()), nil
	default:
		return time.Time{}, fmt.Errorf("%s of type %T: %w", field, v, ErrBadField)
	}
}

// decodeTags keeps only string elements.
func decodeTags(v any) []string {
	out := []string{}
	switch tags := v.(type) {
	case []string:
		out = append(out, tags...)
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
