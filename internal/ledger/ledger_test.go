package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

func TestDocumentRoundTrip(t *testing.T) {
	tx := core.Transaction{
		ID:              "t1",
		OwnerID:         "u1",
		Amount:          decimal.RequireFromString("42.50"),
		Category:        core.Travel,
		Type:            core.Expense,
		Description:     "train",
		Date:            time.UnixMilli(1740000000123),
		ReceiptURL:      "https://example.com/r.png",
		Recurring:       true,
		RecurringPeriod: core.Monthly,
		Tags:            []string{"work"},
		SyncStatus:      core.Pending,
	}
	now := time.UnixMilli(1750000000000)

	doc := ToDocument(tx, now)
	if doc[FieldLastModified] != now.UnixMilli() {
		t.Fatalf("lastModified not stamped: %v", doc[FieldLastModified])
	}
	if doc[FieldAmount] != "42.5" {
		t.Fatalf("unexpected amount encoding: %v", doc[FieldAmount])
	}

	got, err := FromDocument("t1", doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Amount.Equal(tx.Amount) || !got.Date.Equal(tx.Date) || got.Category != core.Travel ||
		got.RecurringPeriod != core.Monthly || !got.Recurring || got.ReceiptURL != tx.ReceiptURL {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.SyncStatus != core.Synced {
		t.Fatalf("decoded documents are SYNCED, got %s", got.SyncStatus)
	}
}

func TestToDocumentWritesEmptyFields(t *testing.T) {
	doc := ToDocument(core.Transaction{Amount: decimal.NewFromInt(1)}, time.Now())
	if v, ok := doc[FieldReceiptURL]; !ok || v != "" {
		t.Fatalf("empty receipt should be written so updates clear it, got %#v", doc[FieldReceiptURL])
	}
	if tags, ok := doc[FieldTags].([]string); !ok || tags == nil {
		t.Fatalf("tags should be an empty list, got %#v", doc[FieldTags])
	}
}

func TestFromDocumentLenientTypes(t *testing.T) {
	doc := Document{
		FieldOwnerID:         "u1",
		FieldAmount:          12.5,
		FieldDate:            int32(1000),
		FieldCategory:        "GROCERIES",
		FieldType:            "refund",
		FieldRecurringPeriod: "fortnightly",
		FieldTags:            []any{"a", 3, "b"},
	}
	got, err := FromDocument("x", doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Category != core.Other || got.Type != core.Expense || got.RecurringPeriod != core.NoRepeat {
		t.Fatalf("expected enum fallbacks, got %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected amount %s", got.Amount)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Fatalf("non-string tags should be skipped, got %v", got.Tags)
	}

	doc[FieldDate] = time.UnixMilli(5000)
	if got, err := FromDocument("x", doc); err != nil || got.Date.UnixMilli() != 5000 {
		t.Fatalf("time.Time date not accepted: %v %v", got.Date, err)
	}
}

func TestFromDocumentRejectsMalformed(t *testing.T) {
	base := func() Document {
		return Document{FieldOwnerID: "u1", FieldAmount: "5", FieldDate: int64(1)}
	}
	cases := []struct {
		name   string
		id     string
		mutate func(Document)
		want   error
	}{
		{"missing id", "", func(Document) {}, ErrMissingField},
		{"missing owner", "x", func(d Document) { delete(d, FieldOwnerID) }, ErrMissingField},
		{"missing amount", "x", func(d Document) { delete(d, FieldAmount) }, ErrMissingField},
		{"bad amount", "x", func(d Document) { d[FieldAmount] = "lots" }, ErrBadField},
		{"amount wrong type", "x", func(d Document) { d[FieldAmount] = true }, ErrBadField},
		{"zero amount", "x", func(d Document) { d[FieldAmount] = "0" }, core.ErrInvalidAmount},
		{"negative amount", "x", func(d Document) { d[FieldAmount] = -3.0 }, core.ErrInvalidAmount},
		{"missing date", "x", func(d Document) { delete(d, FieldDate) }, ErrMissingField},
		{"bad date", "x", func(d Document) { d[FieldDate] = "yesterday" }, ErrBadField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base()
			tc.mutate(d)
			_, err := FromDocument(tc.id, d)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
