package memory

import (
	"context"
	"errors"
	"testing"

	"spendsync/internal/core"
	"spendsync/internal/ledger"
)

func TestSetGetQueryDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.Set(ctx, "b", ledger.Document{"ownerId": "u1", "amount": "2"})
	_ = s.Set(ctx, "a", ledger.Document{"ownerId": "u1", "amount": "1"})
	_ = s.Set(ctx, "c", ledger.Document{"ownerId": "u2", "amount": "3"})

	var seen []string
	err := s.Query(ctx, "ownerId", "u1", func(id string, _ ledger.Document) error {
		seen = append(seen, id)
		return nil
	})
	if err != nil || len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected query result: %v err=%v", seen, err)
	}

	doc, err := s.Get(ctx, "c")
	if err != nil || doc["amount"] != "3" {
		t.Fatalf("unexpected get: %v err=%v", doc, err)
	}
	doc["amount"] = "mutated"
	if again, _ := s.Get(ctx, "c"); again["amount"] != "3" {
		t.Fatal("returned document aliases stored state")
	}

	if err := s.Delete(ctx, "c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "c"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 docs left, got %d", s.Len())
	}
}

func TestGetAndUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "nope")
	if !core.IsRemote(err) || !core.IsNotFound(err) {
		t.Fatalf("expected remote not-found, got %v", err)
	}
	err = s.Update(ctx, "nope", ledger.Document{"amount": "1"})
	if !core.IsRemote(err) || !core.IsNotFound(err) {
		t.Fatalf("expected remote not-found, got %v", err)
	}
}

func TestUpdateMerges(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "a", ledger.Document{"ownerId": "u1", "amount": "1"})

	if err := s.Update(ctx, "a", ledger.Document{"amount": "5"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ := s.Get(ctx, "a")
	if doc["ownerId"] != "u1" || doc["amount"] != "5" {
		t.Fatalf("unexpected merged doc: %v", doc)
	}
}

func TestQueryStopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "a", ledger.Document{"ownerId": "u1"})
	_ = s.Set(ctx, "b", ledger.Document{"ownerId": "u1"})

	stop := errors.New("stop")
	calls := 0
	err := s.Query(ctx, "ownerId", "u1", func(string, ledger.Document) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected early stop, calls=%d err=%v", calls, err)
	}
}

func TestQueryHonoursCancellation(t *testing.T) {
	s := New()
	_ = s.Set(context.Background(), "a", ledger.Document{"ownerId": "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Query(ctx, "ownerId", "u1", func(string, ledger.Document) error {
		t.Fatal("callback should not run after cancel")
		return nil
	})
	if !core.IsRemote(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}
