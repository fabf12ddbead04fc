package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

func TestMigrationsReachLatestVersion(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "schema.db")

	version, err := RunMigrations(dsn)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if version != SchemaVersion {
		t.Fatalf("version = %d, want %d", version, SchemaVersion)
	}

	version, err = RunMigrations(dsn)
	if err != nil || version != SchemaVersion {
		t.Fatalf("second run = %d, %v; want a no-op at %d", version, err, SchemaVersion)
	}
}

func sampleBudget(id string, cat core.Category) core.Budget {
	return core.Budget{
		ID:             id,
		OwnerID:        "u1",
		Category:       cat,
		Amount:         decimal.RequireFromString("250.50"),
		Period:         core.BudgetMonthly,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		AlertThreshold: 0.75,
		SyncStatus:     core.Pending,
	}
}

func TestBudgetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	overall := sampleBudget("b1", "")
	food := sampleBudget("b2", core.Food)
	if err := repo.UpsertBudgets(ctx, []core.Budget{food, overall}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.GetBudget(ctx, "b2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Amount.Equal(food.Amount) || got.Category != core.Food || got.AlertThreshold != 0.75 ||
		!got.StartDate.Equal(food.StartDate) || got.Period != core.BudgetMonthly {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	list, err := repo.ListBudgets(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || !list[0].IsOverall() {
		t.Fatalf("expected overall budget first, got %+v", list)
	}

	if err := repo.SetBudgetSyncStatus(ctx, "b1", core.Failed); err != nil {
		t.Fatalf("set status: %v", err)
	}
	failed, err := repo.FindBudgetsBySyncStatus(ctx, core.Failed)
	if err != nil || len(failed) != 1 || failed[0].ID != "b1" {
		t.Fatalf("find failed = %+v, %v", failed, err)
	}
	if err := repo.SetBudgetSyncStatus(ctx, "missing", core.Synced); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.DeleteBudget(ctx, "b2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetBudget(ctx, "b2"); !core.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
