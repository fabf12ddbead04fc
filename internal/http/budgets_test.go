package http

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"spendsync/internal/core"
)

func TestBudgetsUnconfigured(t *testing.T) {
	srv := newTestServer(t, &fakeReconciler{}, nil)
	if rr := do(srv, http.MethodGet, "/api/budgets?owner=u1", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestSaveBudget(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		budgets := &fakeBudgets{}
		srv := newServerWithBudgets(t, &fakeReconciler{}, nil, budgets)

		rr := do(srv, http.MethodPost, "/api/budgets",
			`{"ownerId":"u1","category":"food","amount":"150,50","period":"weekly","startDate":"2025-03-01"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
		}
		got := decode[budgetResponse](t, rr)
		if !got.Synced || got.Budget.Category != core.Food || got.Budget.Period != core.BudgetWeekly {
			t.Errorf("response = %+v", got)
		}
		if got.Budget.Amount.String() != "150.5" || got.Budget.AlertThreshold != core.DefaultAlertThreshold {
			t.Errorf("amount/threshold = %s/%v", got.Budget.Amount, got.Budget.AlertThreshold)
		}
	})

	t.Run("overall and unsynced", func(t *testing.T) {
		budgets := &fakeBudgets{remoteErr: core.NewRemoteError("set", errors.New("offline"))}
		srv := newServerWithBudgets(t, &fakeReconciler{}, nil, budgets)

		rr := do(srv, http.MethodPost, "/api/budgets", `{"id":"b1","ownerId":"u1","amount":900}`)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rr.Code)
		}
		got := decode[budgetResponse](t, rr)
		if got.Synced || got.RemoteError == "" || !got.Budget.IsOverall() {
			t.Errorf("response = %+v", got)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		srv := newServerWithBudgets(t, &fakeReconciler{}, nil, &fakeBudgets{})
		for _, body := range []string{
			`{"ownerId":"u1","amount":"abc"}`,
			`{"ownerId":"u1","amount":"10","category":"yachts"}`,
			`{"ownerId":"u1","amount":"10","period":"hourly"}`,
			`{"ownerId":"u1","amount":"10","alertThreshold":2}`,
			`{"amount":"10"}`,
		} {
			if rr := do(srv, http.MethodPost, "/api/budgets", body); rr.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", body, rr.Code)
			}
		}
	})
}

func TestListBudgetsReturnsStatuses(t *testing.T) {
	budgets := &fakeBudgets{}
	srv := newServerWithBudgets(t, &fakeReconciler{}, nil, budgets)
	do(srv, http.MethodPost, "/api/budgets", `{"ownerId":"u1","category":"TRAVEL","amount":"300"}`)
	do(srv, http.MethodPost, "/api/budgets", `{"ownerId":"u2","amount":"300"}`)

	rr := do(srv, http.MethodGet, "/api/budgets?owner=u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[[]core.BudgetStatus](t, rr)
	if len(got) != 1 || got[0].Budget.Category != core.Travel || got[0].Remaining.String() != "300" {
		t.Errorf("statuses = %+v", got)
	}

	if rr := do(srv, http.MethodGet, "/api/budgets", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("missing owner: status = %d, want 400", rr.Code)
	}
}

func TestDeleteBudget(t *testing.T) {
	srv := newServerWithBudgets(t, &fakeReconciler{}, nil, &fakeBudgets{})
	rr := do(srv, http.MethodDelete, "/api/budgets/b1", "")
	if got := decode[deleteResponse](t, rr); rr.Code != http.StatusOK || got.ID != "b1" || !got.Synced {
		t.Errorf("delete = %d %+v", rr.Code, got)
	}
}

func TestInsightsPromptCarriesBudgets(t *testing.T) {
	adv := &fakeAdvisor{}
	budgets := &fakeBudgets{}
	srv := newServerWithBudgets(t, &fakeReconciler{}, adv, budgets)
	do(srv, http.MethodPost, "/api/budgets", `{"ownerId":"u1","category":"FOOD","amount":"200"}`)

	if rr := do(srv, http.MethodPost, "/api/insights?owner=u1", ""); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if !strings.Contains(adv.prompt, "My budgets:") || !strings.Contains(adv.prompt, "remaining 200.00") {
		t.Errorf("prompt lacks budgets:\n%s", adv.prompt)
	}
}
