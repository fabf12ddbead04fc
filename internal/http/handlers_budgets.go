package http

import (
	"net/http"
	"strings"

	"spendsync/internal/core"
	applog "spendsync/internal/log"
)

// budgetRequest is the JSON body of a budget save. An empty id creates a
// budget; an empty category makes it an overall budget.
type budgetRequest struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Category       string     `json:"category"`
	Amount         flexAmount `json:"amount"`
	Period         string     `json:"period"`
	StartDate      string     `json:"startDate"`
	AlertThreshold float64    `json:"alertThreshold"`
}

type budgetResponse struct {
	Budget      core.Budget `json:"budget"`
	Synced      bool        `json:"synced"`
	RemoteError string      `json:"remoteError,omitempty"`
}

func (req budgetRequest) toBudget(s *Server) (core.Budget, error) {
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.Budget{}, &core.ValidationError{Field: "amount", Err: err}
	}
	start, err := parseDate(req.StartDate, s.loc)
	if err != nil {
		return core.Budget{}, &core.ValidationError{Field: "startDate", Err: err}
	}

	b := core.Budget{
		ID:             strings.TrimSpace(req.ID),
		OwnerID:        strings.TrimSpace(req.OwnerID),
		Amount:         amount,
		StartDate:      start,
		AlertThreshold: req.AlertThreshold,
	}
	if raw := strings.TrimSpace(req.Category); raw != "" {
		cat, ok := core.ParseCategory(raw)
		if !ok {
			return core.Budget{}, badRequest("unknown category %q", raw)
		}
		b.Category = cat
	}
	if raw := strings.TrimSpace(req.Period); raw != "" {
		period, ok := core.ParseBudgetPeriod(raw)
		if !ok {
			return core.Budget{}, badRequest("unknown budget period %q", raw)
		}
		b.Period = period
	}
	return b, nil
}

func (s *Server) budgetsConfigured(w http.ResponseWriter) bool {
	if s.budgets == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "budgets are not configured"})
		return false
	}
	return true
}

func (s *Server) handleSaveBudget(w http.ResponseWriter, r *http.Request) {
	if !s.budgetsConfigured(w) {
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := req.toBudget(s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created := b.ID == ""

	res, err := s.budgets.Save(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Budget saved",
		applog.FieldOwnerID, res.Budget.OwnerID,
		"budget_id", res.Budget.ID,
		"category", res.Budget.Label(),
		"synced", res.Synced())

	out := budgetResponse{Budget: res.Budget, Synced: res.Synced()}
	status := http.StatusOK
	switch {
	case res.RemoteErr != nil:
		out.RemoteError = res.RemoteErr.Cause
		status = http.StatusAccepted
	case created:
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// handleListBudgets returns the owner's budgets evaluated against their
// current period.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	if !s.budgetsConfigured(w) {
		return
	}
	owner, err := requireOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	statuses, err := s.budgetStatuses(r, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if !s.budgetsConfigured(w) {
		return
	}
	res, err := s.budgets.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := deleteResponse{ID: res.ID, Synced: res.RemoteErr == nil}
	status := http.StatusOK
	if res.RemoteErr != nil {
		out.RemoteError = res.RemoteErr.Cause
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

// budgetStatuses is empty when budgets are not configured.
func (s *Server) budgetStatuses(r *http.Request, owner string) ([]core.BudgetStatus, error) {
	if s.budgets == nil {
		return []core.BudgetStatus{}, nil
	}
	budgets, err := s.budgets.List(r.Context(), owner)
	if err != nil {
		return nil, err
	}
	return s.summary.BudgetStatuses(r.Context(), owner, budgets)
}
