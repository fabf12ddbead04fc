package http

import (
	"net/http"
	"strings"

	"spendsync/internal/core"
	applog "spendsync/internal/log"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := req.toTransaction(s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.reconciler.Create(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		applog.NewFields().WithTransaction(res.Transaction).WithOperation(applog.OpCreate).ToSlice()...)
	writeJSON(w, syncStatusCode(res, true), newSyncResponse(res))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := req.toTransaction(s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.ID = r.PathValue("id")

	res, err := s.reconciler.Update(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, syncStatusCode(res, false), newSyncResponse(res))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconciler.Delete(r.Context(), r.PathValue("id"))
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

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleListTransactions lists an owner's transactions, newest first,
// optionally narrowed to one category.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var txs []core.Transaction
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		cat, ok := core.ParseCategory(strings.ToUpper(raw))
		if !ok {
			writeError(w, r, badRequest("unknown category %q", raw))
			return
		}
		txs, err = s.store.ListByCategory(r.Context(), owner, cat)
	} else {
		txs, err = s.store.ListByOwner(r.Context(), owner)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleListUnsynced(w http.ResponseWriter, r *http.Request) {
	txs, err := s.reconciler.Unsynced(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.reconciler.PullAll(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Pull completed",
		applog.FieldOwnerID, owner,
		"applied", res.Applied,
		"dropped", res.Dropped)
	writeJSON(w, http.StatusOK, map[string]int{"applied": res.Applied, "dropped": res.Dropped})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconciler.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, syncStatusCode(res, false), newSyncResponse(res))
}
