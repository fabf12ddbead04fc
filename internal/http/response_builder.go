package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"spendsync/internal/core"
	applog "spendsync/internal/log"
	"spendsync/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// syncResponse reports a write that succeeded locally. RemoteError is set
// when the ledger could not be reached; the write is kept and retried later.
type syncResponse struct {
	Transaction core.Transaction `json:"transaction"`
	Synced      bool             `json:"synced"`
	RemoteError string           `json:"remoteError,omitempty"`
}

type deleteResponse struct {
	ID          string `json:"id"`
	Synced      bool   `json:"synced"`
	RemoteError string `json:"remoteError,omitempty"`
}

func newSyncResponse(res services.SyncResult) syncResponse {
	out := syncResponse{Transaction: res.Transaction, Synced: res.Synced()}
	if res.RemoteErr != nil {
		out.RemoteError = res.RemoteErr.Cause
	}
	return out
}

// syncStatusCode is 200/201 when the ledger accepted the write and 202 when
// only the local store did.
func syncStatusCode(res services.SyncResult, created bool) int {
	switch {
	case !res.Synced():
		return http.StatusAccepted
	case created:
		return http.StatusCreated
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code: bad input is 400, a local miss is
// 404, a remote failure is 502 and anything else is 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		badReq *badRequestError
		valErr *core.ValidationError
		status = http.StatusInternalServerError
		body   = errorResponse{Error: "internal error"}
	)

	switch {
	case errors.As(err, &badReq):
		status, body.Error = http.StatusBadRequest, badReq.msg
	case errors.As(err, &valErr):
		status, body.Error, body.Field = http.StatusBadRequest, valErr.Err.Error(), valErr.Field
	case core.IsRemote(err):
		status, body.Error = http.StatusBadGateway, err.Error()
	case core.IsNotFound(err):
		status, body.Error = http.StatusNotFound, err.Error()
	}

	if status >= 500 {
		applog.LogError(r.Context(), "Request failed", err, r.Method+" "+r.URL.Path, nil)
	}
	writeJSON(w, status, body)
}
