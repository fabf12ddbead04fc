package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	applog "spendsync/internal/log"
)

const keepAliveInterval = 25 * time.Second

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.summary.Summary(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleSummaryStream sends a server-sent "summary" event for every change
// to the owner's last six months, starting with the current state.
func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Streaming not supported", "error", err)
		return
	}

	ctx := r.Context()
	logger := applog.FromContext(ctx)
	logger.InfoContext(ctx, "Summary stream opened", applog.FieldOwnerID, owner)
	defer logger.InfoContext(ctx, "Summary stream closed", applog.FieldOwnerID, owner)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	summaries := s.summary.Observe(ctx, owner)
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case summary, ok := <-summaries:
			if !ok {
				return
			}
			data, err := json.Marshal(summary)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to encode summary", "error", err)
				return
			}
			seq++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: summary\ndata: %s\n\n", seq, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
