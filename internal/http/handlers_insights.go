package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"spendsync/internal/cache"
	"spendsync/internal/insights"
	applog "spendsync/internal/log"
)

const maxReceiptBytes = 10 << 20

type insightsRequest struct {
	Question string `json:"question"`
}

type insightsResponse struct {
	Period string `json:"period,omitempty"`
	Text   string `json:"text"`
	Cached bool   `json:"cached"`
}

// handleInsights asks the model about the owner's current summary and
// budgets. Answers are cached per owner and prompt for a few minutes.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "insights are not configured"})
		return
	}
	owner, err := requireOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req insightsRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	summary, err := s.summary.Summary(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.budgetStatuses(r, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	prompt, err := insights.SummaryPrompt(summary, budgets, sanitizeInput(req.Question))
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cache.Key(owner, prompt)
	if text, ok := s.answers.Get(key); ok {
		writeJSON(w, http.StatusOK, insightsResponse{Period: summary.Period, Text: text, Cached: true})
		return
	}

	text, err := s.advisor.Generate(r.Context(), prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.answers.Set(key, text)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Insights generated",
		applog.FieldOwnerID, owner,
		applog.FieldOperation, applog.OpInsights,
		"chars", len(text))
	writeJSON(w, http.StatusOK, insightsResponse{Period: summary.Period, Text: text})
}

// handleReceipt forwards a raw image body to the model and returns its
// reading of the receipt.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "insights are not configured"})
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		writeError(w, r, badRequest("receipt must be sent as an image/* body"))
		return
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReceiptBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, badRequest("receipt larger than 10 MiB"))
			return
		}
		writeError(w, r, err)
		return
	}
	if len(image) == 0 {
		writeError(w, r, badRequest("empty receipt image"))
		return
	}

	text, err := s.advisor.AnalyzeReceipt(r.Context(), image, mediaType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insightsResponse{Text: text})
}
