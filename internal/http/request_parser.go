package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spendsync/internal/core"
)

const maxJSONBody = 1 << 20

// badRequestError reports a malformed request as opposed to invalid data.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// transactionRequest is the JSON body of create and update calls. Amount is
// accepted as a JSON number or a string, with a dot or comma separator.
type transactionRequest struct {
	OwnerID         string     `json:"ownerId"`
	Amount          flexAmount `json:"amount"`
	Category        string     `json:"category"`
	Type            string     `json:"type"`
	Description     string     `json:"description"`
	Date            string     `json:"date"`
	ReceiptURL      string     `json:"receiptUrl"`
	Recurring       bool       `json:"isRecurring"`
	RecurringPeriod string     `json:"recurringPeriod"`
	Tags            []string   `json:"tags"`
}

// flexAmount holds the raw text of a JSON number or string.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or a string")
	}
	*a = flexAmount(n)
	return nil
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("request body too large")
		case errors.Is(err, io.EOF):
			return badRequest("empty request body")
		default:
			return badRequest("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// toTransaction converts the request into a transaction. Amount problems
// are validation errors; enum fields are left for Normalize to default.
func (req transactionRequest) toTransaction(loc *time.Location) (core.Transaction, error) {
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Err: err}
	}

	date, err := parseDate(req.Date, loc)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "date", Err: err}
	}

	return core.Transaction{
		OwnerID:         strings.TrimSpace(req.OwnerID),
		Amount:          amount,
		Category:        core.Category(strings.ToUpper(strings.TrimSpace(req.Category))),
		Type:            core.TransactionType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Description:     sanitizeInput(req.Description),
		Date:            date,
		ReceiptURL:      strings.TrimSpace(req.ReceiptURL),
		Recurring:       req.Recurring,
		RecurringPeriod: core.RecurringPeriod(strings.ToUpper(strings.TrimSpace(req.RecurringPeriod))),
		Tags:            cleanTags(req.Tags),
	}, nil
}

// parseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates in loc. An empty
// string yields the zero time.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t, nil
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// cleanTags trims tags, drops empty ones and duplicates, and removes commas,
// which the local store uses as separator.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.ReplaceAll(sanitizeInput(tag), ",", ""))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// requireOwner returns the owner query parameter or a bad request error.
func requireOwner(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		return "", badRequest("missing owner query parameter")
	}
	return owner, nil
}
