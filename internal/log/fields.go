package log

import (
	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldSubcomponent = "subcomponent"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldOwnerID      = "owner_id"
	FieldID           = "id"
	FieldAmount       = "amount"
	FieldCategory     = "category"
	FieldType         = "type"
	FieldSyncStatus   = "sync_status"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentWorker     = "worker"
	ComponentCLI        = "cli"
	ComponentReconciler = "reconciler"
	ComponentStorage    = "storage"
	ComponentLedger     = "ledger"
	ComponentAMQP       = "amqp"
	ComponentInsights   = "insights"
	ComponentBackend    = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpPull     = "pull"
	OpRetry    = "retry"
	OpSummary  = "summary"
	OpInsights = "insights"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds the identifying fields of t. Descriptions are left out
// of logs.
func (f LogFields) WithTransaction(t core.Transaction) LogFields {
	f[FieldID] = t.ID
	f[FieldOwnerID] = t.OwnerID
	f = f.WithAmount(t.Amount)
	f[FieldCategory] = string(t.Category)
	f[FieldType] = string(t.Type)
	f[FieldSyncStatus] = string(t.SyncStatus)
	return f
}

// WithAmount adds an amount rendered with two decimals.
func (f LogFields) WithAmount(d decimal.Decimal) LogFields {
	f[FieldAmount] = d.StringFixed(2)
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
