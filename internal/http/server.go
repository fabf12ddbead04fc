// Package http exposes the transaction, sync, budget, summary and insights
// operations as a JSON API.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"spendsync/internal/cache"
	"spendsync/internal/core"
	applog "spendsync/internal/log"
	"spendsync/internal/middleware/ratelimit"
	"spendsync/internal/middleware/security"
	"spendsync/internal/middleware/trace"
	"spendsync/internal/services"
)

// Reconciler is the write side of the API.
type Reconciler interface {
	Create(ctx context.Context, t core.Transaction) (services.SyncResult, error)
	Update(ctx context.Context, t core.Transaction) (services.SyncResult, error)
	Delete(ctx context.Context, id string) (services.DeleteResult, error)
	PullAll(ctx context.Context, ownerID string) (services.PullResult, error)
	Unsynced(ctx context.Context) ([]core.Transaction, error)
	Retry(ctx context.Context, id string) (services.SyncResult, error)
}

// TransactionReader is the read side of the local store.
type TransactionReader interface {
	GetByID(ctx context.Context, id string) (core.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)
	ListByCategory(ctx context.Context, ownerID string, category core.Category) ([]core.Transaction, error)
}

// SummaryEngine computes one-shot and live summaries and budget statuses.
type SummaryEngine interface {
	Summary(ctx context.Context, ownerID string) (core.FinancialSummary, error)
	Observe(ctx context.Context, ownerID string) <-chan core.FinancialSummary
	BudgetStatuses(ctx context.Context, ownerID string, budgets []core.Budget) ([]core.BudgetStatus, error)
}

// BudgetService stores budgets and mirrors them to the ledger.
type BudgetService interface {
	Save(ctx context.Context, b core.Budget) (services.BudgetResult, error)
	Delete(ctx context.Context, id string) (services.DeleteResult, error)
	List(ctx context.Context, ownerID string) ([]core.Budget, error)
}

// Advisor is the generative model collaborator.
type Advisor interface {
	Generate(ctx context.Context, prompt string) (string, error)
	AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Deps are the collaborators of the server. Advisor and Budgets may be nil,
// in which case their endpoints answer 503.
type Deps struct {
	Reconciler Reconciler
	Store      TransactionReader
	Summary    SummaryEngine
	Budgets    BudgetService
	Advisor    Advisor
	Logger     *applog.Logger
	Location   *time.Location

	// AIRequestsPerMinute bounds AI calls per owner (default 10).
	AIRequestsPerMinute int
}

type Server struct {
	http.Server

	reconciler Reconciler
	store      TransactionReader
	summary    SummaryEngine
	budgets    BudgetService
	advisor    Advisor
	loc        *time.Location

	tracer      *trace.Middleware
	aiLimiter   *ratelimit.Limiter
	answers     *cache.LRUCache[string]
	cacheMgr    *cache.Manager
	cancelBase  context.CancelFunc
	shutdownOne sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Background cleanup stops on Shutdown.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	perMinute := deps.AIRequestsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		reconciler: deps.Reconciler,
		store:      deps.Store,
		summary:    deps.Summary,
		budgets:    deps.Budgets,
		advisor:    deps.Advisor,
		loc:        loc,
		tracer:     trace.NewMiddleware(logger, nil),
		aiLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: perMinute}),
		answers:    cache.NewLRUCache[string](256, 10*time.Minute),
		cacheMgr:   cache.NewManager(),
		cancelBase: cancel,
	}
	s.cacheMgr.Register(s.answers)
	s.cacheMgr.StartCleanup(baseCtx, time.Minute)
	go s.aiLimiter.RunCleanup(baseCtx, 5*time.Minute)

	mux := http.NewServeMux()
	limitAI := s.aiLimiter.Middleware(ownerKey, nil)

	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/unsynced", s.handleListUnsynced)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /api/sync/pull", s.handlePull)
	mux.HandleFunc("POST /api/sync/retry/{id}", s.handleRetry)

	mux.HandleFunc("POST /api/budgets", s.handleSaveBudget)
	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/summary/stream", s.handleSummaryStream)

	mux.Handle("POST /api/insights", limitAI(http.HandlerFunc(s.handleInsights)))
	mux.Handle("POST /api/receipts", limitAI(http.HandlerFunc(s.handleReceipt)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// Shutdown ends live streams and background cleanup, then drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOne.Do(func() {
		s.cancelBase()
		s.cacheMgr.Wait()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownerKey keys rate limits by owner, falling back to the client address.
func ownerKey(r *http.Request) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + trace.ClientIP(r)
}
