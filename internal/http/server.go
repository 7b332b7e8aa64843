// Package http exposes the expense service as a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"budget/internal/core"
	"budget/internal/expenses"
	"budget/internal/identity"
	applog "budget/internal/log"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
)

// ExpenseService is the part of the expense repository the API uses.
type ExpenseService interface {
	Create(ctx context.Context, p *core.Principal, d core.Draft) (core.Expense, error)
	Update(ctx context.Context, p *core.Principal, id string, patch core.Patch, opts ...expenses.MutationOption) (core.Expense, error)
	Delete(ctx context.Context, p *core.Principal, id string, opts ...expenses.MutationOption) error
	List() []core.Expense
	Get(id string) (core.Expense, error)
}

// UserDirectory is the part of the identity registry the API uses.
type UserDirectory interface {
	Signup(ctx context.Context, name, email, password string) (identity.User, error)
	Authenticate(ctx context.Context, email, password string) (identity.User, error)
	Lookup(id string) (identity.User, error)
	UpdateProfile(ctx context.Context, p *core.Principal, name, email string) (identity.User, error)
	ChangePassword(ctx context.Context, p *core.Principal, current, replacement string) error
	ResetPassword(ctx context.Context, p *core.Principal, email, replacement string) error
	ListUsers(p *core.Principal) ([]identity.PublicUser, error)
}

// SessionManager issues and checks bearer tokens.
type SessionManager interface {
	Issue(u identity.User) (string, time.Time, error)
	Verify(token string) (core.Principal, error)
	Revoke(token string) error
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Expenses ExpenseService
	Users    UserDirectory
	Sessions SessionManager
	// Ready reports whether dependencies are usable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Options tune the ambient middleware.
type Options struct {
	Logger             *applog.Logger
	RateLimitPerMinute int
	// TrustedProxies are CIDRs allowed to set X-Forwarded-For, besides loopback.
	TrustedProxies []string
	// Now is the reference clock for report windows.
	Now func() time.Time
}

type Server struct {
	http.Server

	deps     Deps
	logger   *applog.Logger
	failures *applog.StructuredLogger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	now      func() time.Time
}

// NewServer wires routes and middleware and returns a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		deps:     deps,
		logger:   opts.Logger,
		failures: applog.NewStructuredLogger(opts.Logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		now:      opts.Now,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", s.authenticated(s.handleLogout))
	mux.Handle("GET /api/auth/me", s.authenticated(s.handleMe))
	mux.Handle("PATCH /api/auth/profile", s.authenticated(s.handleUpdateProfile))
	mux.Handle("POST /api/auth/password", s.authenticated(s.handleChangePassword))
	mux.Handle("GET /api/admin/users", s.authenticated(s.handleListUsers))
	mux.Handle("POST /api/admin/users/password-reset", s.authenticated(s.handleResetPassword))

	mux.Handle("GET /api/expenses", s.authenticated(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.authenticated(s.handleCreateExpense))
	mux.Handle("GET /api/expenses/{id}", s.authenticated(s.handleGetExpense))
	mux.Handle("PATCH /api/expenses/{id}", s.authenticated(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", s.authenticated(s.handleDeleteExpense))

	mux.Handle("GET /api/reports/summary", s.authenticated(s.handleSummary))
	mux.Handle("GET /api/reports/windows/{window}", s.authenticated(s.handleWindow))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, r, http.StatusTooManyRequests, "rate limit exceeded, please retry later")
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(headers.Middleware(s.detector.Middleware(limited(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// RateLimiter exposes the limiter so its idle clients can be cleaned periodically.
func (s *Server) RateLimiter() *ratelimit.Limiter {
	return s.limiter
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeErrorMessage(w, r, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
