// Package api implements the JSON HTTP front end of homefs.
//
// Every route maps to one engine operation. Callers authenticate with the token
// returned by /login, passed as "Authorization: Bearer <token>". Replies share a
// single envelope:
//
//	{"success": true, "message": "...", "data": {...}}
//
// Domain errors carry their code in the "code" field and an HTTP status derived
// from it (QuotaExceeded -> 413, AccessDenied -> 403, ...).
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/internal/ratelimiter"
	"github.com/marmos91/homefs/pkg/metrics"
	"github.com/marmos91/homefs/pkg/vfs"
)

// Adapter serves the engine over HTTP.
type Adapter struct {
	config  Config
	engine  *vfs.Engine
	metrics metrics.APIMetrics
	limiter *ratelimiter.Limiter

	server *http.Server
	port   atomic.Int32

	// shutdownOnce guards server shutdown, shared by Stop and context cancellation
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an Adapter. Call SetEngine before Serve or Handler.
//
// Parameters:
//   - config: Listen address, timeouts and rate limits
//   - m: Request metrics, nil for no-op
//
// Panics if config validation fails.
func New(config Config, m metrics.APIMetrics) *Adapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid API config: %v", err))
	}
	if m == nil {
		m = metrics.NewNoopAPIMetrics()
	}

	a := &Adapter{
		config:  config,
		metrics: m,
		limiter: ratelimiter.New(config.RateLimit.limiter()),
	}
	a.server = &http.Server{
		Handler:      a.routes(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return a
}

// SetEngine injects the shared engine.
func (a *Adapter) SetEngine(engine *vfs.Engine) {
	a.engine = engine
	logger.Debug("API engine configured")
}

// Handler returns the routed handler, used directly by tests and embedders.
func (a *Adapter) Handler() http.Handler {
	return a.server.Handler
}

func (a *Adapter) routes() *http.ServeMux {
	mux := http.NewServeMux()

	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, a.instrument(route, h))
	}

	handle("POST /register", "/register", a.handleRegister)
	handle("POST /login", "/login", a.handleLogin)
	handle("POST /logout", "/logout", a.handleLogout)
	handle("GET /whoami", "/whoami", a.handleWhoami)

	handle("POST /create_file", "/create_file", a.handleCreate)
	handle("POST /write_file", "/write_file", a.contentOp("appended to", func(r *http.Request, token, p, text string) error {
		return a.engine.Append(r.Context(), token, p, text)
	}))
	handle("POST /overwrite_file", "/overwrite_file", a.contentOp("overwrote", func(r *http.Request, token, p, text string) error {
		return a.engine.Overwrite(r.Context(), token, p, text)
	}))
	handle("POST /truncate_file", "/truncate_file", a.contentOp("truncated", func(r *http.Request, token, p, _ string) error {
		return a.engine.Truncate(r.Context(), token, p)
	}))
	handle("POST /read_file", "/read_file", a.handleRead)
	handle("POST /execute_file", "/execute_file", a.handleExecute)
	handle("POST /delete_file", "/delete_file", a.handleDelete)
	handle("GET /ls", "/ls", a.handleList)
	handle("GET /status", "/status", a.handleStatus)

	handle("GET /list_users", "/list_users", a.handleListUsers)
	handle("DELETE /delete_user/{user_id}", "/delete_user", a.handleDeleteUser)
	handle("POST /set_quota", "/set_quota", a.handleSetQuota)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, "ok", nil)
	})

	return mux
}

// Serve listens on the configured address and blocks until ctx is cancelled
// or the listener fails.
func (a *Adapter) Serve(ctx context.Context) error {
	if a.engine == nil {
		return errors.New("API adapter has no engine")
	}

	listener, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to create API listener on %s: %w", a.config.Listen, err)
	}
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		a.port.Store(int32(addr.Port))
	}
	logger.Info("API server listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		logger.Info("API shutdown signal received: %v", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(shutdownCtx)
	}()

	if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down. Safe to call multiple times.
func (a *Adapter) Stop(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		logger.Debug("API shutdown initiated")
		if err := a.server.Shutdown(ctx); err != nil {
			a.shutdownErr = fmt.Errorf("API shutdown error: %w", err)
			logger.Warn("API shutdown did not complete: %v", err)
			return
		}
		logger.Info("API server stopped gracefully")
	})
	return a.shutdownErr
}

// Protocol returns "HTTP".
func (a *Adapter) Protocol() string {
	return "HTTP"
}

// Port returns the bound TCP port, 0 before Serve.
func (a *Adapter) Port() int {
	return int(a.port.Load())
}
