package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/adapter"
	"github.com/marmos91/homefs/pkg/vfs"
)

// DefaultStopTimeout bounds the shutdown of adapters and background services.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("Serve() has already been called on this server instance")

// Background is a long-running task started with the server, such as the
// reconciler.
type Background interface {
	Start()
	Stop(ctx context.Context) error
}

// Server manages the lifecycle of the front-end adapters sharing one engine.
//
// Lifecycle:
//  1. Creation: New() with the engine
//  2. Registration: AddAdapter() for each front end, AddBackground() for tasks
//  3. Startup: Serve() starts everything concurrently
//  4. Shutdown: Context cancellation stops adapters in reverse order, then
//     background tasks
//
// Thread safety:
// Server is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := server.New(engine)
//	srv.AddAdapter(api.New(apiConfig, apiMetrics))
//	srv.AddBackground(reconciler)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type Server struct {
	engine *vfs.Engine

	// mu protects adapters, background and served
	mu         sync.Mutex
	adapters   []adapter.Adapter
	background []Background
	served     bool

	stopTimeout time.Duration
}

// New creates a Server around engine.
//
// Panics if engine is nil.
func New(engine *vfs.Engine) *Server {
	if engine == nil {
		panic("engine cannot be nil")
	}

	return &Server{
		engine:      engine,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout overrides the shutdown deadline. Non-positive values are ignored.
func (s *Server) SetStopTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimeout = d
}

// AddAdapter injects the engine into a and registers it.
//
// Returns an error if Serve() already ran, or if another adapter serves the
// same protocol or the same non-zero port.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()
	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetEngine(s.engine)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter", protocol)
	return nil
}

// AddBackground registers a task started by Serve and stopped after the adapters.
func (s *Server) AddBackground(b Background) error {
	if b == nil {
		return errors.New("background task cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served {
		return errors.New("cannot add background task after Serve() has been called")
	}
	s.background = append(s.background, b)
	return nil
}

// Serve starts all adapters and background tasks, then blocks until ctx is
// cancelled or an adapter fails.
//
// Returns:
//   - ctx.Err() when shutdown was triggered by the context
//   - the adapter error when an adapter failed
//   - ErrAlreadyServed on a second call
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	s.served = true
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	background := append([]Background(nil), s.background...)
	stopTimeout := s.stopTimeout
	s.mu.Unlock()

	logger.Info("Starting homefs with %d adapter(s)", len(adapters))

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			if err := a.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	for _, b := range background {
		b.Start()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	stopAll(stopCtx, adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	for i := len(background) - 1; i >= 0; i-- {
		if err := background[i].Stop(stopCtx); err != nil {
			logger.Error("Error stopping background task: %v", err)
		}
	}

	logger.Info("homefs stopped")
	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAll signals adapters to stop in reverse registration order.
func stopAll(ctx context.Context, adapters []adapter.Adapter) {
	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}
