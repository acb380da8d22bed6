package adapter

import (
	"context"

	"github.com/marmos91/homefs/pkg/vfs"
)

// Adapter represents a front end that exposes the virtual filesystem engine and
// is managed by the homefs Server.
//
// Each adapter speaks one protocol (the JSON HTTP API today) and translates
// requests into engine operations. All adapters share the same engine, so
// sessions, quotas and the file index are consistent across front ends.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Engine injection: SetEngine() provides the shared engine
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetEngine() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// If Serve returns before context cancellation, the Server treats it as
	// a fatal error and stops all other adapters.
	//
	// Parameters:
	//   - ctx: Controls the server lifecycle. Cancellation triggers shutdown.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetEngine injects the shared virtual filesystem engine.
	//
	// Called exactly once by the Server before Serve().
	SetEngine(engine *vfs.Engine)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must be idempotent, safe to call concurrently with
	// Serve(), and must respect the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Returns 0 if the adapter has not yet started.
	Port() int
}
