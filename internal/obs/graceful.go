package obs

import (
	"context"
	"errors"
	"sync"
	"time"
)

// component is one named teardown step. The name is what distinguishes
// this from an opaque func stack: cmd/scoped registers "network-node",
// "http-server", and "registry", in that order, so log lines identify
// which dependency in the chain failed or is still draining, rather than
// a bare slice index.
type component struct {
	name     string
	shutdown func() error
}

// GracefulShutdown runs registered teardown steps one at a time in LIFO
// order, bounded by a timeout. The LIFO order is load-bearing here, not
// incidental: the internal/network.Node backs the processor.Registry's
// remote children() calls, and the HTTP server answers /build (which
// calls into the registry) and /events (which reads scope.Stats()) — so
// teardown must first quiesce the registry (stop issuing new remote
// calls), then stop the HTTP server from accepting further requests
// against it, and only then close the network transport nothing else
// still depends on. cmd/scoped gets that order by registering the network
// node, the HTTP server and the registry, in that order.
type GracefulShutdown struct {
	mu         sync.Mutex
	components []component
	timeout    time.Duration
	logger     *Logger
}

// NewGracefulShutdown creates a new graceful shutdown manager.
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = DefaultLogger("shutdown")
	}
	return &GracefulShutdown{
		components: make([]component, 0),
		timeout:    timeout,
		logger:     logger,
	}
}

// Register adds a named teardown step. Components are torn down in the
// reverse of their registration order, so a component registered before
// the ones that depend on it is torn down after them.
func (g *GracefulShutdown) Register(name string, fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.components = append(g.components, component{name: name, shutdown: fn})
}

// Shutdown executes all registered teardown steps one after another in
// LIFO order, within the configured timeout. A failing step is logged and
// the remaining steps still run.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("starting graceful shutdown", Int("components", len(g.components)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(g.components) - 1; i >= 0; i-- {
			c := g.components[i]
			if err := c.shutdown(); err != nil {
				g.logger.Error("component shutdown failed", String("component", c.name), Err(err))
			}
		}
	}()

	select {
	case <-done:
		g.logger.Info("graceful shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		g.logger.Warn("graceful shutdown timed out")
		return errors.New("shutdown timeout")
	}
}
