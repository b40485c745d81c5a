// Package shutdown runs cleanup handlers when an upscaled binary is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"upscaled/internal/pkg/logger"
)

// DefaultTimeout bounds the whole shutdown when none is given. In-flight
// upscales are allowed to finish inside it.
const DefaultTimeout = 30 * time.Second

// Handler is one named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager runs registered handlers in reverse registration order, one at a
// time, so servers that were started last stop before the clients they use.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	mu       sync.Mutex
	handlers []Handler
	once     sync.Once
	err      error
	done     chan struct{}
}

// NewManager creates a Manager. A zero timeout means DefaultTimeout.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup step.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
}

// RegisterSimple adds a cleanup step that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until SIGINT or SIGTERM, or until ctx is done, then shuts down.
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() != nil {
		m.log.Info("context done, shutting down")
	} else {
		m.log.Info("shutdown signal received")
	}
	return m.Shutdown()
}

// Shutdown runs every handler once, newest first, within the manager's
// timeout. A handler still running at the deadline is abandoned. Later calls
// return the first call's result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		handlers := append([]Handler(nil), m.handlers...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("shutting down", "handlers", len(handlers), "timeout", m.timeout.String())

		var errs []error
		for i := len(handlers) - 1; i >= 0; i-- {
			if err := m.run(ctx, handlers[i]); err != nil {
				errs = append(errs, err)
			}
		}
		m.err = errors.Join(errs...)

		if m.err != nil {
			m.log.Warn("shutdown finished with errors", "error", m.err.Error())
		} else {
			m.log.Info("shutdown complete")
		}
	})
	return m.err
}

func (m *Manager) run(ctx context.Context, h Handler) error {
	if ctx.Err() != nil {
		m.log.Warn("shutdown deadline passed, skipping handler", "name", h.Name)
		return ctx.Err()
	}

	start := time.Now()
	result := make(chan error, 1)
	go func() { result <- h.Cleanup(ctx) }()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		m.log.Error("shutdown handler failed",
			"name", h.Name,
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return errors.Join(errors.New(h.Name), err)
	}
	m.log.Debug("shutdown handler completed",
		"name", h.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
