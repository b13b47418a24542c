package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Closer represents a service that can be closed
type Closer interface {
	Close(ctx context.Context) error
}

// CloseFunc allows using a function as a Closer
type CloseFunc func(ctx context.Context) error

func (f CloseFunc) Close(ctx context.Context) error {
	return f(ctx)
}

// ShutdownHandler закрывает зарегистрированные сервисы в обратном порядке.
type ShutdownHandler struct {
	logger   *zap.Logger
	services []namedService
	mu       sync.Mutex
	timeout  time.Duration
}

type namedService struct {
	name   string
	closer Closer
}

// NewShutdownHandler creates a new shutdown handler
func NewShutdownHandler(logger *zap.Logger, timeout time.Duration) *ShutdownHandler {
	if timeout == 0 {
		timeout = 30 * time.Second // Default timeout
	}
	return &ShutdownHandler{
		logger:  logger.Named("shutdown"),
		timeout: timeout,
	}
}

// Add registers a service for shutdown
func (sh *ShutdownHandler) Add(name string, closer Closer) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.services = append(sh.services, namedService{name: name, closer: closer})
	sh.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddFunc registers a shutdown function
func (sh *ShutdownHandler) AddFunc(name string, fn func(ctx context.Context) error) {
	sh.Add(name, CloseFunc(fn))
}

// Shutdown closes all registered services (LIFO). Each one gets what is left of the
// handler timeout. Registered services are forgotten, so a second call is a no-op.
func (sh *ShutdownHandler) Shutdown(ctx context.Context) error {
	sh.mu.Lock()
	services := sh.services
	sh.services = nil
	sh.mu.Unlock()

	if len(services) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()

	sh.logger.Debug("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		done := make(chan error, 1)
		go func() { done <- svc.closer.Close(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				sh.logger.Error("Failed to shutdown service", zap.String("service", svc.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", svc.name, err))
			}
		case <-ctx.Done():
			sh.logger.Error("Shutdown timeout for service", zap.String("service", svc.name))
			errs = append(errs, fmt.Errorf("%s: shutdown timeout", svc.name))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sh.logger.Debug("Graceful shutdown completed successfully")
	return nil
}
