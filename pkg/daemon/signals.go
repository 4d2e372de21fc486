package daemon

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// osSignalHandler closes its shutdown channel on SIGINT or SIGTERM
type osSignalHandler struct {
	logger *zap.Logger
}

// NewOSSignalHandler creates a new OS signal handler
func NewOSSignalHandler(logger *zap.Logger) SignalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &osSignalHandler{logger: logger}
}

// WaitForShutdown returns a channel that will be closed when shutdown is requested
func (h *osSignalHandler) WaitForShutdown() <-chan struct{} {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	shutdownCh := make(chan struct{})

	go func() {
		<-ctx.Done()
		stop()
		h.logger.Info("Received shutdown signal, initiating graceful shutdown")
		close(shutdownCh)
	}()

	return shutdownCh
}

// testSignalHandler provides a controllable signal handler for testing
type testSignalHandler struct {
	shutdownCh chan struct{}
}

// NewTestSignalHandler creates a signal handler that can be manually triggered
func NewTestSignalHandler() *testSignalHandler {
	return &testSignalHandler{
		shutdownCh: make(chan struct{}),
	}
}

// WaitForShutdown returns the shutdown channel
func (h *testSignalHandler) WaitForShutdown() <-chan struct{} {
	return h.shutdownCh
}

// TriggerShutdown manually triggers shutdown (for testing)
func (h *testSignalHandler) TriggerShutdown() {
	close(h.shutdownCh)
}
