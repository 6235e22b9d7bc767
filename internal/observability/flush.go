package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry closes the given resources (cache connections, the engine)
// in order, then syncs the logger. Metrics are pull-based and need no flush.
// Call during graceful shutdown after in-flight requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("flush aborted: %w", ctx.Err()))
			break
		}
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", c, err))
		}
	}
	if logger != nil {
		// Sync on stdout/stderr returns EINVAL on some platforms; only file sinks matter.
		if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}

func isIgnorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
