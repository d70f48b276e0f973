package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// ReconnectConfig contains configuration for exponential backoff reconnection
type ReconnectConfig struct {
	MaxRetries    int           // Maximum number of reconnection attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// RunFunc runs the pipeline once, until end of stream, error or
// cancellation.
type RunFunc func(ctx context.Context) error

// RunWithReconnect runs runFn and restarts it with exponential backoff
// after retryable failures.
//
// io.EOF and context cancellation end the loop immediately. An error whose
// category is not retryable (see ErrorCategory.Retryable) is returned as is.
// reconnects is incremented atomically on every retry.
func RunWithReconnect(ctx context.Context, runFn RunFunc, cfg ReconnectConfig, reconnects *uint32) error {
	attempt := 0
	for {
		started := time.Now()
		err := runFn(ctx)

		switch {
		case err == nil, errors.Is(err, io.EOF):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		var perr *PipelineError
		if errors.As(err, &perr) && !perr.Category.Retryable() {
			return err
		}

		// A run that stayed up for a while resets the schedule.
		if time.Since(started) > cfg.MaxRetryDelay {
			attempt = 0
		}
		attempt++
		atomic.AddUint32(reconnects, 1)

		if attempt > cfg.MaxRetries {
			return fmt.Errorf("capture: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(attempt, cfg)
		slog.Warn("capture: retrying stream",
			"attempt", attempt,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			slog.Info("capture: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at
// maxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
