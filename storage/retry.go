package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/assetcache/interfaces"
)

// RetryPolicy bounds how network drivers retry transient failures.
// Waits grow exponentially from MinWait up to MaxWait with random jitter.
type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// DefaultRetryPolicy makes 5 attempts waiting between 4s and 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		MinWait:  4 * time.Second,
		MaxWait:  10 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		return DefaultRetryPolicy()
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinWait
	b.MaxInterval = p.MaxWait
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx)
}

// Do runs fn until it succeeds, fails with a non transient error or the
// attempts are exhausted. Missing objects are never retried.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, operation string, isTransient func(error) bool, fn func() error) error {
	p = p.withDefaults()
	attempt := 0

	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, interfaces.ErrObjectDoesNotExist) || errors.Is(err, interfaces.ErrBucketDoesNotExist) {
			return backoff.Permanent(err)
		}
		if isTransient == nil || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Info("Retrying storage operation",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			"err", err)
	})
}

// isTransientNetwork reports connection level failures every backend retries.
func isTransientNetwork(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
