package apierr

import (
	"context"
	"time"
)

type RetryOptions struct {
	MaxRetries int
	MaxDelay   time.Duration
	// OnError is called with the message of every failed attempt.
	OnError func(attempt int, msg UserMessage)
}

// WithErrorHandling runs fn, classifying every failure through h.
// Retryable failures are retried up to opts.MaxRetries times, sleeping RetryDelay in between.
// The returned error is the *AppError of the last attempt.
func WithErrorHandling[T any](
	ctx context.Context,
	h *Handler,
	fn func(context.Context) (T, error),
	opts RetryOptions,
	ectx ...Context,
) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		appErr := Wrap(err, ectx...)
		msg := h.Handle(appErr)
		if opts.OnError != nil {
			opts.OnError(attempt, msg)
		}
		if attempt > opts.MaxRetries || !appErr.Retryable() || ctx.Err() != nil {
			return zero, appErr
		}

		select {
		case <-ctx.Done():
			return zero, Wrap(ctx.Err(), ectx...)
		case <-h.clock.After(h.RetryDelay(attempt, opts.MaxDelay)):
		}
	}
}
