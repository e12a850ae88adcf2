package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"minutes/internal/logging"
	"minutes/internal/services"
)

const (
	defaultMaxAttempts  = 5
	defaultInitialDelay = time.Second
	maxDuration         = time.Duration(1<<63 - 1)
)

// Policy configures the bounded backoff applied to a single external call.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// InitialDelay is the pause after the first failed attempt; each later
	// pause doubles.
	InitialDelay time.Duration
	// MaxDelay caps any single pause. Zero leaves the doubling uncapped.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns five attempts starting from a one second delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, InitialDelay: defaultInitialDelay}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the pause that follows failed attempt n (1-based), so the
// wait before attempt k is InitialDelay * 2^(k-2).
func (p Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		if delay > maxDuration/2 {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier runs external calls under a Policy.
type Retrier struct {
	policy Policy
	logger *slog.Logger
	sleep  Sleeper
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithLogger sets the logger used for attempt outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retrier) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSleeper overrides how backoff pauses are performed (useful for tests).
func WithSleeper(sleeper Sleeper) Option {
	return func(r *Retrier) {
		if sleeper != nil {
			r.sleep = sleeper
		}
	}
}

// New builds a Retrier.
func New(policy Policy, opts ...Option) *Retrier {
	r := &Retrier{
		policy: policy,
		logger: logging.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "retry")
	return r
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy {
	if r == nil {
		return Policy{MaxAttempts: 1}
	}
	return r.policy
}

// WithoutAttemptTimeout returns a copy of r whose attempts run until ctx
// ends. Calls that bound their own duration, such as file uploads polled
// until ready, use it.
func (r *Retrier) WithoutAttemptTimeout() *Retrier {
	if r == nil {
		return nil
	}
	clone := *r
	clone.policy.AttemptTimeout = 0
	return &clone
}

// Do calls fn until it succeeds, returns a permanent failure, or the attempt
// budget runs out. Errors without a Kind are treated as transient. Exhaustion
// yields KindExternalCallExhausted wrapping the last error; cancellation of
// ctx yields KindCanceled.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		r = New(Policy{MaxAttempts: 1})
	}
	attempts := r.policy.attempts()
	logger := logging.WithContext(ctx, r.logger).With(logging.String("operation", op))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, canceled(op, err)
		}

		result, err := runAttempt(ctx, r.policy.AttemptTimeout, fn)
		if err == nil {
			if attempt > 1 {
				logger.Info("external call succeeded after retry",
					logging.String(logging.FieldEventType, "retry_succeeded"),
					logging.Int("attempt", attempt),
				)
			}
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, canceled(op, ctxErr)
		}
		if kind := services.KindOf(err); kind != "" && !kind.Retryable() {
			logger.Debug("external call failed permanently",
				logging.String(logging.FieldEventType, "retry_permanent_failure"),
				logging.Int("attempt", attempt),
				logging.ErrorKind(err),
				logging.Error(err),
			)
			return zero, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		delay := r.policy.Delay(attempt)
		logging.WarnWithContext(logger, "external call attempt failed", "retry_attempt_failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient upstream failure; backing off"),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, canceled(op, err)
		}
	}

	logging.ErrorWithContext(logger, "external call retries exhausted", "retry_exhausted",
		logging.Int("attempts", attempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check model service availability and quota"),
	)
	return zero, services.Fail(
		services.KindExternalCallExhausted, "",
		fmt.Sprintf("%s: failed after %d attempts", op, attempts),
		lastErr,
	)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func canceled(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Fail(services.KindCanceled, "", op+": deadline exceeded", err)
	}
	return services.Fail(services.KindCanceled, "", op+": canceled", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
