// Package backoff retries rate-limited remote calls with capped exponential delay.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	cenkalti "github.com/cenkalti/backoff/v5"

	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

// DefaultPolicy returns 10 attempts, 1s base, 30s cap and up to 1s jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

// SleepFunc waits for d or until ctx is done. It returns non-nil only when
// ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryObserver is notified before every backoff sleep.
type RetryObserver func(ctx context.Context, operation string, attempt int, delay time.Duration)

// Controller runs operations under a Policy.
type Controller struct {
	policy  Policy
	sleep   SleepFunc
	jitter  func(max time.Duration) time.Duration
	observe RetryObserver
	logger  *telemetry.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleep waits through fn instead of the retry timer (tests).
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithJitter replaces the random jitter source (tests).
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(c *Controller) { c.jitter = fn }
}

// WithObserver registers a hook called before each sleep.
func WithObserver(fn RetryObserver) Option {
	return func(c *Controller) { c.observe = fn }
}

// New creates a Controller. Zero policy fields fall back to DefaultPolicy.
func New(policy Policy, opts ...Option) *Controller {
	def := DefaultPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.MaxJitter < 0 {
		policy.MaxJitter = 0
	}

	c := &Controller{
		policy: policy,
		jitter: randomJitter,
		logger: telemetry.NewLogger("backoff"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delay returns the wait after failed attempt n (0-based), jitter included:
// min(base*2^n + jitter, maxDelay).
func (c *Controller) Delay(attempt int) time.Duration {
	d := c.policy.MaxDelay
	if attempt < 32 {
		if exp := c.policy.BaseDelay << uint(attempt); exp > 0 && exp < c.policy.MaxDelay {
			d = exp
		}
	}
	if c.policy.MaxJitter > 0 {
		d += c.jitter(c.policy.MaxJitter)
	}
	if d > c.policy.MaxDelay {
		d = c.policy.MaxDelay
	}
	return d
}

// schedule is the cenkalti BackOff for one Run. It logs and observes every
// delay, and waits itself when the Controller has a SleepFunc.
type schedule struct {
	c         *Controller
	ctx       context.Context
	operation string
	attempt   int
	lastErr   error
}

func (s *schedule) NextBackOff() time.Duration {
	delay := s.c.Delay(s.attempt)
	s.attempt++

	s.c.logger.WithContext(s.ctx).Warn().
		Err(s.lastErr).
		Str("operation", s.operation).
		Int("attempt", s.attempt).
		Dur("delay", delay).
		Msg("rate limited, backing off")
	if s.c.observe != nil {
		s.c.observe(s.ctx, s.operation, s.attempt, delay)
	}

	if s.c.sleep == nil {
		return delay
	}
	if err := s.c.sleep(s.ctx, delay); err != nil {
		return cenkalti.Stop
	}
	return 0
}

func (s *schedule) Reset() { s.attempt = 0 }

// Run executes fn until it succeeds, fails with a non-throttling error,
// exhausts MaxAttempts, or ctx is done.
//
// Returned errors wrap the cause together with one of resource.ErrCanceled,
// resource.ErrRateLimited or resource.ErrRemoteUnavailable.
func (c *Controller) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := Do(ctx, c, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Run for operations that return a value.
func Do[T any](ctx context.Context, c *Controller, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w: %w", operation, resource.ErrCanceled, err)
	}

	sched := &schedule{c: c, ctx: ctx, operation: operation}
	attempts := 0
	out, err := cenkalti.Retry(ctx, func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if isCanceled(ctx, err) || !IsRateLimited(err) {
			return zero, cenkalti.Permanent(err)
		}
		sched.lastErr = err
		return zero, err
	},
		cenkalti.WithBackOff(sched),
		cenkalti.WithMaxTries(uint(c.policy.MaxAttempts)),
		cenkalti.WithMaxElapsedTime(0),
	)
	if err == nil {
		return out, nil
	}

	var permanent *cenkalti.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	switch {
	case isCanceled(ctx, err):
		return zero, fmt.Errorf("%s: %w: %w", operation, resource.ErrCanceled, err)
	case !IsRateLimited(err):
		if errors.Is(err, resource.ErrRemoteUnavailable) || errors.Is(err, resource.ErrMalformedPayload) {
			return zero, fmt.Errorf("%s: %w", operation, err)
		}
		return zero, fmt.Errorf("%s: %w: %w", operation, resource.ErrRemoteUnavailable, err)
	case errors.Is(err, resource.ErrRateLimited):
		return zero, fmt.Errorf("%s: giving up after %d attempts: %w", operation, attempts, err)
	default:
		return zero, fmt.Errorf("%s: giving up after %d attempts: %w: %w", operation, attempts, resource.ErrRateLimited, err)
	}
}

// IsRateLimited reports whether err is a throttling rejection: an explicit
// resource.ErrRateLimited, an AWS API error with a throttle code, or HTTP 429.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, resource.ErrRateLimited) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := retry.DefaultThrottleErrorCodes[apiErr.ErrorCode()]; ok {
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}

	return false
}

func isCanceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
