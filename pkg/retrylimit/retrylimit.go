// Package retrylimit paces and retries Discord REST calls. An adaptive limiter
// slows down after rate limits and server errors and speeds back up after a
// quiet period.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.DefaultConfig(), lim, func(ctx context.Context) error {
//	    _, err := s.ApplicationCommandBulkOverwrite(appID, "", defs, discordgo.WithContext(ctx))
//	    return err
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket whose rate adjusts to the outcome of
// requests. It is safe for concurrent use.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
	now       func() time.Time
}

// NewAdaptiveLimiter returns a limiter starting at initial requests per
// second, kept between lo and hi. Success adds stepUp once errors have been
// quiet for 10s; a throttled request multiplies the rate by stepDown.
func NewAdaptiveLimiter(initial, lo, hi, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	initial = max(initial, 1)
	lo = max(lo, 1)
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, max(1, int(initial))),
		minLimit: lo,
		maxLimit: hi,
		stepUp:   stepUp,
		stepDown: stepDown,
		now:      time.Now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastError) > 10*time.Second {
		a.adjust(a.limiter.Limit() + a.stepUp)
	}
}

func (a *AdaptiveLimiter) Throttled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = a.now()
	a.adjust(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// Limit returns the current rate in requests per second.
func (a *AdaptiveLimiter) Limit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) adjust(l rate.Limit) {
	l = min(max(l, a.minLimit), a.maxLimit)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(max(1, int(l)))
	}
}

// Class tells Do what to do with an error.
type Class int

const (
	// Retry after a backoff delay.
	Retry Class = iota
	// Throttle slows the limiter down and retries after the server's delay.
	Throttle
	// Fatal stops immediately.
	Fatal
)

// FatalError wraps errors that must not be retried.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Classify sorts Discord REST errors: rate limits throttle, server errors
// retry, other client errors and FatalError stop.
func Classify(err error) Class {
	var fatal *FatalError
	if errors.As(err, &fatal) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return Throttle
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch code := rest.Response.StatusCode; {
		case code == http.StatusTooManyRequests:
			return Throttle
		case code >= 500:
			return Retry
		case code >= 400:
			return Fatal
		}
	}
	return Retry
}

// retryAfter is the delay the server asked for, if any.
func retryAfter(err error) time.Duration {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return rl.RetryAfter
	}
	return 0
}

// Config configures Do.
type Config struct {
	// MaxAttempts bounds the number of calls. Zero means 5.
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool
	// Classify defaults to Classify.
	Classify func(error) Class
	Logger   zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2,
		Jitter:         true,
		Classify:       Classify,
		Logger:         zerolog.Nop(),
	}
}

// Do calls fn until it succeeds, fails fatally, ctx ends or the attempts run
// out. lim may be nil.
func Do(ctx context.Context, cfg Config, lim *AdaptiveLimiter, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Classify == nil {
		cfg.Classify = Classify
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Logger.Debug().Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}

		var wait time.Duration
		switch cfg.Classify(err) {
		case Fatal:
			return err
		case Throttle:
			if lim != nil {
				lim.Throttled()
			}
			wait = retryAfter(err)
			if wait <= 0 {
				wait = cfg.RateLimitDelay
			}
		default:
			wait = delay
			if cfg.Jitter && wait > 0 {
				wait += rand.N(wait/4 + 1)
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 {
				delay = min(delay, cfg.MaxDelay)
			}
		}

		cfg.Logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("request failed")
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", cfg.MaxAttempts, err)
}
