package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sandevgo/ctxkeeper/pkg/log"
)

type Operation = func() error

type Config struct {
	MaxRetries    int
	BackoffFactor float64
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Jitter        time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxRetries:    5,
		BackoffFactor: 2.15,
		InitialDelay:  300 * time.Millisecond,
		MaxDelay:      20 * time.Second,
		Jitter:        50 * time.Millisecond,
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it immediately. Do unwraps it
// before returning.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Retrier struct {
	config *Config

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRetrier(config *Config) *Retrier {
	if config == nil {
		config = NewDefaultConfig()
	}
	return &Retrier{
		config: config,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func NewDefaultRetrier() *Retrier {
	return NewRetrier(NewDefaultConfig())
}

// Do runs op until it succeeds, returns a Permanent error, runs out of
// retries or ctx is done. Retries are logged at debug level.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var err error
	delay := r.config.InitialDelay

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt == r.config.MaxRetries {
			return err
		}

		nextDelay := r.next(delay)
		log.FromCtx(ctx).Debug().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", nextDelay).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(nextDelay):
		}

		delay = time.Duration(float64(delay) * r.config.BackoffFactor)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}
	return err
}

func (r *Retrier) next(delay time.Duration) time.Duration {
	var jitter time.Duration
	if r.config.Jitter > 0 {
		r.mu.Lock()
		jitter = time.Duration(r.rnd.Float64() * float64(r.config.Jitter))
		r.mu.Unlock()
	}
	if delay > r.config.MaxDelay {
		return r.config.MaxDelay + jitter
	}
	return delay + jitter
}
