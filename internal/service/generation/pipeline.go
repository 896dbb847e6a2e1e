package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/pkg/log"
	"github.com/sandevgo/ctxkeeper/pkg/retry"
)

const (
	DefaultBuffer        = 64
	DefaultReadyInterval = 500 * time.Millisecond
)

var errDetached = errors.New("consumer detached")

// Pipeline runs one backend generation per session at a time. Different
// sessions stream independently; the backend may still serialize them.
type Pipeline struct {
	backend core.Backend
	buffer  int

	mu     sync.Mutex
	active map[string]*Run
}

func NewPipeline(backend core.Backend, buffer int) *Pipeline {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Pipeline{
		backend: backend,
		buffer:  buffer,
		active:  make(map[string]*Run),
	}
}

// WaitReady polls the backend until it reports ready or ctx expires.
func (p *Pipeline) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	r := retry.NewRetrier(&retry.Config{
		MaxRetries:    1 << 20,
		BackoffFactor: 1,
		InitialDelay:  interval,
		MaxDelay:      interval,
	})

	logger := log.FromCtx(ctx)
	err := r.Do(ctx, func() error {
		err := p.backend.Ready(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("backend not ready yet")
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrBackendUnready, err)
	}
	return nil
}

// Busy reports whether sessionID has a generation in flight.
func (p *Pipeline) Busy(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[sessionID]
	return ok
}

// Ready reports whether the backend can take a generation now. A loading
// backend yields core.ErrBackendUnready.
func (p *Pipeline) Ready(ctx context.Context) error {
	err := p.backend.Ready(ctx)
	if err == nil || errors.Is(err, core.ErrBackendUnready) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrBackendUnready, err)
}

// Stream starts a generation on a dedicated goroutine and returns at once.
// It fails with core.ErrSessionBusy if the session already streams and with
// core.ErrBackendUnready if the backend is still loading. The caller must
// either drain Events until closed or call Close.
func (p *Pipeline) Stream(ctx context.Context, sessionID, prompt string, params core.GenerationParams) (*Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:        uuid.NewString(),
		sessionID: sessionID,
		events:    make(chan Event, p.buffer),
		cancel:    cancel,
		done:      make(chan struct{}),
		detached:  make(chan struct{}),
		status:    StatusIdle,
	}

	p.mu.Lock()
	if _, busy := p.active[sessionID]; busy {
		p.mu.Unlock()
		cancel()
		return nil, core.ErrSessionBusy
	}
	p.active[sessionID] = r
	p.mu.Unlock()

	if err := p.Ready(ctx); err != nil {
		p.release(r)
		cancel()
		return nil, err
	}

	r.setStatus(StatusRunning)
	go p.work(runCtx, r, prompt, params)

	return r, nil
}

func (p *Pipeline) release(r *Run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[r.sessionID] == r {
		delete(p.active, r.sessionID)
	}
}

func (p *Pipeline) work(ctx context.Context, r *Run, prompt string, params core.GenerationParams) {
	logger := log.FromCtx(ctx).With().Str("run", r.id).Str("session", r.sessionID).Logger()
	started := time.Now()
	fragments := 0

	defer func() {
		p.release(r)
		r.cancel()
		close(r.done)
	}()
	defer close(r.events)

	refused := false
	err := p.backend.Generate(ctx, prompt, params, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		// refuse fragments once cancelled so delivered output stays a prefix
		if err := ctx.Err(); err != nil {
			refused = true
			return err
		}
		select {
		case r.events <- Event{Kind: EventFragment, Text: fragment}:
			fragments++
			return nil
		case <-ctx.Done():
			refused = true
			return ctx.Err()
		case <-r.detached:
			refused = true
			return errDetached
		}
	})
	if err == nil && refused {
		err = ctx.Err()
		if err == nil {
			err = errDetached
		}
	}

	// a clean return with every fragment delivered completes the run even
	// if ctx expired right after
	var terminal Event
	switch {
	case err == nil:
		r.setStatus(StatusCompleted)
		terminal = Event{Kind: EventEnd}
		logger.Debug().Int("fragments", fragments).Dur("took", time.Since(started)).Msg("generation completed")
	case ctx.Err() != nil:
		r.setStatus(StatusCancelled)
		terminal = Event{Kind: EventError, Err: core.ErrCancelled}
		logger.Info().Int("fragments", fragments).Msg("generation cancelled")
	default:
		r.setStatus(StatusFailed)
		terminal = Event{Kind: EventError, Err: &core.BackendError{Err: err}}
		logger.Error().Err(err).Int("fragments", fragments).Msg("generation failed")
	}

	select {
	case r.events <- terminal:
	case <-r.detached:
	}
}
