package generation

import (
	"context"
	"strings"
	"sync"
)

type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "IDLE"
	}
}

type EventKind int

const (
	EventFragment EventKind = iota
	EventError
	EventEnd
)

// Event is one item of a run's stream. The last event is always either
// EventEnd or EventError.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Result is what a drained run produced. Text keeps partial output of
// failed and cancelled runs.
type Result struct {
	RunID  string
	Text   string
	Status Status
	Err    error
}

// Run is a single, non-restartable generation.
type Run struct {
	id        string
	sessionID string
	events    chan Event
	cancel    context.CancelFunc
	done      chan struct{}

	detachOnce sync.Once
	detached   chan struct{}

	mu     sync.Mutex
	status Status
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) SessionID() string {
	return r.sessionID
}

// Events is closed by the worker after the terminal event.
func (r *Run) Events() <-chan Event {
	return r.events
}

func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Cancel asks the worker to stop between fragments. Safe to call any number
// of times, including after the run finished.
func (r *Run) Cancel() {
	r.cancel()
}

// Close cancels the run and stops delivering events, for consumers that
// walk away without draining.
func (r *Run) Close() {
	r.cancel()
	r.detachOnce.Do(func() { close(r.detached) })
}

// Done is closed once the worker has exited and released the session.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Drain consumes the stream in order and calls onFragment for every
// fragment as it arrives. If onFragment fails the run is cancelled and the
// remaining events are still consumed.
func (r *Run) Drain(onFragment func(string) error) Result {
	var sb strings.Builder
	res := Result{RunID: r.id}

	for ev := range r.events {
		switch ev.Kind {
		case EventFragment:
			sb.WriteString(ev.Text)
			if onFragment == nil {
				continue
			}
			if err := onFragment(ev.Text); err != nil {
				r.Cancel()
				onFragment = nil
			}
		case EventError:
			res.Err = ev.Err
		case EventEnd:
		}
	}

	<-r.done
	res.Text = sb.String()
	res.Status = r.Status()
	return res
}
