package eviction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/pkg/log"
	"github.com/sandevgo/ctxkeeper/pkg/retry"
)

const (
	DefaultKeep      = 20
	ArtifactCategory = "auto_generated"

	maxNameClashes = 100
)

type State int

const (
	StateNormal State = iota
	StateWarned
)

func (s State) String() string {
	if s == StateWarned {
		return "WARNED"
	}
	return "NORMAL"
}

type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionSummarize
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "WARN"
	case ActionSummarize:
		return "SUMMARIZE"
	default:
		return "NONE"
	}
}

// Log is the part of a conversation the policy reads and truncates.
type Log interface {
	Snapshot() budget.Snapshot
	Session() *core.Session
	Truncate(keep int) int
	MessageCount() int
}

type Decision struct {
	Action   Action
	Usage    core.Usage
	Message  string
	Artifact string
	Path     string
	Removed  int
}

type Config struct {
	Estimator    budget.Estimator
	Thresholds   budget.Thresholds
	Keep         int
	DigestWindow int
	Files        core.ContextFileStore
	Retrier      *retry.Retrier
	Now          func() time.Time
}

// Policy tracks the warn state of one session. SUMMARIZE is not a state: it
// always leaves the machine in NORMAL.
type Policy struct {
	mu sync.Mutex

	cfg   Config
	state State

	// message count at the last successful summarize, -1 if none
	summarizedAt int
}

func NewPolicy(cfg Config) *Policy {
	if cfg.Estimator == (budget.Estimator{}) {
		cfg.Estimator = budget.DefaultEstimator()
	}
	if cfg.Thresholds == (budget.Thresholds{}) {
		cfg.Thresholds = budget.DefaultThresholds()
	}
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	if cfg.DigestWindow <= 0 {
		cfg.DigestWindow = DefaultDigestWindow
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.NewRetrier(&retry.Config{
			MaxRetries:    2,
			BackoffFactor: 2,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      time.Second,
			Jitter:        20 * time.Millisecond,
		})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Policy{cfg: cfg, summarizedAt: -1}
}

func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Check evaluates the current usage of l and applies at most one transition.
// Repeated calls at the same usage with no new messages are no-ops.
func (p *Policy) Check(ctx context.Context, l Log) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	usage := p.cfg.Estimator.Usage(l.Snapshot(), p.cfg.Thresholds)
	d := Decision{Action: ActionNone, Usage: usage}

	switch {
	case usage.AutoSummarize:
		if p.summarizedAt == l.MessageCount() {
			return d, nil
		}
		return p.summarizeLocked(ctx, l, usage)

	case usage.Warn:
		if p.state == StateWarned {
			return d, nil
		}
		p.state = StateWarned
		d.Action = ActionWarn
		d.Message = WarningMessage(usage, p.cfg.Thresholds)
		log.FromCtx(ctx).Info().
			Int("used", usage.UsedTokens).
			Int("total", usage.TotalBudget).
			Msg("context usage crossed warn threshold")
		return d, nil

	default:
		p.state = StateNormal
		return d, nil
	}
}

// Summarize forces the SUMMARIZE transition regardless of usage.
func (p *Policy) Summarize(ctx context.Context, l Log) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	usage := p.cfg.Estimator.Usage(l.Snapshot(), p.cfg.Thresholds)
	return p.summarizeLocked(ctx, l, usage)
}

// summarizeLocked writes the digest first and truncates only after the write
// succeeded. On failure the log and the state are left untouched.
func (p *Policy) summarizeLocked(ctx context.Context, l Log, usage core.Usage) (Decision, error) {
	logger := log.FromCtx(ctx)

	sess := l.Session()
	if sess == nil {
		return Decision{Action: ActionNone, Usage: usage}, nil
	}

	now := p.cfg.Now()
	name := ArtifactName(now, 1)
	digest := BuildDigest(sess, now.Format(digestTimeLayout), p.cfg.DigestWindow)

	var path string
	err := p.cfg.Retrier.Do(ctx, func() error {
		var err error
		for n := 2; ; n++ {
			path, err = p.cfg.Files.Create(ctx, digest, name, ArtifactCategory)
			if !errors.Is(err, core.ErrExists) || n > maxNameClashes {
				break
			}
			logger.Debug().Str("file", name).Msg("summary artifact name taken")
			name = ArtifactName(now, n)
		}
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("summary artifact write failed")
		}
		if errors.Is(err, core.ErrExists) || errors.Is(err, core.ErrInvalidName) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		logger.Error().Err(err).Str("session", sess.ID).Str("file", name).Msg("summarization aborted, log kept intact")
		return Decision{Action: ActionNone, Usage: usage}, &core.ArtifactWriteError{Name: name, Err: err}
	}

	removed := l.Truncate(p.cfg.Keep)
	p.state = StateNormal
	p.summarizedAt = l.MessageCount()

	logger.Info().
		Str("session", sess.ID).
		Str("file", name).
		Int("removed", removed).
		Msg("conversation summarized")

	return Decision{
		Action:   ActionSummarize,
		Usage:    usage,
		Message:  SummaryMessage(usage, name, removed),
		Artifact: name,
		Path:     path,
		Removed:  removed,
	}, nil
}

// ArtifactName names the n-th summary written in the millisecond of t, e.g.
// auto_context_20250102_150405_123.txt for n <= 1 and
// auto_context_20250102_150405_123_2.txt for n = 2.
func ArtifactName(t time.Time, n int) string {
	ts := strings.Replace(t.Format("20060102_150405.000"), ".", "_", 1)
	if n > 1 {
		ts += "_" + strconv.Itoa(n)
	}
	return "auto_context_" + ts + ".txt"
}

func WarningMessage(u core.Usage, th budget.Thresholds) string {
	auto := int(th.Auto * 100)
	return fmt.Sprintf(
		"Context filling up: %.0f%% used (%d/%d tokens)\n\n"+
			"Options:\n"+
			"1. Wait for an automatic summary at %d%%\n"+
			"2. Summarize now with /summarize\n"+
			"3. Continue, older messages will be compressed automatically\n"+
			"4. Increase the context window in settings\n",
		u.Percentage*100, u.UsedTokens, u.TotalBudget, auto,
	)
}

func SummaryMessage(u core.Usage, name string, removed int) string {
	return fmt.Sprintf(
		"Context at %.0f%% (%d/%d tokens)\n\n"+
			"Created summary file %s and compressed %d older messages.",
		u.Percentage*100, u.UsedTokens, u.TotalBudget, name, removed,
	)
}
