package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/sandevgo/ctxkeeper/internal/service/eviction"
	"github.com/sandevgo/ctxkeeper/internal/service/generation"
	"github.com/sandevgo/ctxkeeper/internal/service/prompt"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

type Generator interface {
	Ready(ctx context.Context) error
	Stream(ctx context.Context, sessionID, prompt string, params core.GenerationParams) (*generation.Run, error)
}

// TurnResult is what one user turn produced. Notices carry budget warnings,
// summary announcements and non-fatal persistence failures, in order.
type TurnResult struct {
	generation.Result
	Notices []string
	Usage   core.Usage
}

type session struct {
	store  *conversation.Store
	policy *eviction.Policy
	turn   sync.Mutex
}

// Agent drives turns for any number of sessions. The session registry is
// shared and guarded by mu; each session serializes its own turns.
type Agent struct {
	appCfg    *config.AppConfig
	repo      core.SessionRepository
	files     core.ContextFileStore
	generator Generator

	estimator  budget.Estimator
	thresholds budget.Thresholds
	assembler  *prompt.Assembler

	mu       sync.Mutex
	sessions map[string]*session
}

func NewAgent(
	appCfg *config.AppConfig,
	repo core.SessionRepository,
	files core.ContextFileStore,
	generator Generator,
) *Agent {
	est := budget.NewEstimator(appCfg.CharsPerToken, appCfg.MessageOverhead)
	return &Agent{
		appCfg:     appCfg,
		repo:       repo,
		files:      files,
		generator:  generator,
		estimator:  est,
		thresholds: budget.Thresholds{Warn: appCfg.WarnThreshold, Auto: appCfg.AutoThreshold},
		assembler:  prompt.NewAssembler(est, appCfg.ResponseSafetyMargin),
		sessions:   make(map[string]*session),
	}
}

func (a *Agent) Estimator() budget.Estimator {
	return a.estimator
}

func (a *Agent) newSession() *session {
	return &session{
		store: conversation.NewStore(conversation.Config{
			Params:        a.appCfg.DefaultParams(),
			Estimator:     a.estimator,
			Saver:         a.repo,
			AutoSaveEvery: a.appCfg.AutoSaveEvery,
		}),
		policy: eviction.NewPolicy(eviction.Config{
			Estimator:    a.estimator,
			Thresholds:   a.thresholds,
			Keep:         a.appCfg.KeepMessages,
			DigestWindow: a.appCfg.DigestWindow,
			Files:        a.files,
		}),
	}
}

// NewSession starts and registers a fresh session.
func (a *Agent) NewSession(ctx context.Context, params core.GenerationParams) string {
	s := a.newSession()
	id := s.store.CreateSession(params)

	a.mu.Lock()
	a.sessions[id] = s
	a.mu.Unlock()

	log.FromCtx(ctx).Info().Str("session", id).Msg("session created")
	return id
}

// Open loads a persisted session into the registry. Opening an already
// registered session is a no-op.
func (a *Agent) Open(ctx context.Context, id string) error {
	a.mu.Lock()
	_, ok := a.sessions[id]
	a.mu.Unlock()
	if ok {
		return nil
	}

	stored, err := a.repo.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	s := a.newSession()
	s.store.Load(stored)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[id]; !ok {
		a.sessions[id] = s
	}

	log.FromCtx(ctx).Info().Str("session", id).Int("messages", len(stored.Messages)).Msg("session loaded")
	return nil
}

// Close saves the session and drops it from the registry.
func (a *Agent) Close(ctx context.Context, id string) error {
	s, err := a.get(id)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
	return nil
}

func (a *Agent) get(id string) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return s, nil
}

// Store exposes the conversation of a registered session for read access.
func (a *Agent) Store(id string) (*conversation.Store, error) {
	s, err := a.get(id)
	if err != nil {
		return nil, err
	}
	return s.store, nil
}

func (a *Agent) Save(ctx context.Context, id string) error {
	s, err := a.get(id)
	if err != nil {
		return err
	}
	return s.store.Save(ctx)
}

// Usage is the read-only budget view of a session.
func (a *Agent) Usage(id string) (core.Usage, error) {
	s, err := a.get(id)
	if err != nil {
		return core.Usage{}, err
	}
	return a.estimator.Usage(s.store.Snapshot(), a.thresholds), nil
}

// Turn runs one exchange: append the user message, apply the eviction
// policy, assemble the prompt, stream the reply to onFragment and append it
// if generation completed. A turn on a session that is already in a turn
// fails with core.ErrSessionBusy before anything is appended. A turn that
// fails before streaming starts leaves no user message behind, so it can be
// retried as is.
func (a *Agent) Turn(ctx context.Context, id, input string, onFragment func(string) error) (TurnResult, error) {
	s, err := a.get(id)
	if err != nil {
		return TurnResult{}, err
	}
	if !s.turn.TryLock() {
		return TurnResult{}, core.ErrSessionBusy
	}
	defer s.turn.Unlock()

	ctx = log.WithSession(ctx, id)
	logger := log.FromCtx(ctx)

	if err := a.generator.Ready(ctx); err != nil {
		return TurnResult{}, err
	}

	var res TurnResult
	notify := res.persistenceNotice

	notify(s.store.Append(ctx, core.RoleUser, input))

	a.refreshContext(ctx, s.store)
	decision, err := s.policy.Check(ctx, s.store)
	res.Notices = append(res.Notices, a.applyDecision(ctx, s.store, decision, err)...)

	res.Result, err = a.stream(ctx, id, s.store, s.store.Messages(0), onFragment)
	if err != nil {
		if _, ok := s.store.RemoveLast(core.RoleUser); ok {
			logger.Debug().Err(err).Msg("turn aborted before streaming, user message rolled back")
		}
		return res, err
	}

	if res.Status == generation.StatusCompleted {
		notify(s.store.Append(ctx, core.RoleAssistant, res.Text))
	} else {
		logger.Warn().Str("status", res.Status.String()).Err(res.Err).Msg("reply not recorded")
	}

	res.Usage = a.estimator.Usage(s.store.Snapshot(), a.thresholds)
	return res, nil
}

// Regenerate streams a new reply to the log as it stood before the trailing
// assistant message. The old reply is replaced only if the new run
// completed. A log that does not end with a reply fails with core.ErrNoReply.
func (a *Agent) Regenerate(ctx context.Context, id string, onFragment func(string) error) (TurnResult, error) {
	s, err := a.get(id)
	if err != nil {
		return TurnResult{}, err
	}
	if !s.turn.TryLock() {
		return TurnResult{}, core.ErrSessionBusy
	}
	defer s.turn.Unlock()

	ctx = log.WithSession(ctx, id)
	logger := log.FromCtx(ctx)

	if s.store.LastRole() != core.RoleAssistant {
		return TurnResult{}, core.ErrNoReply
	}
	if err := a.generator.Ready(ctx); err != nil {
		return TurnResult{}, err
	}

	msgs := s.store.Messages(0)
	msgs = msgs[:len(msgs)-1]

	var res TurnResult
	res.Result, err = a.stream(ctx, id, s.store, msgs, onFragment)
	if err != nil {
		return res, err
	}

	if res.Status == generation.StatusCompleted {
		s.store.RemoveLast(core.RoleAssistant)
		res.persistenceNotice(s.store.Append(ctx, core.RoleAssistant, res.Text))
		logger.Info().Str("run", res.RunID).Msg("reply regenerated")
	} else {
		logger.Warn().Str("status", res.Status.String()).Err(res.Err).Msg("regenerated reply discarded, previous one kept")
	}

	res.Usage = a.estimator.Usage(s.store.Snapshot(), a.thresholds)
	return res, nil
}

func (a *Agent) stream(
	ctx context.Context,
	id string,
	store *conversation.Store,
	msgs []core.Message,
	onFragment func(string) error,
) (generation.Result, error) {
	params := store.Params()
	system := a.refreshContext(ctx, store)

	text, err := a.assembler.Build(msgs, system, params, params.ContextWindow)
	if err != nil {
		return generation.Result{}, fmt.Errorf("failed to assemble prompt: %w", err)
	}

	run, err := a.generator.Stream(ctx, id, text, params)
	if err != nil {
		return generation.Result{}, err
	}
	return run.Drain(onFragment), nil
}

func (r *TurnResult) persistenceNotice(err error) {
	var perr *core.PersistenceError
	if errors.As(err, &perr) {
		r.Notices = append(r.Notices, "Session could not be saved: "+perr.Err.Error())
	}
}

// Summarize forces a summary regardless of usage.
func (a *Agent) Summarize(ctx context.Context, id string) (eviction.Decision, error) {
	s, err := a.get(id)
	if err != nil {
		return eviction.Decision{}, err
	}
	if !s.turn.TryLock() {
		return eviction.Decision{}, core.ErrSessionBusy
	}
	defer s.turn.Unlock()

	d, err := s.policy.Summarize(ctx, s.store)
	if err != nil {
		return d, err
	}
	a.applyDecision(ctx, s.store, d, nil)
	a.refreshContext(ctx, s.store)
	return d, nil
}

func (a *Agent) applyDecision(ctx context.Context, store *conversation.Store, d eviction.Decision, err error) []string {
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("eviction check failed")
		return []string{"Context summary could not be written, history kept: " + err.Error()}
	}

	switch d.Action {
	case eviction.ActionWarn:
		return []string{d.Message}
	case eviction.ActionSummarize:
		if a.appCfg.AutoAttachSummary {
			store.AttachContextFile(d.Artifact)
		}
		return []string{d.Message}
	default:
		return nil
	}
}

// AttachFile registers an existing context file with the session.
func (a *Agent) AttachFile(ctx context.Context, id, name string) error {
	s, err := a.get(id)
	if err != nil {
		return err
	}
	if _, err := a.files.Load(ctx, name); err != nil {
		return err
	}
	s.store.AttachContextFile(name)
	a.refreshContext(ctx, s.store)
	return nil
}

func (a *Agent) DetachFile(ctx context.Context, id, name string) error {
	s, err := a.get(id)
	if err != nil {
		return err
	}
	if !s.store.DetachContextFile(name) {
		return fmt.Errorf("context file %s: %w", name, core.ErrNotFound)
	}
	a.refreshContext(ctx, s.store)
	return nil
}
