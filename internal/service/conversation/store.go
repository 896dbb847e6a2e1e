package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/internal/service/memory"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const DefaultAutoSaveEvery = 5

type Extractor interface {
	Extract(ctx context.Context, content string) (memory.Extraction, bool)
}

type Saver interface {
	Save(ctx context.Context, session *core.Session) error
}

type Config struct {
	Params        core.GenerationParams
	Estimator     budget.Estimator
	Extractor     Extractor
	Saver         Saver
	AutoSaveEvery int
	Now           func() time.Time
}

// Store owns one session at a time. All mutations go through its methods and
// are serialized by mu; readers get deep copies.
type Store struct {
	mu sync.Mutex

	session       *core.Session
	defaults      core.GenerationParams
	estimator     budget.Estimator
	extractor     Extractor
	saver         Saver
	autoSaveEvery int
	appended      int
	now           func() time.Time
}

func NewStore(cfg Config) *Store {
	if cfg.Extractor == nil {
		cfg.Extractor = memory.NewDefaultExtractor()
	}
	if cfg.AutoSaveEvery <= 0 {
		cfg.AutoSaveEvery = DefaultAutoSaveEvery
	}
	if cfg.Now == nil {
		cfg.Now = Now
	}
	if cfg.Estimator == (budget.Estimator{}) {
		cfg.Estimator = budget.DefaultEstimator()
	}

	return &Store{
		defaults:      cfg.Params,
		estimator:     cfg.Estimator,
		extractor:     cfg.Extractor,
		saver:         cfg.Saver,
		autoSaveEvery: cfg.AutoSaveEvery,
		now:           cfg.Now,
	}
}

// Now is UTC without a monotonic reading so persisted times compare equal.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// NewSessionID derives an id from the creation time, e.g. 20250102_150405_123456.
func NewSessionID(t time.Time) string {
	return strings.Replace(t.Format("20060102_150405.000000"), ".", "_", 1)
}

// CreateSession discards any current state and starts a new session.
func (s *Store) CreateSession(params core.GenerationParams) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(params)
}

func (s *Store) createLocked(params core.GenerationParams) string {
	now := s.now()
	s.session = &core.Session{
		ID:           NewSessionID(now),
		CreatedAt:    now,
		UpdatedAt:    now,
		Params:       params,
		Messages:     []core.Message{},
		MemoryItems:  []core.MemoryItem{},
		Facts:        map[string]string{},
		ContextFiles: []string{},
	}
	s.appended = 0
	return s.session.ID
}

// Load replaces the current session with a copy of sess.
func (s *Store) Load(sess *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess.Clone()
	s.appended = 0
}

// Append adds a message to the log. A missing session is created with the
// store defaults. User messages are scanned for memory items. Every
// AutoSaveEvery appends the session is saved; a save failure is returned as
// *core.PersistenceError but the message stays in memory.
func (s *Store) Append(ctx context.Context, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		id := s.createLocked(s.defaults)
		log.FromCtx(ctx).Debug().Str("session", id).Msg("session created implicitly on first append")
	}

	now := s.now()
	s.session.Messages = append(s.session.Messages, core.Message{
		Role:      role,
		Content:   content,
		CreatedAt: now,
	})
	s.session.UpdatedAt = now
	s.session.MessageCount++
	s.appended++

	if role == core.RoleUser {
		s.extractLocked(ctx, content, now)
	}

	if s.saver == nil || s.appended%s.autoSaveEvery != 0 {
		return nil
	}

	if err := s.saver.Save(ctx, s.session.Clone()); err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("session", s.session.ID).Msg("autosave failed")
		return &core.PersistenceError{Op: "autosave", SessionID: s.session.ID, Err: err}
	}
	log.FromCtx(ctx).Debug().Str("session", s.session.ID).Int("message", s.session.MessageCount).Msg("session autosaved")
	return nil
}

// RemoveLast drops the newest message if it has the given role. A memory
// item extracted from that message goes with it; facts it set are kept.
func (s *Store) RemoveLast(role string) (core.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || len(s.session.Messages) == 0 {
		return core.Message{}, false
	}

	last := len(s.session.Messages) - 1
	m := s.session.Messages[last]
	if m.Role != role {
		return core.Message{}, false
	}
	s.session.Messages = s.session.Messages[:last]
	s.session.MessageCount--
	if s.appended > 0 {
		s.appended--
	}

	if items := s.session.MemoryItems; len(items) > 0 {
		it := items[len(items)-1]
		if it.Content == m.Content && it.CreatedAt.Equal(m.CreatedAt) {
			s.session.MemoryItems = items[:len(items)-1]
		}
	}
	return m, true
}

// LastRole is the role of the newest message, or "" for an empty log.
func (s *Store) LastRole() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || len(s.session.Messages) == 0 {
		return ""
	}
	return s.session.Messages[len(s.session.Messages)-1].Role
}

func (s *Store) extractLocked(ctx context.Context, content string, now time.Time) {
	ext, ok := s.extractor.Extract(ctx, content)
	if !ok {
		return
	}

	s.session.MemoryItems = append(s.session.MemoryItems, core.MemoryItem{
		Content:   content,
		Keyword:   ext.Keyword,
		CreatedAt: now,
	})
	for k, v := range ext.Facts {
		s.session.Facts[k] = v
	}

	log.FromCtx(ctx).Debug().
		Str("keyword", ext.Keyword).
		Str("preview", memory.Preview(content, 50)).
		Msg("memory item extracted")
}

// Save persists the current session immediately.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil || s.saver == nil {
		s.mu.Unlock()
		return nil
	}
	snap := s.session.Clone()
	s.mu.Unlock()

	if err := s.saver.Save(ctx, snap); err != nil {
		return &core.PersistenceError{Op: "save", SessionID: snap.ID, Err: err}
	}
	return nil
}

func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

func (s *Store) Params() core.GenerationParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return s.defaults
	}
	return s.session.Params
}

func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return 0
	}
	return s.session.MessageCount
}

// Session returns a deep copy, or nil if no session exists yet.
func (s *Store) Session() *core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.Clone()
}

// Messages returns the whole log when budget <= 0. Otherwise it returns the
// most recent messages whose estimates fit in budget, in original order.
// A message is either included whole or not at all.
func (s *Store) Messages(budgetTokens int) []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return []core.Message{}
	}
	if budgetTokens <= 0 {
		return append([]core.Message{}, s.session.Messages...)
	}
	return budget.FitRecent(s.session.Messages, budgetTokens, s.estimator.EstimateMessage)
}

// Snapshot is the input for usage accounting.
func (s *Store) Snapshot() budget.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return budget.Snapshot{Window: s.defaults.ContextWindow, SystemPrompt: s.defaults.SystemPrompt}
	}
	return budget.Snapshot{
		SystemPrompt:  s.session.Params.SystemPrompt,
		Messages:      append([]core.Message{}, s.session.Messages...),
		ContextTokens: s.session.ContextTokens,
		Window:        s.session.Params.ContextWindow,
	}
}

// Truncate keeps only the newest keep messages and reports how many were dropped.
func (s *Store) Truncate(keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || keep < 0 || len(s.session.Messages) <= keep {
		return 0
	}
	removed := len(s.session.Messages) - keep
	kept := make([]core.Message, keep)
	copy(kept, s.session.Messages[removed:])
	s.session.Messages = kept
	return removed
}

// AttachContextFile registers a context file once. It reports whether the
// file was newly attached.
func (s *Store) AttachContextFile(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		s.createLocked(s.defaults)
	}
	for _, f := range s.session.ContextFiles {
		if f == name {
			return false
		}
	}
	s.session.ContextFiles = append(s.session.ContextFiles, name)
	return true
}

func (s *Store) DetachContextFile(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	for i, f := range s.session.ContextFiles {
		if f == name {
			s.session.ContextFiles = append(s.session.ContextFiles[:i], s.session.ContextFiles[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) ContextFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return []string{}
	}
	return append([]string{}, s.session.ContextFiles...)
}

// SetContextTokens records the token allowance currently taken by injected context files.
func (s *Store) SetContextTokens(tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.session.ContextTokens = tokens
}

func (s *Store) Facts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	if s.session == nil {
		return out
	}
	for k, v := range s.session.Facts {
		out[k] = v
	}
	return out
}

func (s *Store) MemorySummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return memory.Summarize(nil, nil)
	}
	return memory.Summarize(s.session.Facts, s.session.MemoryItems)
}
