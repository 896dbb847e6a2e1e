package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/agent"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/sandevgo/ctxkeeper/internal/service/eviction"
	"github.com/sandevgo/ctxkeeper/internal/service/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	store     *conversation.Store
	decision  eviction.Decision
	err       error
	regen     agent.TurnResult
	regenErr  error
	fragments []string
	saved     int
	attached  []string
	attachErr error
}

func newFakeSessions(t *testing.T) *fakeSessions {
	t.Helper()
	store := conversation.NewStore(conversation.Config{Estimator: budget.DefaultEstimator()})
	store.CreateSession(core.GenerationParams{SystemPrompt: "sys", ContextWindow: 1000})
	return &fakeSessions{store: store}
}

func (f *fakeSessions) Store(id string) (*conversation.Store, error) {
	if id != f.store.ID() {
		return nil, core.ErrNotFound
	}
	return f.store, nil
}

func (f *fakeSessions) Usage(id string) (core.Usage, error) {
	if _, err := f.Store(id); err != nil {
		return core.Usage{}, err
	}
	return budget.DefaultEstimator().Usage(f.store.Snapshot(), budget.DefaultThresholds()), nil
}

func (f *fakeSessions) Summarize(context.Context, string) (eviction.Decision, error) {
	return f.decision, f.err
}

func (f *fakeSessions) Regenerate(_ context.Context, _ string, onFragment func(string) error) (agent.TurnResult, error) {
	if f.regenErr != nil {
		return agent.TurnResult{}, f.regenErr
	}
	for _, fr := range f.fragments {
		if err := onFragment(fr); err != nil {
			return agent.TurnResult{}, err
		}
	}
	return f.regen, nil
}

func (f *fakeSessions) Save(context.Context, string) error {
	f.saved++
	return f.err
}

func (f *fakeSessions) AttachFile(_ context.Context, _ string, name string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, name)
	f.store.AttachContextFile(name)
	return nil
}

func (f *fakeSessions) DetachFile(_ context.Context, _ string, name string) error {
	if !f.store.DetachContextFile(name) {
		return core.ErrNotFound
	}
	return nil
}

type fakeRepo struct {
	list []core.SessionSummary
	err  error
}

func (r *fakeRepo) Save(context.Context, *core.Session) error { return nil }
func (r *fakeRepo) Load(context.Context, string) (*core.Session, error) {
	return nil, core.ErrNotFound
}
func (r *fakeRepo) List(context.Context) ([]core.SessionSummary, error) { return r.list, r.err }
func (r *fakeRepo) Delete(context.Context, string) error                { return nil }

type fakeFiles struct {
	entries []core.ContextFileEntry
}

func (f *fakeFiles) Create(context.Context, string, string, string) (string, error) { return "", nil }
func (f *fakeFiles) Load(context.Context, string) (string, error)                   { return "", nil }
func (f *fakeFiles) List(_ context.Context, category string) ([]core.ContextFileEntry, error) {
	if category == "" {
		return f.entries, nil
	}
	var out []core.ContextFileEntry
	for _, e := range f.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

type failingCommand struct{}

func (failingCommand) Name() string        { return "boom" }
func (failingCommand) Description() string { return "always fails" }
func (failingCommand) Execute(context.Context, string, []string) (string, error) {
	return "", errors.New("exploded")
}

func newRouter(s *fakeSessions, repo *fakeRepo, files *fakeFiles) *Router {
	return New(append(NewCommands(s, repo, files), failingCommand{}))
}

func TestRouter_Dispatch(t *testing.T) {
	ctx := context.Background()
	s := newFakeSessions(t)
	r := newRouter(s, &fakeRepo{}, &fakeFiles{})

	tests := []struct {
		name      string
		input     string
		isCommand bool
		contains  string
	}{
		{"chat text", "hello there", false, ""},
		{"unknown", "/nope", true, "Unknown command: /nope"},
		{"error", "/boom", true, "Error: exploded"},
		{"help", "/help", true, "/summarize"},
		{"leading space", "  /save", true, "Session saved: " + s.store.ID()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := r.Execute(ctx, s.store.ID(), tt.input)
			assert.Equal(t, tt.isCommand, ok)
			assert.Contains(t, out, tt.contains)
		})
	}
}

func TestRouter_ListCommandsSorted(t *testing.T) {
	r := newRouter(newFakeSessions(t), &fakeRepo{}, &fakeFiles{})

	var names []string
	for _, c := range r.ListCommands() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"boom", "facts", "files", "regenerate", "save", "sessions", "summarize", "usage"}, names)
}

func TestUsageCommand(t *testing.T) {
	ctx := context.Background()
	s := newFakeSessions(t)
	require.NoError(t, s.store.Append(ctx, core.RoleUser, "hello"))
	require.NoError(t, s.store.Append(ctx, core.RoleAssistant, "hi"))

	out, err := NewUsageCommand(s).Execute(ctx, s.store.ID(), nil)
	require.NoError(t, err)

	assert.Contains(t, out, "(14/1000 tokens, estimated)")
	assert.Contains(t, out, "2 (user 1, assistant 1)")
	assert.NotContains(t, out, "/summarize")

	_, err = NewUsageCommand(s).Execute(ctx, "other", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSummarizeCommand(t *testing.T) {
	ctx := context.Background()
	s := newFakeSessions(t)
	cmd := NewSummarizeCommand(s)

	out, err := cmd.Execute(ctx, s.store.ID(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to summarize yet")

	s.decision = eviction.Decision{
		Action:   eviction.ActionSummarize,
		Message:  "Created summary file auto_context_x.txt and compressed 6 older messages.",
		Artifact: "auto_context_x.txt",
		Path:     "auto_generated/auto_context_x.txt",
	}
	out, err = cmd.Execute(ctx, s.store.ID(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "compressed 6 older messages")
	assert.Contains(t, out, "auto_generated/auto_context_x.txt")

	s.err = &core.ArtifactWriteError{Name: "auto_context_x.txt", Err: errors.New("disk full")}
	_, err = cmd.Execute(ctx, s.store.ID(), nil)
	var werr *core.ArtifactWriteError
	assert.ErrorAs(t, err, &werr)
}

func TestRegenerateCommand(t *testing.T) {
	ctx := context.Background()
	s := newFakeSessions(t)
	cmd := NewRegenerateCommand(s)
	id := s.store.ID()

	s.fragments = []string{"New", " reply"}
	s.regen = agent.TurnResult{Result: generation.Result{Text: "New reply", Status: generation.StatusCompleted}}

	out, err := cmd.Execute(ctx, id, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "New reply\n"))
	assert.Contains(t, out, "Reply regenerated")

	var streamed strings.Builder
	out, err = cmd.Execute(WithOutput(ctx, &streamed), id, nil)
	require.NoError(t, err)
	assert.Equal(t, "New reply", streamed.String())
	assert.NotContains(t, out, "New reply")

	s.regen.Status = generation.StatusCancelled
	out, err = cmd.Execute(ctx, id, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "previous reply kept")

	s.regen.Status = generation.StatusFailed
	s.regen.Err = errors.New("model crashed")
	_, err = cmd.Execute(ctx, id, nil)
	assert.ErrorContains(t, err, "model crashed")

	s.regenErr = core.ErrNoReply
	out, err = cmd.Execute(ctx, id, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to regenerate yet")

	s.regenErr = core.ErrSessionBusy
	_, err = cmd.Execute(ctx, id, nil)
	assert.ErrorIs(t, err, core.ErrSessionBusy)
}

func TestSessionsCommand(t *testing.T) {
	ctx := context.Background()

	out, err := NewSessionsCommand(&fakeRepo{}).Execute(ctx, "current", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No saved sessions")

	var list []core.SessionSummary
	for i := 0; i < sessionsLimit+2; i++ {
		list = append(list, core.SessionSummary{
			ID:           fmt.Sprintf("s%02d", i),
			MessageCount: i,
			UpdatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	out, err = NewSessionsCommand(&fakeRepo{list: list}).Execute(ctx, "s01", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "s01    1 messages")
	assert.Contains(t, out, "(current)")
	assert.NotContains(t, out, "s10")
	assert.Contains(t, out, "2 more")

	_, err = NewSessionsCommand(&fakeRepo{err: errors.New("locked")}).Execute(ctx, "s01", nil)
	assert.ErrorContains(t, err, "locked")
}

func TestFilesCommand(t *testing.T) {
	ctx := context.Background()
	s := newFakeSessions(t)
	files := &fakeFiles{entries: []core.ContextFileEntry{
		{Name: "notes.txt", Size: 12},
		{Name: "auto_context_1.txt", Category: "auto_generated", Size: 300},
	}}
	cmd := NewFilesCommand(s, files)
	id := s.store.ID()

	out, err := cmd.Execute(ctx, id, []string{"attach", "notes.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "Attached notes.txt")
	assert.Equal(t, []string{"notes.txt"}, s.attached)

	out, err = cmd.Execute(ctx, id, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "* notes.txt  [-]  12 bytes")
	assert.Contains(t, out, "  auto_context_1.txt  [auto_generated]  300 bytes")

	out, err = cmd.Execute(ctx, id, []string{"list", "auto_generated"})
	require.NoError(t, err)
	assert.NotContains(t, out, "notes.txt")

	out, err = cmd.Execute(ctx, id, []string{"detach", "notes.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "Detached notes.txt")

	_, err = cmd.Execute(ctx, id, []string{"detach", "notes.txt"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	out, err = cmd.Execute(ctx, id, []string{"attach"})
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")

	s.attachErr = core.ErrNotFound
	_, err = cmd.Execute(ctx, id, []string{"attach", "missing.txt"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFactsCommand(t *testing.T) {
	ctx := context.Background()
	s := newFakeSessions(t)
	cmd := NewFactsCommand(s)

	out, err := cmd.Execute(ctx, s.store.ID(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No memory items yet.")

	require.NoError(t, s.store.Append(ctx, core.RoleUser, "My name is Avery."))
	out, err = cmd.Execute(ctx, s.store.ID(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "- User Name: Avery")
	assert.Contains(t, out, "- My name is Avery.")
}
