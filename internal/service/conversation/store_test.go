package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []*core.Session
	err   error
}

func (f *fakeSaver) Save(_ context.Context, s *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, s)
	return nil
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(saver Saver) *Store {
	return NewStore(Config{
		Params: core.GenerationParams{SystemPrompt: "be brief", ContextWindow: 1000, MaxTokens: 100},
		Saver:  saver,
		Now:    fixedClock(),
	})
}

func TestStore_AppendCreatesSessionImplicitly(t *testing.T) {
	s := newTestStore(nil)
	require.Empty(t, s.ID())

	require.NoError(t, s.Append(context.Background(), core.RoleUser, "hello"))

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "be brief", s.Params().SystemPrompt)
	assert.Equal(t, 1, s.MessageCount())
}

func TestStore_CreateSessionResets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	require.NoError(t, s.Append(ctx, core.RoleUser, "My name is Avery."))

	first := s.ID()
	second := s.CreateSession(core.GenerationParams{ContextWindow: 2048})

	assert.NotEqual(t, first, second)
	assert.Empty(t, s.Messages(0))
	assert.Empty(t, s.Facts())
	assert.Equal(t, 2048, s.Params().ContextWindow)
}

func TestStore_MemoryExtraction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)

	require.NoError(t, s.Append(ctx, core.RoleUser, "My name is Avery."))
	require.NoError(t, s.Append(ctx, core.RoleAssistant, "My name is Bot, I like you"))
	require.NoError(t, s.Append(ctx, core.RoleUser, "What's up?"))

	sess := s.Session()
	require.Len(t, sess.MemoryItems, 1)
	assert.Equal(t, "my name is", sess.MemoryItems[0].Keyword)
	assert.Equal(t, "My name is Avery.", sess.MemoryItems[0].Content)
	assert.Equal(t, map[string]string{"user_name": "Avery"}, s.Facts())
	assert.Contains(t, s.MemorySummary(), "User Name: Avery")
}

func TestStore_MessagesBudget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	for _, c := range []string{
		strings.Repeat("a", 40), // 10 + 5
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
	} {
		require.NoError(t, s.Append(ctx, core.RoleUser, c))
	}

	tests := []struct {
		name   string
		budget int
		want   int
	}{
		{name: "no budget returns all", budget: 0, want: 3},
		{name: "fits all", budget: 45, want: 3},
		{name: "fits two", budget: 44, want: 2},
		{name: "fits one", budget: 15, want: 1},
		{name: "fits none", budget: 14, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Messages(tt.budget)
			require.Len(t, got, tt.want)
			if tt.want > 0 {
				assert.Equal(t, strings.Repeat("c", 40), got[len(got)-1].Content)
			}
		})
	}
}

func TestStore_AutoSaveCadence(t *testing.T) {
	ctx := context.Background()
	saver := &fakeSaver{}
	s := newTestStore(saver)

	for i := 0; i < 11; i++ {
		require.NoError(t, s.Append(ctx, core.RoleUser, "msg"))
	}

	require.Len(t, saver.saved, 2)
	assert.Len(t, saver.saved[0].Messages, 5)
	assert.Len(t, saver.saved[1].Messages, 10)
}

func TestStore_AutoSaveFailureKeepsMessage(t *testing.T) {
	ctx := context.Background()
	saver := &fakeSaver{err: errors.New("disk full")}
	s := newTestStore(saver)

	var err error
	for i := 0; i < 5; i++ {
		err = s.Append(ctx, core.RoleUser, "msg")
	}

	var perr *core.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "autosave", perr.Op)
	assert.Equal(t, s.ID(), perr.SessionID)
	assert.Len(t, s.Messages(0), 5)
}

func TestStore_Truncate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	for i := 0; i < 30; i++ {
		require.NoError(t, s.Append(ctx, core.RoleUser, string(rune('a'+i%26))))
	}

	removed := s.Truncate(20)

	assert.Equal(t, 10, removed)
	msgs := s.Messages(0)
	require.Len(t, msgs, 20)
	assert.Equal(t, "k", msgs[0].Content)
	assert.Equal(t, 30, s.MessageCount())
	assert.Zero(t, s.Truncate(20))
}

func TestStore_RemoveLast(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)

	_, ok := s.RemoveLast(core.RoleUser)
	assert.False(t, ok)
	assert.Empty(t, s.LastRole())

	require.NoError(t, s.Append(ctx, core.RoleUser, "hi"))
	require.NoError(t, s.Append(ctx, core.RoleAssistant, "hello"))
	require.NoError(t, s.Append(ctx, core.RoleUser, "My name is Avery."))
	require.Len(t, s.Session().MemoryItems, 1)

	tests := []struct {
		name      string
		role      string
		wantOK    bool
		wantCount int
		wantLast  string
	}{
		{"role mismatch keeps log", core.RoleAssistant, false, 3, core.RoleUser},
		{"trailing user removed", core.RoleUser, true, 2, core.RoleAssistant},
		{"trailing assistant removed", core.RoleAssistant, true, 1, core.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := s.RemoveLast(tt.role)
			assert.Equal(t, tt.wantOK, ok)
			assert.Len(t, s.Messages(0), tt.wantCount)
			assert.Equal(t, tt.wantCount, s.MessageCount())
			assert.Equal(t, tt.wantLast, s.LastRole())
		})
	}

	assert.Empty(t, s.Session().MemoryItems)
	assert.Equal(t, "hi", s.Messages(0)[0].Content)
}

func TestStore_SnapshotUsage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	require.NoError(t, s.Append(ctx, core.RoleUser, strings.Repeat("x", 400)))
	s.SetContextTokens(50)

	snap := s.Snapshot()
	u := budget.DefaultEstimator().Usage(snap, budget.DefaultThresholds())

	// "be brief" = 2, message = 100 + 5, context = 50
	assert.Equal(t, 157, u.UsedTokens)
	assert.Equal(t, 1000, u.TotalBudget)
}

func TestStore_ContextFiles(t *testing.T) {
	s := newTestStore(nil)

	assert.True(t, s.AttachContextFile("notes.txt"))
	assert.False(t, s.AttachContextFile("notes.txt"))
	assert.True(t, s.AttachContextFile("auto_context_1.txt"))
	assert.Equal(t, []string{"notes.txt", "auto_context_1.txt"}, s.ContextFiles())

	assert.True(t, s.DetachContextFile("notes.txt"))
	assert.False(t, s.DetachContextFile("notes.txt"))
	assert.Equal(t, []string{"auto_context_1.txt"}, s.ContextFiles())
}

func TestStore_SessionIsACopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	require.NoError(t, s.Append(ctx, core.RoleUser, "My name is Avery"))

	sess := s.Session()
	sess.Messages[0].Content = "mutated"
	sess.Facts["user_name"] = "Mallory"

	assert.Equal(t, "My name is Avery", s.Messages(0)[0].Content)
	assert.Equal(t, "Avery", s.Facts()["user_name"])
}

func TestStore_LoadAndStats(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	sess := &core.Session{
		ID:        "20250101_100000_000000",
		CreatedAt: created,
		UpdatedAt: created.Add(90 * time.Second),
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "hi", CreatedAt: created},
			{Role: core.RoleAssistant, Content: "hello", CreatedAt: created},
			{Role: core.RoleUser, Content: "bye", CreatedAt: created},
		},
		Facts:        map[string]string{},
		ContextFiles: []string{"a.txt"},
		MessageCount: 3,
	}

	s := newTestStore(nil)
	s.Load(sess)

	st, ok := s.Stats()
	require.True(t, ok)
	assert.Equal(t, Stats{
		SessionID:         sess.ID,
		TotalMessages:     3,
		UserMessages:      2,
		AssistantMessages: 1,
		ContextFiles:      1,
		CreatedAt:         created,
		Duration:          90 * time.Second,
	}, st)
}

func TestNewSessionID(t *testing.T) {
	ts := time.Date(2025, 1, 2, 15, 4, 5, 123456789, time.UTC)
	assert.Equal(t, "20250102_150405_123456", NewSessionID(ts))
}

func TestExport(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	sess := &core.Session{
		ID:        "s1",
		CreatedAt: created,
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "hi <script>x</script>", CreatedAt: created},
			{Role: core.RoleAssistant, Content: "**hello**", CreatedAt: created},
		},
		Facts: map[string]string{},
	}

	txt, err := Export(sess, FormatText)
	require.NoError(t, err)
	assert.Contains(t, string(txt), "[2025-01-01 10:00:00] USER:\nhi")
	assert.Contains(t, string(txt), "ASSISTANT:\n**hello**")

	md, err := Export(sess, FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Chat Session: s1")
	assert.Contains(t, string(md), "### Assistant")

	js, err := Export(sess, FormatJSON)
	require.NoError(t, err)
	var back core.Session
	require.NoError(t, json.Unmarshal(js, &back))
	assert.Equal(t, sess.Messages, back.Messages)

	page, err := Export(sess, FormatHTML)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<strong>hello</strong>")
	assert.NotContains(t, string(page), "<script>")

	_, err = Export(sess, "pdf")
	assert.Error(t, err)
}
