package eviction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/sandevgo/ctxkeeper/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	mu       sync.Mutex
	files    map[string]string
	err      error
	attempts int
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: map[string]string{}}
}

func (f *fakeFiles) Create(_ context.Context, content, name, category string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return "", f.err
	}
	if _, ok := f.files[name]; ok {
		return "", fmt.Errorf("%s: %w", name, core.ErrExists)
	}
	f.files[name] = content
	return category + "/" + name, nil
}

func (f *fakeFiles) Load(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.files[name]
	if !ok {
		return "", core.ErrNotFound
	}
	return c, nil
}

func (f *fakeFiles) List(context.Context, string) ([]core.ContextFileEntry, error) {
	return nil, nil
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

func fastRetrier() *retry.Retrier {
	return retry.NewRetrier(&retry.Config{
		MaxRetries:    1,
		BackoffFactor: 1,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
	})
}

func clock() func() time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

// each message of 20 chars costs 5 + 5 = 10 tokens
func fill(t *testing.T, s *conversation.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		require.NoError(t, s.Append(context.Background(), role, strings.Repeat("m", 20)))
	}
}

func newStore(window int) *conversation.Store {
	return conversation.NewStore(conversation.Config{
		Params: core.GenerationParams{ContextWindow: window},
	})
}

func newPolicy(files core.ContextFileStore) *Policy {
	return NewPolicy(Config{Files: files, Retrier: fastRetrier(), Now: clock()})
}

func TestPolicy_BelowWarnIsNormal(t *testing.T) {
	s := newStore(1000)
	fill(t, s, 10)
	p := newPolicy(newFakeFiles())

	d, err := p.Check(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, StateNormal, p.State())
	assert.InDelta(t, 0.10, d.Usage.Percentage, 1e-9)
}

func TestPolicy_WarnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(200)
	fill(t, s, 17) // 170/200
	p := newPolicy(newFakeFiles())

	d, err := p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, d.Action)
	assert.Contains(t, d.Message, "85% used (170/200 tokens)")
	assert.Contains(t, d.Message, "4. Increase the context window")
	assert.Equal(t, StateWarned, p.State())

	d, err = p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, StateWarned, p.State())

	s.Truncate(5)
	d, err = p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, StateNormal, p.State())
}

func TestPolicy_SummarizeAtAutoThreshold(t *testing.T) {
	ctx := context.Background()
	s := newStore(500)
	fill(t, s, 46) // 460/500 = 0.92
	require.NoError(t, s.Append(ctx, core.RoleUser, "My name is Avery."))
	s.Truncate(46)
	files := newFakeFiles()
	p := newPolicy(files)

	facts := s.Facts()
	require.NotEmpty(t, facts)

	d, err := p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionSummarize, d.Action)
	assert.Equal(t, 26, d.Removed)
	assert.True(t, strings.HasPrefix(d.Artifact, "auto_context_"))
	assert.Equal(t, ArtifactCategory+"/"+d.Artifact, d.Path)
	assert.LessOrEqual(t, len(s.Messages(0)), DefaultKeep)
	assert.Equal(t, StateNormal, p.State())

	digest, err := files.Load(ctx, d.Artifact)
	require.NoError(t, err)
	for k := range facts {
		assert.Contains(t, digest, k)
	}

	d, err = p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, StateNormal, p.State())
	assert.Equal(t, 1, files.count())
}

func TestPolicy_NoDoubleSummarizeWithoutNewMessages(t *testing.T) {
	ctx := context.Background()
	s := newStore(100)
	fill(t, s, 25) // 250/100, still over after keeping 20
	files := newFakeFiles()
	p := newPolicy(files)

	d, err := p.Check(ctx, s)
	require.NoError(t, err)
	require.Equal(t, ActionSummarize, d.Action)

	d, err = p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.True(t, d.Usage.AutoSummarize)
	assert.Equal(t, 1, files.count())

	fill(t, s, 1)
	d, err = p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionSummarize, d.Action)
	assert.Equal(t, 2, files.count())
}

func TestPolicy_ArtifactWriteFailureKeepsLog(t *testing.T) {
	ctx := context.Background()
	s := newStore(100)
	fill(t, s, 30)
	files := newFakeFiles()
	files.err = errors.New("read-only file system")
	p := newPolicy(files)

	before := s.Messages(0)
	d, err := p.Check(ctx, s)

	var werr *core.ArtifactWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, 2, files.attempts)
	assert.Equal(t, before, s.Messages(0))

	files.err = nil
	d, err = p.Check(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionSummarize, d.Action)
	assert.Len(t, s.Messages(0), DefaultKeep)
}

func TestPolicy_InvalidNameIsNotRetried(t *testing.T) {
	s := newStore(100)
	fill(t, s, 30)
	files := newFakeFiles()
	files.err = fmt.Errorf("auto_context.txt: %w", core.ErrInvalidName)
	p := newPolicy(files)

	_, err := p.Check(context.Background(), s)

	var werr *core.ArtifactWriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, core.ErrInvalidName)
	assert.Equal(t, 1, files.attempts)
	assert.Len(t, s.Messages(0), 30)
}

func TestPolicy_SameMillisecondSummariesGetDistinctNames(t *testing.T) {
	ctx := context.Background()
	s := newStore(10000)
	fill(t, s, 30)
	files := newFakeFiles()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPolicy(Config{Files: files, Retrier: fastRetrier(), Now: func() time.Time { return now }})

	first, err := p.Summarize(ctx, s)
	require.NoError(t, err)
	fill(t, s, 4)
	second, err := p.Summarize(ctx, s)
	require.NoError(t, err)
	third, err := p.Summarize(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, "auto_context_20250601_120000_000.txt", first.Artifact)
	assert.Equal(t, "auto_context_20250601_120000_000_2.txt", second.Artifact)
	assert.Equal(t, "auto_context_20250601_120000_000_3.txt", third.Artifact)
	assert.Equal(t, 3, files.count())
}

func TestPolicy_ForcedSummarize(t *testing.T) {
	ctx := context.Background()
	s := newStore(10000)
	fill(t, s, 30)
	files := newFakeFiles()
	p := newPolicy(files)

	d, err := p.Summarize(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ActionSummarize, d.Action)
	assert.Equal(t, 10, d.Removed)
	assert.Contains(t, d.Message, d.Artifact)
}

func TestPolicy_SummarizeWithoutSession(t *testing.T) {
	p := newPolicy(newFakeFiles())
	d, err := p.Summarize(context.Background(), newStore(100))
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
}

func TestArtifactName(t *testing.T) {
	ts := time.Date(2025, 1, 2, 15, 4, 5, 123456789, time.UTC)
	assert.Equal(t, "auto_context_20250102_150405_123.txt", ArtifactName(ts, 0))
	assert.Equal(t, "auto_context_20250102_150405_123.txt", ArtifactName(ts, 1))
	assert.Equal(t, "auto_context_20250102_150405_123_4.txt", ArtifactName(ts, 4))
}
