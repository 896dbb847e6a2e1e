package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordExtractor_Default(t *testing.T) {
	ctx := context.Background()
	e := NewDefaultExtractor()

	tests := []struct {
		name      string
		content   string
		wantMatch bool
		keyword   string
		facts     map[string]string
	}{
		{
			name:      "identity declaration",
			content:   "My name is Avery.",
			wantMatch: true,
			keyword:   "my name is",
			facts:     map[string]string{"user_name": "Avery"},
		},
		{
			name:      "identity lowercased is title cased",
			content:   "hi, my name is jordan!",
			wantMatch: true,
			keyword:   "my name is",
			facts:     map[string]string{"user_name": "Jordan"},
		},
		{
			name:      "preference",
			content:   "I prefer tabs over spaces",
			wantMatch: true,
			keyword:   "i prefer",
		},
		{
			name:      "first match wins over later keywords",
			content:   "I like Go and I always use it at work",
			wantMatch: true,
			keyword:   "i like",
		},
		{
			name:      "identity name missing is swallowed",
			content:   "my name is",
			wantMatch: true,
			keyword:   "my name is",
		},
		{
			name:      "no trigger",
			content:   "What's the weather?",
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Extract(ctx, tt.content)
			require.Equal(t, tt.wantMatch, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.keyword, got.Keyword)
			assert.Equal(t, tt.facts, got.Facts)
		})
	}
}

func TestKeywordExtractor_CustomRules(t *testing.T) {
	failing := func(string) (map[string]string, error) { return nil, errors.New("boom") }
	e := NewKeywordExtractor([]Rule{
		{Keyword: "DEADLINE", Facts: failing},
		{Keyword: "project", Facts: func(string) (map[string]string, error) {
			return map[string]string{"project": "ctxkeeper"}, nil
		}},
	})

	got, ok := e.Extract(context.Background(), "the deadline for the project is friday")
	require.True(t, ok)
	assert.Equal(t, "deadline", got.Keyword)
	assert.Nil(t, got.Facts)

	got, ok = e.Extract(context.Background(), "new Project started")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"project": "ctxkeeper"}, got.Facts)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "No memory items yet.", Summarize(nil, nil))

	items := make([]core.MemoryItem, 0, 7)
	for _, c := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		items = append(items, core.MemoryItem{Content: c})
	}
	out := Summarize(map[string]string{"user_name": "Avery"}, items)

	assert.Contains(t, out, "- User Name: Avery")
	assert.NotContains(t, out, "- b")
	assert.Contains(t, out, "- c")
	assert.Contains(t, out, "- g")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "Приве...", Preview("Привет мир", 5))
}
