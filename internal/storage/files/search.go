package files

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const snippetRadius = 50

// Search finds files containing query, case-insensitively, with a snippet
// of up to 50 characters on each side of the first match.
func (s *Store) Search(ctx context.Context, query string) ([]core.SearchHit, error) {
	entries, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	q := []rune(strings.ToLower(query))
	hits := []core.SearchHit{}
	if len(q) == 0 {
		return hits, nil
	}

	for _, e := range entries {
		content, err := s.Load(ctx, e.Name)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("file", e.Name).Msg("skipping unreadable context file")
			continue
		}

		runes := []rune(content)
		pos := indexFold(runes, q)
		if pos < 0 {
			continue
		}

		start := max(0, pos-snippetRadius)
		end := min(len(runes), pos+len(q)+snippetRadius)
		hits = append(hits, core.SearchHit{
			File:     e.Name,
			Snippet:  "..." + string(runes[start:end]) + "...",
			Category: e.Category,
		})
	}
	return hits, nil
}

// indexFold returns the rune offset of the first case-insensitive match of
// lowered in s.
func indexFold(s, lowered []rune) int {
	for i := 0; i+len(lowered) <= len(s); i++ {
		if strings.EqualFold(string(s[i:i+len(lowered)]), string(lowered)) {
			return i
		}
	}
	return -1
}

// Stats counts characters, words and lines of a file.
func (s *Store) Stats(ctx context.Context, name string, est budget.Estimator) (core.ContextFileStats, error) {
	content, err := s.Load(ctx, name)
	if err != nil {
		return core.ContextFileStats{}, err
	}
	name, _ = normalizeName(name)

	return core.ContextFileStats{
		Name:            name,
		Characters:      utf8.RuneCountInString(content),
		Words:           len(strings.Fields(content)),
		Lines:           strings.Count(content, "\n") + 1,
		EstimatedTokens: est.Estimate(content),
	}, nil
}
