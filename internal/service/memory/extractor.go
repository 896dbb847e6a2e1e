package memory

import (
	"context"
	"strings"

	"github.com/sandevgo/ctxkeeper/pkg/log"
)

// Extraction is the result of scanning one user message.
type Extraction struct {
	Keyword string
	Facts   map[string]string
}

// KeywordExtractor scans content case-insensitively against an ordered rule
// list and stops at the first match, so a message yields at most one item.
type KeywordExtractor struct {
	rules []Rule
}

func NewKeywordExtractor(rules []Rule) *KeywordExtractor {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		r.Keyword = strings.ToLower(r.Keyword)
		normalized[i] = r
	}
	return &KeywordExtractor{rules: normalized}
}

func NewDefaultExtractor() *KeywordExtractor {
	return NewKeywordExtractor(DefaultRules())
}

func (e *KeywordExtractor) Extract(ctx context.Context, content string) (Extraction, bool) {
	lower := strings.ToLower(content)

	for _, rule := range e.rules {
		if rule.Keyword == "" || !strings.Contains(lower, rule.Keyword) {
			continue
		}

		ext := Extraction{Keyword: rule.Keyword}
		if rule.Facts != nil {
			facts, err := rule.Facts(content)
			if err != nil {
				log.FromCtx(ctx).Warn().Err(err).Str("keyword", rule.Keyword).Msg("failed to parse fact from memory item")
			} else {
				ext.Facts = facts
			}
		}
		return ext, true
	}

	return Extraction{}, false
}
