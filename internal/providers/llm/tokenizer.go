package llm

import (
	"context"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const DefaultEncoding = "cl100k_base"

// Tokenizer counts and truncates prompts with a BPE encoding. When the
// encoding is disabled or cannot be loaded it falls back to the character
// estimator.
type Tokenizer struct {
	encoding string
	est      budget.Estimator

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenizer loads the encoding lazily on first use. An empty encoding
// means estimator only.
func NewTokenizer(encoding string, est budget.Estimator) *Tokenizer {
	return &Tokenizer{encoding: encoding, est: est}
}

func (t *Tokenizer) load(ctx context.Context) *tiktoken.Tiktoken {
	t.once.Do(func() {
		if t.encoding == "" {
			return
		}
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("encoding", t.encoding).
				Msg("tokenizer unavailable, estimation degraded to character ratio")
			return
		}
		t.enc = enc
	})
	return t.enc
}

// Degraded reports whether counts come from the character estimator.
func (t *Tokenizer) Degraded(ctx context.Context) bool {
	return t.load(ctx) == nil
}

func (t *Tokenizer) Count(ctx context.Context, text string) int {
	if enc := t.load(ctx); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return t.est.Estimate(text)
}

// TruncateTail keeps the last maxTokens tokens of text so the newest turns
// and the generation cue survive. maxTokens <= 0 disables truncation.
func (t *Tokenizer) TruncateTail(ctx context.Context, text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}

	if enc := t.load(ctx); enc != nil {
		ids := enc.Encode(text, nil, nil)
		if len(ids) <= maxTokens {
			return text, false
		}
		return enc.Decode(ids[len(ids)-maxTokens:]), true
	}

	runes := []rune(text)
	limit := t.est.Chars(maxTokens)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[len(runes)-limit:]), true
}
