package budget

import (
	"unicode/utf8"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

const (
	DefaultCharsPerToken   = 4
	DefaultMessageOverhead = 5
)

// Estimator converts text into an approximate token count using a fixed
// characters-per-token ratio. Every budget decision in a process must share
// one Estimator value or the components disagree about what fits.
type Estimator struct {
	charsPerToken   int
	messageOverhead int
}

func NewEstimator(charsPerToken, messageOverhead int) Estimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if messageOverhead < 0 {
		messageOverhead = 0
	}
	return Estimator{charsPerToken: charsPerToken, messageOverhead: messageOverhead}
}

func DefaultEstimator() Estimator {
	return NewEstimator(DefaultCharsPerToken, DefaultMessageOverhead)
}

func (e Estimator) CharsPerToken() int {
	return e.charsPerToken
}

// Estimate rounds up so that a partial token still counts.
func (e Estimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + e.charsPerToken - 1) / e.charsPerToken
}

// EstimateMessage adds the fixed role/formatting tax to the content estimate.
func (e Estimator) EstimateMessage(msg core.Message) int {
	return e.Estimate(msg.Content) + e.messageOverhead
}

func (e Estimator) EstimateMessages(msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.EstimateMessage(m)
	}
	return total
}

// Chars converts a token budget back into a character budget.
func (e Estimator) Chars(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * e.charsPerToken
}

// FitRecent walks msgs from newest to oldest and keeps whole messages while
// cost stays within budget. The result preserves original order.
func FitRecent(msgs []core.Message, budget int, cost func(core.Message) int) []core.Message {
	if budget <= 0 {
		return []core.Message{}
	}

	used := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		c := cost(msgs[i])
		if used+c > budget {
			break
		}
		used += c
		start = i
	}

	out := make([]core.Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}
