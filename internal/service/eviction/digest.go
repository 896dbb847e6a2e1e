package eviction

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/memory"
)

const (
	DefaultDigestWindow = 10

	topicChars       = 100
	excerptThreshold = 200
	excerptChars     = 150
	digestTimeLayout = "2006-01-02 15:04:05"
)

// BuildDigest condenses a session into a plain text summary. Output depends
// only on its arguments.
func BuildDigest(sess *core.Session, now string, window int) string {
	if window <= 0 {
		window = DefaultDigestWindow
	}

	parts := []string{
		"# Auto-generated Context Summary",
		"Created: " + now,
		"Session: " + sess.ID + "\n",
	}

	if len(sess.Facts) > 0 {
		parts = append(parts, "## Key Information")
		for _, k := range memory.SortedKeys(sess.Facts) {
			parts = append(parts, fmt.Sprintf("- %s (%s): %s", memory.HumanKey(k), k, sess.Facts[k]))
		}
		parts = append(parts, "")
	}

	if len(sess.MemoryItems) > 0 {
		parts = append(parts, "## Important Notes")
		for _, item := range sess.MemoryItems {
			parts = append(parts, "- "+item.Content)
		}
		parts = append(parts, "")
	}

	parts = append(parts, "## Conversation Summary")

	msgs := sess.Messages
	for i := 0; i < len(msgs); i += window {
		end := i + window
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[i:end]

		topic, ok := firstUserContent(chunk)
		if !ok {
			continue
		}

		parts = append(parts,
			fmt.Sprintf("\n### Messages %d-%d", i+1, end),
			fmt.Sprintf("Topic: %s...", head(topic, topicChars)),
		)
		for _, m := range chunk {
			if utf8.RuneCountInString(m.Content) > excerptThreshold {
				parts = append(parts, fmt.Sprintf("- (%s) %s...", m.Role, head(m.Content, excerptChars)))
			}
		}
	}

	parts = append(parts,
		"\n---",
		"*This summary was auto-generated to manage context window.*",
	)

	return strings.Join(parts, "\n")
}

func firstUserContent(chunk []core.Message) (string, bool) {
	for _, m := range chunk {
		if m.Role == core.RoleUser {
			return m.Content, true
		}
	}
	return "", false
}

func head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
