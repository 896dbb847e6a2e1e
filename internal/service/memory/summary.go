package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

const recentItems = 5

// HumanKey turns "user_name" into "User Name".
func HumanKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = strings.ToUpper(string(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// SortedKeys gives map iteration a stable order for rendering.
func SortedKeys(facts map[string]string) []string {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summarize renders known facts and the most recent memory items.
func Summarize(facts map[string]string, items []core.MemoryItem) string {
	var parts []string

	if len(facts) > 0 {
		parts = append(parts, "[User Information]:")
		for _, k := range SortedKeys(facts) {
			parts = append(parts, fmt.Sprintf("- %s: %s", HumanKey(k), facts[k]))
		}
	}

	if len(items) > 0 {
		start := len(items) - recentItems
		if start < 0 {
			start = 0
		}
		parts = append(parts, "\n[Important Notes]:")
		for _, item := range items[start:] {
			parts = append(parts, "- "+Preview(item.Content, 100))
		}
	}

	if len(parts) == 0 {
		return "No memory items yet."
	}
	return strings.Join(parts, "\n")
}

// Preview cuts s to at most n runes and marks the cut with an ellipsis.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
