package memory

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	KeywordName  = "my name is"
	FactUserName = "user_name"
)

var errNoName = errors.New("no name after identity phrase")

// FactFunc derives ImportantFacts entries from the message that matched a rule.
type FactFunc func(content string) (map[string]string, error)

type Rule struct {
	Keyword string
	Facts   FactFunc
}

// DefaultRules is the ordered trigger list. Order matters: the first match wins.
func DefaultRules() []Rule {
	keywords := []string{
		"i like",
		"i prefer",
		"i hate",
		"i dislike",
		"remember that",
		"important:",
		"note:",
		"keep in mind",
		"always",
		"never",
		"i am",
		"i work",
		"i use",
	}

	rules := make([]Rule, 0, len(keywords)+1)
	rules = append(rules, Rule{Keyword: KeywordName, Facts: parseName})
	for _, k := range keywords {
		rules = append(rules, Rule{Keyword: k})
	}
	return rules
}

func parseName(content string) (map[string]string, error) {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, KeywordName)
	if idx < 0 {
		return nil, errNoName
	}

	rest := strings.Fields(lower[idx+len(KeywordName):])
	if len(rest) == 0 {
		return nil, errNoName
	}

	name := strings.Trim(rest[0], ".,!?")
	if name == "" {
		return nil, errNoName
	}

	return map[string]string{
		FactUserName: cases.Title(language.Und).String(name),
	}, nil
}
