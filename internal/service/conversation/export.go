package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/pkg/conv"
)

const (
	FormatText     = "txt"
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatHTML     = "html"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// Export renders a session in one of the supported formats.
func Export(sess *core.Session, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return []byte(exportText(sess)), nil
	case FormatMarkdown:
		return []byte(exportMarkdown(sess)), nil
	case FormatJSON:
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}
		return data, nil
	case FormatHTML:
		return []byte(conv.MarkdownToHTMLDocument("Chat Session "+sess.ID, []byte(exportMarkdown(sess)))), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func exportText(sess *core.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chat Session: %s\n", sess.ID)
	fmt.Fprintf(&sb, "Created: %s\n", sess.CreatedAt.Format(exportTimeLayout))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, m := range sess.Messages {
		fmt.Fprintf(&sb, "[%s] %s:\n%s\n\n", m.CreatedAt.Format(exportTimeLayout), strings.ToUpper(m.Role), m.Content)
	}
	return sb.String()
}

func exportMarkdown(sess *core.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Chat Session: %s\n\n", sess.ID)
	fmt.Fprintf(&sb, "**Created:** %s\n\n", sess.CreatedAt.Format(exportTimeLayout))
	sb.WriteString("---\n\n")

	for _, m := range sess.Messages {
		who := "User"
		if m.Role == core.RoleAssistant {
			who = "Assistant"
		}
		fmt.Fprintf(&sb, "### %s\n*%s*\n\n%s\n\n", who, m.CreatedAt.Format(exportTimeLayout), m.Content)
	}
	return sb.String()
}
