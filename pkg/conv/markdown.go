package conv

import (
	"fmt"
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = mdhtml.CommonFlags | mdhtml.HrefTargetBlank
	ugcPolicy  = bluemonday.UGCPolicy()
)

func init() {
	// keep fenced code language hints
	ugcPolicy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code")
}

// MarkdownToSafeHTML renders markdown and strips anything outside the UGC allowlist.
// Message content is user and model supplied, so it is never trusted as HTML.
func MarkdownToSafeHTML(md []byte) string {
	// 1. Render HTML
	p := parser.NewWithExtensions(extensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse(md), renderer)

	// 2. Sanitize tags
	return string(ugcPolicy.SanitizeBytes(unsafeHTML))
}

// MarkdownToHTMLDocument wraps the sanitized body into a standalone page.
func MarkdownToHTMLDocument(title string, md []byte) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("</head>\n<body>\n")
	sb.WriteString(MarkdownToSafeHTML(md))
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
