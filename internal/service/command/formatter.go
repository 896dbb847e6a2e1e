package command

import (
	"fmt"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/service/ui"
)

// ResponseFormatter renders command output for the terminal.
type ResponseFormatter struct{}

func NewResponseFormatter() *ResponseFormatter {
	return &ResponseFormatter{}
}

func (f *ResponseFormatter) Info(title string) string {
	return ui.TitleStyle.Render(title)
}

func (f *ResponseFormatter) Success(message string) string {
	return ui.UsageStyle.Render(message) + "\n"
}

func (f *ResponseFormatter) Error(err error) string {
	return ui.AlertStyle.Render("Error: "+err.Error()) + "\n"
}

func (f *ResponseFormatter) Label(label, value string) string {
	return fmt.Sprintf("%s  ›  %s\n", ui.DescStyle.Render(label), value)
}

func (f *ResponseFormatter) Usage(command string) string {
	return fmt.Sprintf("Usage: %s\n", ui.UsageStyle.Render(command))
}

func (f *ResponseFormatter) List(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("› %s\n", item))
	}
	return sb.String()
}

func (f *ResponseFormatter) Tip(text string) string {
	return ui.DescStyle.Render("Tip: "+text) + "\n"
}

func (f *ResponseFormatter) Combine(sections ...string) string {
	return strings.Join(sections, "\n")
}
