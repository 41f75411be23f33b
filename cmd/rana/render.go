package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"rana/internal/dispatch"
	"rana/internal/ledger"
	"rana/internal/llm"
	"rana/internal/security"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// renderResultFooter is the one-line accounting trailer under a chat answer.
func renderResultFooter(result *dispatch.ChatResult) string {
	parts := []string{
		fmt.Sprintf("%s/%s", result.Provider, result.Model),
		fmt.Sprintf("%d tokens", result.Usage.TotalTokens),
		fmt.Sprintf("$%.6f", result.Cost.TotalUSD),
	}
	if result.Cached {
		parts = append(parts, "cached")
	} else {
		parts = append(parts, result.Latency.Round(time.Millisecond).String())
	}
	return labelStyle.Render(strings.Join(parts, " | "))
}

func renderCostSummary(s ledger.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Cost Summary"))
	b.WriteString("\n\n")

	writeField(&b, "Requests", fmt.Sprintf("%d", s.Requests))
	writeField(&b, "Tokens", fmt.Sprintf("%d", s.TotalTokens))
	writeField(&b, "Total cost", fmt.Sprintf("$%.6f", s.TotalCostUSD))
	writeField(&b, "Cache hits", fmt.Sprintf("%d", s.CacheHits))
	writeField(&b, "Avg latency", fmt.Sprintf("%.0fms", s.AvgLatencyMS))

	if len(s.ByProvider) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("By Provider"))
		b.WriteString("\n")
		writeBreakdown(&b, s.ByProvider)
	}
	if len(s.ByModel) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("By Model"))
		b.WriteString("\n")
		writeBreakdown(&b, s.ByModel)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label+":")))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func writeBreakdown(b *strings.Builder, breakdown map[string]ledger.Breakdown) {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := breakdown[name]
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-24s", name)))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%4d req  %8d tok  $%.6f", entry.Requests, entry.Tokens, entry.CostUSD)))
		b.WriteString("\n")
	}
}

func renderFindings(findings []security.Finding) string {
	if len(findings) == 0 {
		return okStyle.Render("no findings") + "\n"
	}

	var b strings.Builder
	for _, f := range findings {
		style := warnStyle
		if f.Severity.AtLeast(security.SeverityHigh) {
			style = alertStyle
		}
		b.WriteString(style.Render(strings.ToUpper(string(f.Severity))))
		b.WriteString(valueStyle.Render(fmt.Sprintf("  %s:%d  %s/%s  %s", f.File, f.Line, f.Category, f.Kind, f.Match)))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("%d finding(s)", len(findings))))
	b.WriteString("\n")
	return b.String()
}

// printEventStream drains an agent event channel, rendering each chunk on
// its own line.
func printEventStream(w io.Writer, events <-chan llm.Event) error {
	for event := range events {
		switch event.Type {
		case llm.EventStart:
			fmt.Fprintln(w, labelStyle.Render("[start]"))
		case llm.EventThinking:
			fmt.Fprintln(w, labelStyle.Render("[thinking] ")+valueStyle.Render(event.Thinking))
		case llm.EventTextDelta:
			fmt.Fprint(w, valueStyle.Render(event.TextDelta))
		case llm.EventToolCall:
			fmt.Fprintln(w, warnStyle.Render("[tool call] ")+valueStyle.Render(fmt.Sprintf("%s %s", event.ToolCall.Name, string(event.ToolCall.Arguments))))
		case llm.EventToolResult:
			fmt.Fprintln(w, warnStyle.Render("[tool result] ")+valueStyle.Render(event.ToolResult.Content))
		case llm.EventDone:
			fmt.Fprintln(w)
			fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("[done] %s, %d tokens", event.Done.Reason, event.Done.Usage.TotalTokens)))
		case llm.EventError:
			return event.Err
		}
	}
	return nil
}
