// Package prompt assembles the deterministic prompts sent to the model by every agent.
package prompt

import (
	"fmt"
	"strings"

	"github.com/evanschultz/pmforge/internal/llm"
)

const fence = "```"

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// bulletList renders items as "- item" lines, or fallback when empty.
func bulletList(items []string, fallback string) string {
	var b strings.Builder
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return fallback + "\n"
	}
	return b.String()
}

// contextBlock renders retrieved template snippets ahead of the main instruction.
func contextBlock(snippets []string) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Reference templates and rules\n\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "### Reference %d\n%s\n\n", i+1, strings.TrimSpace(s))
	}
	return b.String()
}

func conversation(system, user string) []llm.Message {
	return []llm.Message{llm.System(system), llm.User(user)}
}
